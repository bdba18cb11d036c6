// Package validator defines the port through which the consensus service
// asks an agent to judge a piece of critical output.
package validator

import (
	"context"

	"github.com/aiarch/aia/internal/domain/consensus"
)

// Validator collects one agent's decision on output. An error means the
// agent could not be reached or refused to answer; callers count it as an
// abstention.
type Validator interface {
	Validate(ctx context.Context, agentID, output string) (consensus.Vote, error)
}
