package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/aiarch/aia/internal/domain/consensus"
	"github.com/aiarch/aia/internal/logger"
	"github.com/aiarch/aia/internal/port/messagequeue"
	"github.com/aiarch/aia/internal/resilience"
)

// Validator asks agents for a decision over request/reply on
// consensus.validate.{agent_id}. All requests share one circuit breaker so
// a dead bus fails fast instead of waiting out every timeout.
type Validator struct {
	nc      *nats.Conn
	breaker *resilience.Breaker
}

// NewValidator returns a Validator on nc guarded by breaker.
func NewValidator(nc *nats.Conn, breaker *resilience.Breaker) *Validator {
	// An agent replying with an error is alive; only transport errors trip
	// the circuit.
	breaker.WithClassifier(func(err error) bool {
		var ae *agentError
		return err != nil && !errors.As(err, &ae)
	})
	return &Validator{nc: nc, breaker: breaker}
}

type agentError struct{ msg string }

func (e *agentError) Error() string { return "agent error: " + e.msg }

// Validate sends output to one agent and waits for its decision until ctx
// is done.
func (v *Validator) Validate(ctx context.Context, agentID, output string) (consensus.Vote, error) {
	data, err := json.Marshal(messagequeue.ValidateRequestPayload{AgentID: agentID, Output: output})
	if err != nil {
		return consensus.Vote{}, fmt.Errorf("marshal validate request: %w", err)
	}

	req := &nats.Msg{Subject: messagequeue.ValidateSubject(agentID), Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set(headerRequestID, id)
	}

	var reply messagequeue.ValidateReplyPayload
	err = v.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := v.nc.RequestMsgWithContext(ctx, req)
		if err != nil {
			return fmt.Errorf("nats request %s: %w", req.Subject, err)
		}
		if err := json.Unmarshal(resp.Data, &reply); err != nil {
			return &agentError{msg: "malformed reply: " + err.Error()}
		}
		if reply.Error != "" {
			return &agentError{msg: reply.Error}
		}
		return nil
	})
	if err != nil {
		return consensus.Vote{}, fmt.Errorf("validate via %s: %w", agentID, err)
	}
	return consensus.Vote{AgentID: agentID, Decision: reply.Decision, Confidence: reply.Confidence}, nil
}
