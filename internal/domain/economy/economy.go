// Package economy defines the dual-token balances and the append-only
// ledger that records every movement of tokens.
package economy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/task"
)

// Token is the kind of token a balance or movement refers to.
type Token string

const (
	TokenUtility    Token = "utility"
	TokenGovernance Token = "governance"
)

// Valid reports whether t is a known token kind.
func (t Token) Valid() bool {
	return t == TokenUtility || t == TokenGovernance
}

// System pool owners. Pools are balances that belong to no agent.
const (
	PoolRedistribution = agent.ReservedPrefix + "redistribution"
	PoolNewHire        = agent.ReservedPrefix + "new_hire"
)

// IsPool reports whether owner names a system pool.
func IsPool(owner string) bool {
	return owner == PoolRedistribution || owner == PoolNewHire
}

// Balance holds the tokens owned by one agent or pool.
type Balance struct {
	Owner      string          `json:"owner"`
	Utility    decimal.Decimal `json:"utility_balance"`
	Governance decimal.Decimal `json:"governance_balance"`
	Staked     decimal.Decimal `json:"staked_balance"`
	Version    int             `json:"-"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewBalance returns an empty balance for owner.
func NewBalance(owner string) *Balance {
	return &Balance{Owner: owner, Utility: decimal.Zero, Governance: decimal.Zero, Staked: decimal.Zero}
}

// Of returns the spendable amount of the given token.
func (b *Balance) Of(t Token) decimal.Decimal {
	if t == TokenGovernance {
		return b.Governance
	}
	return b.Utility
}

// Credit adds amount of token t.
func (b *Balance) Credit(t Token, amount decimal.Decimal) {
	if t == TokenGovernance {
		b.Governance = b.Governance.Add(amount)
		return
	}
	b.Utility = b.Utility.Add(amount)
}

// Debit removes amount of token t. Nothing changes when the balance is short.
func (b *Balance) Debit(t Token, amount decimal.Decimal) error {
	have := b.Of(t)
	if have.LessThan(amount) {
		return domain.InsufficientFundsf("%s has %s %s, needs %s", b.Owner, have, t, amount)
	}
	if t == TokenGovernance {
		b.Governance = have.Sub(amount)
	} else {
		b.Utility = have.Sub(amount)
	}
	return nil
}

// Stake locks amount of utility.
func (b *Balance) Stake(amount decimal.Decimal) error {
	if err := b.Debit(TokenUtility, amount); err != nil {
		return err
	}
	b.Staked = b.Staked.Add(amount)
	return nil
}

// Unstake releases amount of locked utility.
func (b *Balance) Unstake(amount decimal.Decimal) error {
	if b.Staked.LessThan(amount) {
		return domain.InsufficientFundsf("%s has %s staked, needs %s", b.Owner, b.Staked, amount)
	}
	b.Staked = b.Staked.Sub(amount)
	b.Utility = b.Utility.Add(amount)
	return nil
}

// Kind classifies a ledger entry.
type Kind string

const (
	KindMint     Kind = "mint"
	KindTransfer Kind = "transfer"
	KindStake    Kind = "stake"
	KindUnstake  Kind = "unstake"
	KindForfeit  Kind = "forfeit"
	KindBonus    Kind = "bonus"
	KindNewHire  Kind = "new_hire"
)

// Entry is one immutable ledger record. From is empty for mints.
type Entry struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Token     Token           `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

// Touches reports whether the entry moved tokens in or out of owner.
func (e *Entry) Touches(owner string) bool {
	return e.From == owner || e.To == owner
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.Validationf("amount must be > 0, got %s", amount)
	}
	return nil
}

// RewardTable maps task priority to the utility minted on completion.
type RewardTable map[task.Priority]decimal.Decimal

// DefaultRewards returns the stock reward table.
func DefaultRewards() RewardTable {
	return RewardTable{
		task.PriorityLow:      decimal.NewFromInt(10),
		task.PriorityMedium:   decimal.NewFromInt(25),
		task.PriorityHigh:     decimal.NewFromInt(60),
		task.PriorityCritical: decimal.NewFromInt(150),
	}
}

// For returns the reward for priority p, zero for an unknown priority.
func (r RewardTable) For(p task.Priority) decimal.Decimal {
	if v, ok := r[p]; ok {
		return v
	}
	return decimal.Zero
}

// RankWeights is the governance share weight per agent rank.
type RankWeights map[agent.Rank]int64

// DefaultRankWeights returns the stock governance weights.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		agent.RankEntry:     1,
		agent.RankJunior:    2,
		agent.RankMid:       3,
		agent.RankSenior:    5,
		agent.RankExecutive: 8,
	}
}

// DistributionGovernance is the only supported periodic distribution.
const DistributionGovernance = "governance"

// Distribution is one credit made by a periodic distribution.
type Distribution struct {
	AgentID string          `json:"agent_id"`
	Token   Token           `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
}

// PeriodResult is the outcome of a periodic distribution.
type PeriodResult struct {
	Type          string          `json:"distribution_type"`
	Period        string          `json:"period"`
	Distributions []Distribution  `json:"distributions"`
	Total         decimal.Decimal `json:"total_distributed"`
}

// Supply summarises minted and circulating tokens.
type Supply struct {
	UtilityMinted    decimal.Decimal `json:"utility_minted"`
	GovernanceMinted decimal.Decimal `json:"governance_minted"`
	UtilityHeld      decimal.Decimal `json:"utility_held"`
	Staked           decimal.Decimal `json:"staked"`
	Pools            decimal.Decimal `json:"pools"`
}
