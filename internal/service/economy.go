package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/config"
	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/economy"
	"github.com/aiarch/aia/internal/domain/task"
	"github.com/aiarch/aia/internal/port/database"
)

// EconomyService mints, moves and locks utility and governance tokens.
// Every movement is mirrored by a ledger entry in the same transaction.
type EconomyService struct {
	store     database.Store
	rewards   economy.RewardTable
	weights   economy.RankWeights
	perWeight decimal.Decimal
}

// NewEconomyService creates an EconomyService from the economy config.
// Missing table entries fall back to the stock values.
func NewEconomyService(store database.Store, cfg *config.Economy) *EconomyService {
	rewards := economy.DefaultRewards()
	weights := economy.DefaultRankWeights()
	perWeight := decimal.NewFromInt(10)
	if cfg != nil {
		for p, v := range cfg.Rewards {
			rewards[task.Priority(p)] = decimal.NewFromInt(v)
		}
		for r, w := range cfg.RankWeights {
			weights[agent.Rank(r)] = w
		}
		if cfg.GovernancePerWeight > 0 {
			perWeight = decimal.NewFromInt(cfg.GovernancePerWeight)
		}
	}
	return &EconomyService{store: store, rewards: rewards, weights: weights, perWeight: perWeight}
}

// Distribute mints amount of token to owner.
func (s *EconomyService) Distribute(ctx context.Context, owner string, amount decimal.Decimal, token economy.Token, reason string) (*economy.Balance, error) {
	if err := validateMovement(amount, token, reason); err != nil {
		return nil, err
	}
	if err := rejectPool(owner); err != nil {
		return nil, err
	}
	var b *economy.Balance
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		b, err = mint(ctx, tx, owner, amount, token, economy.KindMint, reason)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("distribute %s %s to %s: %w", amount, token, owner, err)
	}
	slog.InfoContext(ctx, "tokens minted", "owner", owner, "token", token, "amount", amount.String())
	return b, nil
}

// Transfer moves amount of token from one owner to another.
func (s *EconomyService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, token economy.Token, reason string) error {
	if err := validateMovement(amount, token, reason); err != nil {
		return err
	}
	if from == "" || to == "" {
		return domain.Validationf("from and to are required")
	}
	if from == to {
		return domain.Validationf("cannot transfer from %s to itself", from)
	}
	if err := rejectPool(from, to); err != nil {
		return err
	}
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		return move(ctx, tx, from, to, amount, token, economy.KindTransfer, reason)
	})
	if err != nil {
		return fmt.Errorf("transfer %s %s from %s to %s: %w", amount, token, from, to, err)
	}
	slog.InfoContext(ctx, "tokens transferred", "from", from, "to", to, "token", token, "amount", amount.String())
	return nil
}

// Stake locks amount of the owner's utility.
func (s *EconomyService) Stake(ctx context.Context, owner string, amount decimal.Decimal) (*economy.Balance, error) {
	return s.lock(ctx, owner, amount, economy.KindStake)
}

// Unstake releases amount of the owner's locked utility.
func (s *EconomyService) Unstake(ctx context.Context, owner string, amount decimal.Decimal) (*economy.Balance, error) {
	return s.lock(ctx, owner, amount, economy.KindUnstake)
}

func (s *EconomyService) lock(ctx context.Context, owner string, amount decimal.Decimal, kind economy.Kind) (*economy.Balance, error) {
	if err := economy.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := rejectPool(owner); err != nil {
		return nil, err
	}
	var b *economy.Balance
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		if b, err = tx.GetBalance(ctx, owner); err != nil {
			return err
		}
		if kind == economy.KindStake {
			err = b.Stake(amount)
		} else {
			err = b.Unstake(amount)
		}
		if err != nil {
			return err
		}
		b.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		return appendLedger(ctx, tx, economy.Entry{Kind: kind, From: owner, To: owner, Token: economy.TokenUtility, Amount: amount, Reason: string(kind)})
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s for %s: %w", kind, amount, owner, err)
	}
	return b, nil
}

// rejectPool refuses external movements touching a system pool. Pools only
// change during sprint execution.
func rejectPool(owners ...string) error {
	for _, o := range owners {
		if economy.IsPool(o) {
			return domain.Validationf("%s is a system pool", o)
		}
	}
	return nil
}

// RewardTaskCompletion mints the completion reward for a task of the given
// priority to agentID.
func (s *EconomyService) RewardTaskCompletion(ctx context.Context, agentID string, priority task.Priority) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		var err error
		paid, err = s.rewardTx(ctx, tx, agentID, priority, "task completion")
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("reward %s: %w", agentID, err)
	}
	return paid, nil
}

// rewardTx mints the reward inside an open transaction. A zero reward is
// skipped without a ledger entry.
func (s *EconomyService) rewardTx(ctx context.Context, tx database.Tx, agentID string, priority task.Priority, reason string) (decimal.Decimal, error) {
	amount := s.rewards.For(priority)
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	if _, err := mint(ctx, tx, agentID, amount, economy.TokenUtility, economy.KindMint, reason); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Balance returns the balance of an agent or pool.
func (s *EconomyService) Balance(ctx context.Context, owner string) (*economy.Balance, error) {
	return s.store.GetBalance(ctx, owner)
}

// Ledger returns the ledger entries touching owner, or every entry when
// owner is empty.
func (s *EconomyService) Ledger(ctx context.Context, owner string) ([]economy.Entry, error) {
	return s.store.ListLedger(ctx, owner)
}

// Supply sums minted tokens from the ledger and held tokens from balances.
func (s *EconomyService) Supply(ctx context.Context) (economy.Supply, error) {
	sup := economy.Supply{
		UtilityMinted:    decimal.Zero,
		GovernanceMinted: decimal.Zero,
		UtilityHeld:      decimal.Zero,
		Staked:           decimal.Zero,
		Pools:            decimal.Zero,
	}
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		entries, err := tx.ListLedger(ctx, "")
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind != economy.KindMint {
				continue
			}
			if e.Token == economy.TokenGovernance {
				sup.GovernanceMinted = sup.GovernanceMinted.Add(e.Amount)
			} else {
				sup.UtilityMinted = sup.UtilityMinted.Add(e.Amount)
			}
		}
		balances, err := tx.ListBalances(ctx)
		if err != nil {
			return err
		}
		for _, b := range balances {
			if economy.IsPool(b.Owner) {
				sup.Pools = sup.Pools.Add(b.Utility)
				continue
			}
			sup.UtilityHeld = sup.UtilityHeld.Add(b.Utility)
			sup.Staked = sup.Staked.Add(b.Staked)
		}
		return nil
	})
	if err != nil {
		return economy.Supply{}, fmt.Errorf("supply: %w", err)
	}
	return sup, nil
}

// DistributePeriod runs a periodic distribution once per (type, period).
// Governance distributions credit every non-offline agent with its rank
// weight times the per-weight amount.
func (s *EconomyService) DistributePeriod(ctx context.Context, kind, period string) (*economy.PeriodResult, error) {
	if kind != economy.DistributionGovernance {
		return nil, domain.Validationf("unsupported distribution type %q", kind)
	}
	if period == "" {
		return nil, domain.Validationf("period is required")
	}

	var res *economy.PeriodResult
	err := s.store.InTx(ctx, func(tx database.Tx) error {
		res = &economy.PeriodResult{Type: kind, Period: period, Distributions: []economy.Distribution{}, Total: decimal.Zero}
		if err := tx.MarkDistribution(ctx, kind, period); err != nil {
			return err
		}
		agents, err := tx.ListAgents(ctx)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("%s distribution %s", kind, period)
		for i := range agents {
			a := &agents[i]
			if a.Status == agent.StatusOffline {
				continue
			}
			amount := s.perWeight.Mul(decimal.NewFromInt(s.weights[a.Rank]))
			if !amount.IsPositive() {
				continue
			}
			if _, err := mint(ctx, tx, a.ID, amount, economy.TokenGovernance, economy.KindMint, reason); err != nil {
				return err
			}
			res.Distributions = append(res.Distributions, economy.Distribution{AgentID: a.ID, Token: economy.TokenGovernance, Amount: amount})
			res.Total = res.Total.Add(amount)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("distribute %s for %s: %w", kind, period, err)
	}
	slog.InfoContext(ctx, "periodic distribution", "type", kind, "period", period,
		"agents", len(res.Distributions), "total", res.Total.String())
	return res, nil
}

func validateMovement(amount decimal.Decimal, token economy.Token, reason string) error {
	if err := economy.ValidateAmount(amount); err != nil {
		return err
	}
	if !token.Valid() {
		return domain.Validationf("invalid token %q", token)
	}
	if reason == "" {
		return domain.Validationf("reason is required")
	}
	return nil
}

// balanceFor loads owner's balance. Pools are created on first use; agents
// must already have one.
func balanceFor(ctx context.Context, tx database.Tx, owner string) (*economy.Balance, error) {
	b, err := tx.GetBalance(ctx, owner)
	if err == nil || !economy.IsPool(owner) {
		return b, err
	}
	b = economy.NewBalance(owner)
	b.UpdatedAt = time.Now().UTC()
	if err := tx.CreateBalance(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func mint(ctx context.Context, tx database.Tx, owner string, amount decimal.Decimal, token economy.Token, kind economy.Kind, reason string) (*economy.Balance, error) {
	b, err := balanceFor(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	b.Credit(token, amount)
	b.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateBalance(ctx, b); err != nil {
		return nil, err
	}
	if err := appendLedger(ctx, tx, economy.Entry{Kind: kind, To: owner, Token: token, Amount: amount, Reason: reason}); err != nil {
		return nil, err
	}
	return b, nil
}

func move(ctx context.Context, tx database.Tx, from, to string, amount decimal.Decimal, token economy.Token, kind economy.Kind, reason string) error {
	src, err := balanceFor(ctx, tx, from)
	if err != nil {
		return err
	}
	dst, err := balanceFor(ctx, tx, to)
	if err != nil {
		return err
	}
	if err := src.Debit(token, amount); err != nil {
		return err
	}
	dst.Credit(token, amount)
	now := time.Now().UTC()
	src.UpdatedAt, dst.UpdatedAt = now, now
	if err := tx.UpdateBalance(ctx, src); err != nil {
		return err
	}
	if err := tx.UpdateBalance(ctx, dst); err != nil {
		return err
	}
	return appendLedger(ctx, tx, economy.Entry{Kind: kind, From: from, To: to, Token: token, Amount: amount, Reason: reason})
}

func appendLedger(ctx context.Context, tx database.Tx, e economy.Entry) error {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	return tx.AppendLedger(ctx, &e)
}
