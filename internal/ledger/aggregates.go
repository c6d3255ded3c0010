package ledger

import (
	"context"

	"github.com/fiscaat/fiscaat/internal/money"
)

// BalancePolicy decides which records count toward cached balances and what
// their signed effect is. It is the extension point for alternative
// aggregate computations.
type BalancePolicy interface {
	// Counts reports whether the record participates in balance values.
	Counts(rec Record) bool
	// Effect returns the signed contribution of a counting record.
	Effect(rec Record) money.Amount
}

// controlPolicy is the default policy: declined records never count,
// approved records always count, and unapproved records count only when the
// approval workflow is not in use.
type controlPolicy struct {
	requireApproval bool
}

func (p controlPolicy) Counts(rec Record) bool {
	switch rec.Approval {
	case ApprovalApproved:
		return true
	case ApprovalUnapproved:
		return !p.requireApproval
	default:
		return false
	}
}

func (p controlPolicy) Effect(rec Record) money.Amount {
	return rec.Effect()
}

// recomputeAccountTx re-derives the account's cached aggregates from the
// full set of child records. It never adjusts incrementally: two concurrent
// mutations therefore converge on the same values instead of overwriting
// each other's deltas.
func (s *Service) recomputeAccountTx(ctx context.Context, tx Tx, account Account) (AccountAggregates, error) {
	start := money.Zero
	if account.Type == AccountTypeCapital {
		prev, ok, err := tx.GetPreviousPeriod(ctx, account.PeriodID)
		if err != nil {
			return AccountAggregates{}, err
		}
		if ok {
			prior, found, err := tx.FindAccountByLedgerNumber(ctx, prev.ID, account.LedgerNumber, 0)
			if err != nil {
				return AccountAggregates{}, err
			}
			if found {
				start = prior.EndValue
			}
		}
	}

	records, err := tx.ListRecordsOfAccount(ctx, account.ID)
	if err != nil {
		return AccountAggregates{}, err
	}

	agg := AccountAggregates{StartValue: start, EndValue: start}
	for _, rec := range records {
		agg.RecordCount++
		switch rec.Approval {
		case ApprovalDeclined:
			agg.RecordCountDeclined++
		case ApprovalUnapproved:
			agg.RecordCountUnapproved++
		}
		if s.policy.Counts(rec) {
			agg.EndValue = agg.EndValue.Add(s.policy.Effect(rec))
		}
	}

	if err := tx.SaveAccountAggregates(ctx, account.ID, agg); err != nil {
		return AccountAggregates{}, err
	}
	return agg, nil
}

// recomputePeriodTx sums child account aggregates into the period's cached
// values. Accounts must have been recomputed first when their records
// changed.
func (s *Service) recomputePeriodTx(ctx context.Context, tx Tx, periodID int64) (PeriodAggregates, error) {
	accounts, err := tx.ListAccountsOfPeriod(ctx, periodID)
	if err != nil {
		return PeriodAggregates{}, err
	}

	var agg PeriodAggregates
	for _, account := range accounts {
		agg.AccountCount++
		agg.RecordCount += account.RecordCount
		agg.RecordCountDeclined += account.RecordCountDeclined
		agg.RecordCountUnapproved += account.RecordCountUnapproved
		agg.EndValue = agg.EndValue.Add(account.EndValue)
	}

	if err := tx.SavePeriodAggregates(ctx, periodID, agg); err != nil {
		return PeriodAggregates{}, err
	}
	return agg, nil
}

// refreshAccountAndPeriodTx recomputes an account and then its owning
// period, in that order, so period sums see fresh account values.
func (s *Service) refreshAccountAndPeriodTx(ctx context.Context, tx Tx, account Account) error {
	agg, err := s.recomputeAccountTx(ctx, tx, account)
	if err != nil {
		return err
	}
	account.RecordCount = agg.RecordCount
	account.RecordCountDeclined = agg.RecordCountDeclined
	account.RecordCountUnapproved = agg.RecordCountUnapproved
	account.StartValue = agg.StartValue
	account.EndValue = agg.EndValue
	_, err = s.recomputePeriodTx(ctx, tx, account.PeriodID)
	return err
}

// RecomputeAccount re-derives the cached aggregates of a single account and
// its owning period.
func (s *Service) RecomputeAccount(ctx context.Context, accountID int64) (AccountAggregates, error) {
	var agg AccountAggregates
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		agg, err = s.recomputeAccountTx(ctx, tx, account)
		if err != nil {
			return err
		}
		_, err = s.recomputePeriodTx(ctx, tx, account.PeriodID)
		return err
	})
	return agg, err
}

// RecomputePeriod re-derives the cached aggregates of every account in the
// period, then the period itself.
func (s *Service) RecomputePeriod(ctx context.Context, periodID int64) (PeriodAggregates, error) {
	var agg PeriodAggregates
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetPeriodForUpdate(ctx, periodID); err != nil {
			return err
		}
		accounts, err := tx.ListAccountsOfPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			if _, err := s.recomputeAccountTx(ctx, tx, account); err != nil {
				return err
			}
		}
		agg, err = s.recomputePeriodTx(ctx, tx, periodID)
		return err
	})
	return agg, err
}
