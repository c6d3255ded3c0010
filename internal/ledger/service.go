package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/fiscaat/fiscaat/internal/money"
	"github.com/fiscaat/fiscaat/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort persists approval workflow history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CacheInvalidator bumps read-side caches after a successful mutation.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Config is the explicit, typed configuration of the ledger core.
type Config struct {
	// RequireApproval gates balance computation on the control workflow:
	// when set, only approved records count toward cached values.
	RequireApproval bool
}

// Service coordinates all ledger mutations. Every operation runs inside a
// single transaction against the persistence collaborator; validation
// failures leave no mutation behind.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	approvals   ApprovalPort
	invalidator CacheInvalidator
	policy      BalancePolicy
	cfg         Config
	now         func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cfg Config) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		cfg:    cfg,
		policy: controlPolicy{requireApproval: cfg.RequireApproval},
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPolicy replaces the balance policy.
func (s *Service) WithPolicy(policy BalancePolicy) {
	if policy != nil {
		s.policy = policy
	}
}

// WithApprovals attaches an approval history recorder.
func (s *Service) WithApprovals(port ApprovalPort) {
	s.approvals = port
}

// WithInvalidator attaches a cache invalidator notified after mutations.
func (s *Service) WithInvalidator(inv CacheInvalidator) {
	s.invalidator = inv
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.invalidator != nil {
		_ = s.invalidator.Bump(ctx)
	}
}

/* Periods */

// CreatePeriod creates a new fiscal period. New periods start closed and
// must be opened explicitly; OpenPeriod is where the single-open invariant
// is enforced.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	if !in.Actor.Can(CapPeriodCreate) {
		return Period{}, fmt.Errorf("%w: %s", ErrForbidden, CapPeriodCreate)
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		period, err = tx.InsertPeriod(ctx, in.Title, PeriodStatusClosed, nil)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, in.Actor.ID, "period.create", "period", period.ID, map[string]any{"title": period.Title})
	s.bumpCache(ctx)
	return period, nil
}

// OpenPeriod transitions a period to open. Fails with ErrAnotherPeriodOpen
// when any other period already holds the open slot.
func (s *Service) OpenPeriod(ctx context.Context, periodID int64, actor Actor) error {
	if !actor.Can(CapPeriodClose) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapPeriodClose)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status == PeriodStatusOpen {
			return nil
		}
		open, err := tx.HasOpenPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if open {
			return ErrAnotherPeriodOpen
		}
		return tx.UpdatePeriodStatus(ctx, periodID, PeriodStatusOpen, actor.ID, s.now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "period.open", "period", periodID, nil)
	s.bumpCache(ctx)
	return nil
}

// ClosePeriod transitions a period to closed. Every child account must be
// closed first; aggregates are re-derived as part of the close so the stored
// end value is trustworthy afterwards.
func (s *Service) ClosePeriod(ctx context.Context, periodID int64, actor Actor) error {
	if !actor.Can(CapPeriodClose) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapPeriodClose)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodNotOpen
		}
		open, err := tx.HasOpenAccounts(ctx, periodID)
		if err != nil {
			return err
		}
		if open {
			return ErrHasOpenAccounts
		}
		if _, err := s.recomputePeriodTx(ctx, tx, periodID); err != nil {
			return err
		}
		return tx.UpdatePeriodStatus(ctx, periodID, PeriodStatusClosed, actor.ID, s.now())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "period.close", "period", periodID, nil)
	s.bumpCache(ctx)
	return nil
}

// DeletePeriod removes a period. Allowed only when the period is closed or
// holds no records, mirroring the admin delete rule.
func (s *Service) DeletePeriod(ctx context.Context, periodID int64, actor Actor) error {
	if !actor.Can(CapPeriodDelete) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapPeriodDelete)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusClosed {
			count, err := tx.CountRecordsOfPeriod(ctx, periodID)
			if err != nil {
				return err
			}
			if count > 0 {
				return ErrNotEmpty
			}
		}
		return tx.DeletePeriod(ctx, periodID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "period.delete", "period", periodID, nil)
	s.bumpCache(ctx)
	return nil
}

// GetCurrentOpenPeriod returns the single open period, or ErrPeriodNotFound
// when the books are fully closed.
func (s *Service) GetCurrentOpenPeriod(ctx context.Context) (Period, error) {
	return s.repo.GetOpenPeriod(ctx)
}

// HasOpenPeriod reports whether any period is open.
func (s *Service) HasOpenPeriod(ctx context.Context) (bool, error) {
	_, err := s.repo.GetOpenPeriod(ctx)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

/* Accounts */

// CreateAccount creates a ledger account under an open period. The ledger
// number must be unused among sibling accounts; capital accounts pick up
// their starting balance from the prior period's account with the same
// ledger number.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	if !in.Actor.Can(CapAccountEdit) {
		return Account{}, fmt.Errorf("%w: %s", ErrForbidden, CapAccountEdit)
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		period, err := tx.GetPeriodForUpdate(ctx, in.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodNotOpen
		}
		if taken, found, err := tx.FindAccountByLedgerNumber(ctx, in.PeriodID, in.LedgerNumber, 0); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: %d (account %d)", ErrDuplicateLedgerNumber, in.LedgerNumber, taken.ID)
		}
		start, err := s.carryForwardStartValue(ctx, tx, in)
		if err != nil {
			return err
		}
		account, err = tx.InsertAccount(ctx, in, start)
		if err != nil {
			return err
		}
		_, err = s.recomputePeriodTx(ctx, tx, in.PeriodID)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, in.Actor.ID, "account.create", "account", account.ID, map[string]any{
		"ledger_number": in.LedgerNumber,
		"period_id":     in.PeriodID,
	})
	s.bumpCache(ctx)
	return account, nil
}

func (s *Service) carryForwardStartValue(ctx context.Context, tx Tx, in CreateAccountInput) (v money.Amount, err error) {
	if in.Type != AccountTypeCapital {
		return v, nil
	}
	prev, ok, err := tx.GetPreviousPeriod(ctx, in.PeriodID)
	if err != nil || !ok {
		return v, err
	}
	prior, found, err := tx.FindAccountByLedgerNumber(ctx, prev.ID, in.LedgerNumber, 0)
	if err != nil || !found {
		return v, err
	}
	return prior.EndValue, nil
}

// UpdateAccount edits an account's title and ledger number. The ledger
// number uniqueness check excludes the account itself.
func (s *Service) UpdateAccount(ctx context.Context, in UpdateAccountInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if !in.Actor.Can(CapAccountEdit) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapAccountEdit)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, in.AccountID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: period %d is closed", ErrForbidden, period.ID)
		}
		if taken, found, err := tx.FindAccountByLedgerNumber(ctx, account.PeriodID, in.LedgerNumber, account.ID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: %d (account %d)", ErrDuplicateLedgerNumber, in.LedgerNumber, taken.ID)
		}
		return tx.UpdateAccount(ctx, in.AccountID, in.Title, in.LedgerNumber)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, in.Actor.ID, "account.update", "account", in.AccountID, nil)
	s.bumpCache(ctx)
	return nil
}

// CloseAccount closes an account after re-deriving its aggregates. Closing
// is forbidden while the parent period is closed; closing an already closed
// account is a no-op.
func (s *Service) CloseAccount(ctx context.Context, accountID int64, actor Actor) error {
	return s.toggleAccount(ctx, accountID, actor, AccountStatusClosed)
}

// OpenAccount reopens a closed account. Forbidden while the parent period is
// closed.
func (s *Service) OpenAccount(ctx context.Context, accountID int64, actor Actor) error {
	return s.toggleAccount(ctx, accountID, actor, AccountStatusOpen)
}

func (s *Service) toggleAccount(ctx context.Context, accountID int64, actor Actor, target AccountStatus) error {
	if !actor.Can(CapAccountClose) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapAccountClose)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == target {
			return nil
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: period %d is closed", ErrForbidden, period.ID)
		}
		if target == AccountStatusClosed {
			if err := s.refreshAccountAndPeriodTx(ctx, tx, account); err != nil {
				return err
			}
		}
		return tx.UpdateAccountStatus(ctx, accountID, target)
	})
	if err != nil {
		return err
	}
	action := "account.close"
	if target == AccountStatusOpen {
		action = "account.open"
	}
	s.recordAudit(ctx, actor.ID, action, "account", accountID, nil)
	s.bumpCache(ctx)
	return nil
}

// BulkCloseAccounts closes each account in turn, aborting the whole batch at
// the first failure.
func (s *Service) BulkCloseAccounts(ctx context.Context, accountIDs []int64, actor Actor) error {
	for _, id := range accountIDs {
		if err := s.CloseAccount(ctx, id, actor); err != nil {
			return fmt.Errorf("account %d: %w", id, err)
		}
	}
	return nil
}

// BulkOpenAccounts opens each account in turn, aborting the whole batch at
// the first failure.
func (s *Service) BulkOpenAccounts(ctx context.Context, accountIDs []int64, actor Actor) error {
	for _, id := range accountIDs {
		if err := s.OpenAccount(ctx, id, actor); err != nil {
			return fmt.Errorf("account %d: %w", id, err)
		}
	}
	return nil
}

// DeleteAccount permanently removes an account. Only empty accounts may be
// deleted.
func (s *Service) DeleteAccount(ctx context.Context, accountID int64, actor Actor) error {
	if !actor.Can(CapAccountDelete) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapAccountDelete)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: period %d is closed", ErrForbidden, period.ID)
		}
		count, err := tx.CountRecordsOfAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrNotEmpty
		}
		if err := tx.DeleteAccount(ctx, accountID); err != nil {
			return err
		}
		_, err = s.recomputePeriodTx(ctx, tx, account.PeriodID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "account.delete", "account", accountID, nil)
	s.bumpCache(ctx)
	return nil
}

// HasOpenAccount reports whether the period holds any open account.
func (s *Service) HasOpenAccount(ctx context.Context, periodID int64) (bool, error) {
	accounts, err := s.repo.ListAccountsOfPeriod(ctx, periodID)
	if err != nil {
		return false, err
	}
	for _, account := range accounts {
		if account.Status == AccountStatusOpen {
			return true, nil
		}
	}
	return false, nil
}
