package ledger

import (
	"context"
	"time"

	"github.com/fiscaat/fiscaat/internal/money"
)

// RepositoryPort abstracts the persistence collaborator. Mutations run
// through WithTx; reads outside a transaction are plain queries.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error

	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	// GetOpenPeriod returns the single system-wide open period, or
	// ErrPeriodNotFound when no period is open.
	GetOpenPeriod(ctx context.Context) (Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error)
	ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error)
	// ListMismatchedRecords returns records whose denormalized period
	// reference differs from their account's period.
	ListMismatchedRecords(ctx context.Context) ([]IntegrityFinding, error)
}

// Tx exposes the operations available inside a transaction. ForUpdate
// variants take a row lock so concurrent mutations against the same entity
// serialize at the persistence layer.
type Tx interface {
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	GetRecordForUpdate(ctx context.Context, id int64) (Record, error)

	// HasOpenPeriod reports whether any period other than exceptID is open.
	HasOpenPeriod(ctx context.Context, exceptID int64) (bool, error)
	HasOpenAccounts(ctx context.Context, periodID int64) (bool, error)
	// FindAccountByLedgerNumber scans sibling accounts of the period for the
	// ledger number, excluding exceptID (0 to exclude none).
	FindAccountByLedgerNumber(ctx context.Context, periodID int64, ledgerNumber int, exceptID int64) (Account, bool, error)
	// GetPreviousPeriod returns the period created immediately before the
	// given one, used for capital balance carry-forward.
	GetPreviousPeriod(ctx context.Context, periodID int64) (Period, bool, error)
	CountRecordsOfPeriod(ctx context.Context, periodID int64) (int, error)
	CountRecordsOfAccount(ctx context.Context, accountID int64) (int, error)
	ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error)
	ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error)

	InsertPeriod(ctx context.Context, title string, status PeriodStatus, openedAt *time.Time) (Period, error)
	UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error
	DeletePeriod(ctx context.Context, id int64) error

	InsertAccount(ctx context.Context, in CreateAccountInput, startValue money.Amount) (Account, error)
	UpdateAccount(ctx context.Context, id int64, title string, ledgerNumber int) error
	UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) error
	DeleteAccount(ctx context.Context, id int64) error

	InsertRecord(ctx context.Context, draft RecordDraft, periodID int64, approval ApprovalStatus) (Record, error)
	UpdateRecord(ctx context.Context, in UpdateRecordInput) error
	UpdateRecordApproval(ctx context.Context, id int64, status ApprovalStatus) error
	DeleteRecord(ctx context.Context, id int64) error

	SaveAccountAggregates(ctx context.Context, id int64, agg AccountAggregates) error
	SavePeriodAggregates(ctx context.Context, id int64, agg PeriodAggregates) error
}
