// Package ledger implements the double-entry bookkeeping core: fiscal
// periods, ledger accounts, debit/credit records, the approval workflow, and
// the aggregate consistency rules that tie them together.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fiscaat/fiscaat/internal/money"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// AccountStatus enumerates valid account states.
type AccountStatus string

const (
	AccountStatusOpen   AccountStatus = "OPEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// AccountType splits the chart into result and balance accounts.
type AccountType string

const (
	// AccountTypeRevenue accounts start at zero every period; their result
	// flows to the income statement at close.
	AccountTypeRevenue AccountType = "REVENUE"
	// AccountTypeCapital accounts carry their ending balance into the next
	// period under the same ledger number.
	AccountTypeCapital AccountType = "CAPITAL"
)

// RecordType marks the side of the entry. The amount itself is always a
// non-negative magnitude; the type decides the sign.
type RecordType string

const (
	RecordTypeDebit  RecordType = "DEBIT"
	RecordTypeCredit RecordType = "CREDIT"
)

// ApprovalStatus is the control workflow state of a record.
type ApprovalStatus string

const (
	ApprovalUnapproved ApprovalStatus = "UNAPPROVED"
	ApprovalApproved   ApprovalStatus = "APPROVED"
	ApprovalDeclined   ApprovalStatus = "DECLINED"
)

// ValidApproval reports whether the status is a known workflow state. Every
// transition between known states is allowed; there is no terminal state.
func ValidApproval(status ApprovalStatus) bool {
	switch status {
	case ApprovalUnapproved, ApprovalApproved, ApprovalDeclined:
		return true
	default:
		return false
	}
}

// Capability is an opaque authorization token. The core never resolves
// identity itself; callers pass the actor's capability set into each
// operation.
type Capability string

const (
	CapPeriodCreate  Capability = "period.create"
	CapPeriodClose   Capability = "period.close"
	CapPeriodDelete  Capability = "period.delete"
	CapAccountEdit   Capability = "account.edit"
	CapAccountClose  Capability = "account.close"
	CapAccountDelete Capability = "account.delete"
	CapRecordEdit    Capability = "record.edit"
	CapRecordDelete  Capability = "record.delete"
	// CapControl gates the approval workflow.
	CapControl Capability = "record.control"
)

// AllCapabilities lists every capability known to the ledger.
func AllCapabilities() []Capability {
	return []Capability{
		CapPeriodCreate, CapPeriodClose, CapPeriodDelete,
		CapAccountEdit, CapAccountClose, CapAccountDelete,
		CapRecordEdit, CapRecordDelete, CapControl,
	}
}

// Actor identifies the caller of a core operation together with its
// capability set.
type Actor struct {
	ID   int64
	caps map[Capability]struct{}
}

// NewActor builds an actor holding the given capabilities.
func NewActor(id int64, caps ...Capability) Actor {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Actor{ID: id, caps: set}
}

// Can reports whether the actor holds the capability.
func (a Actor) Can(c Capability) bool {
	_, ok := a.caps[c]
	return ok
}

// Period is a fiscal year container. At most one period is open system-wide.
type Period struct {
	ID       int64
	Title    string
	Status   PeriodStatus
	OpenedAt *time.Time
	ClosedAt *time.Time
	ClosedBy *int64

	// Cached aggregates, re-derived from child accounts. Never hand-edited.
	AccountCount          int
	RecordCount           int
	RecordCountDeclined   int
	RecordCountUnapproved int
	EndValue              money.Amount

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account is a ledger account owned by a period. The ledger number is unique
// among sibling accounts of the same period.
type Account struct {
	ID           int64
	PeriodID     int64
	LedgerNumber int
	Title        string
	Type         AccountType
	Status       AccountStatus

	// Cached aggregates, re-derived from child records.
	RecordCount           int
	RecordCountDeclined   int
	RecordCountUnapproved int
	StartValue            money.Amount
	EndValue              money.Amount

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Record is a single debit or credit entry. PeriodID is denormalized from
// the owning account for fast filtering; a mismatch with the account's
// period is a data-integrity finding, never silently corrected.
type Record struct {
	ID            int64
	AccountID     int64
	PeriodID      int64
	Type          RecordType
	Amount        money.Amount
	Description   string
	RecordDate    time.Time
	OffsetAccount string
	Approval      ApprovalStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Effect returns the signed contribution of the record to a balance:
// credits add, debits subtract.
func (r Record) Effect() money.Amount {
	if r.Type == RecordTypeDebit {
		return r.Amount.Neg()
	}
	return r.Amount
}

// AccountAggregates holds the re-derived cached values of an account.
type AccountAggregates struct {
	RecordCount           int
	RecordCountDeclined   int
	RecordCountUnapproved int
	StartValue            money.Amount
	EndValue              money.Amount
}

// PeriodAggregates holds the re-derived cached values of a period.
type PeriodAggregates struct {
	AccountCount          int
	RecordCount           int
	RecordCountDeclined   int
	RecordCountUnapproved int
	EndValue              money.Amount
}

var validate = validator.New()

// CreatePeriodInput groups fields for creating a period.
type CreatePeriodInput struct {
	Title string `validate:"required"`
	Actor Actor
}

// Validate checks the input.
func (in CreatePeriodInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title required", ErrMissingField)
	}
	return validate.Struct(in)
}

// CreateAccountInput groups fields for creating an account under a period.
type CreateAccountInput struct {
	PeriodID     int64       `validate:"required,gt=0"`
	Title        string      `validate:"required"`
	LedgerNumber int         `validate:"required,gt=0"`
	Type         AccountType `validate:"required,oneof=REVENUE CAPITAL"`
	Actor        Actor
}

// Validate checks the input.
func (in CreateAccountInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLedgerNumber, err)
	}
	return nil
}

// UpdateAccountInput carries editable account fields.
type UpdateAccountInput struct {
	AccountID    int64  `validate:"required,gt=0"`
	Title        string `validate:"required"`
	LedgerNumber int    `validate:"required,gt=0"`
	Actor        Actor
}

// Validate checks the input.
func (in UpdateAccountInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLedgerNumber, err)
	}
	return nil
}

// RecordDraft is a record awaiting insertion, either singly or as part of a
// batch.
type RecordDraft struct {
	AccountID     int64      `validate:"required,gt=0"`
	Type          RecordType `validate:"required,oneof=DEBIT CREDIT"`
	Amount        money.Amount
	Description   string `validate:"required"`
	RecordDate    time.Time
	OffsetAccount string
}

// Validate checks the draft. The amount must be a strictly positive
// magnitude; the sign of the entry comes from Type alone.
func (d RecordDraft) Validate() error {
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, d.Amount)
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return nil
}

// UpdateRecordInput carries editable record fields.
type UpdateRecordInput struct {
	RecordID      int64 `validate:"required,gt=0"`
	Type          RecordType
	Amount        money.Amount
	Description   string
	RecordDate    time.Time
	OffsetAccount string
	Actor         Actor
}

// Validate checks the input.
func (in UpdateRecordInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	if in.Type != RecordTypeDebit && in.Type != RecordTypeCredit {
		return fmt.Errorf("%w: unknown record type %q", ErrMissingField, in.Type)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description required", ErrMissingField)
	}
	return nil
}

// IntegrityFinding reports a record whose denormalized period reference does
// not match its account's period.
type IntegrityFinding struct {
	RecordID        int64
	AccountID       int64
	RecordPeriodID  int64
	AccountPeriodID int64
}

func (f IntegrityFinding) String() string {
	return fmt.Sprintf("record %d references period %d but its account %d belongs to period %d",
		f.RecordID, f.RecordPeriodID, f.AccountID, f.AccountPeriodID)
}

// Sentinel errors, grouped by taxonomy kind.
var (
	// Validation errors.
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrInvalidLedgerNumber = errors.New("ledger: invalid ledger number")
	ErrMissingField        = errors.New("ledger: missing required field")
	ErrInvalidApproval     = errors.New("ledger: unknown approval status")

	// State errors.
	ErrPeriodNotOpen     = errors.New("ledger: period is not open")
	ErrPeriodClosed      = errors.New("ledger: period is closed")
	ErrAnotherPeriodOpen = errors.New("ledger: another period is already open")
	ErrAccountClosed     = errors.New("ledger: account is closed")
	ErrHasOpenAccounts   = errors.New("ledger: period has open accounts")

	// Permission errors.
	ErrForbidden = errors.New("ledger: actor lacks capability")

	// Integrity errors.
	ErrDuplicateLedgerNumber = errors.New("ledger: ledger number already taken in period")
	ErrNotEmpty              = errors.New("ledger: target still has records")
	ErrPeriodMismatch        = errors.New("ledger: record period does not match account period")

	// Not-found errors.
	ErrPeriodNotFound  = errors.New("ledger: period not found")
	ErrAccountNotFound = errors.New("ledger: account not found")
	ErrRecordNotFound  = errors.New("ledger: record not found")
)

// ErrorKind classifies core errors per the error taxonomy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindState
	KindPermission
	KindIntegrity
	KindNotFound
	KindBatch
)

// KindOf maps an error to its taxonomy kind.
func KindOf(err error) ErrorKind {
	var batch *BatchError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &batch):
		return KindBatch
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidLedgerNumber),
		errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidApproval):
		return KindValidation
	case errors.Is(err, ErrPeriodNotOpen),
		errors.Is(err, ErrPeriodClosed),
		errors.Is(err, ErrAnotherPeriodOpen),
		errors.Is(err, ErrAccountClosed),
		errors.Is(err, ErrHasOpenAccounts):
		return KindState
	case errors.Is(err, ErrForbidden):
		return KindPermission
	case errors.Is(err, ErrDuplicateLedgerNumber),
		errors.Is(err, ErrNotEmpty),
		errors.Is(err, ErrPeriodMismatch):
		return KindIntegrity
	case errors.Is(err, ErrPeriodNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrRecordNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}
