package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiscaat/fiscaat/internal/money"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("boom"), KindUnknown},
		{ErrInvalidAmount, KindValidation},
		{fmt.Errorf("wrap: %w", ErrMissingField), KindValidation},
		{ErrInvalidApproval, KindValidation},
		{ErrPeriodNotOpen, KindState},
		{ErrAnotherPeriodOpen, KindState},
		{ErrHasOpenAccounts, KindState},
		{ErrForbidden, KindPermission},
		{ErrDuplicateLedgerNumber, KindIntegrity},
		{ErrPeriodMismatch, KindIntegrity},
		{ErrNotEmpty, KindIntegrity},
		{ErrAccountNotFound, KindNotFound},
		{&BatchError{SumMismatch: true}, KindBatch},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), "err=%v", tc.err)
	}
}

func TestActorCapabilities(t *testing.T) {
	actor := NewActor(1, CapRecordEdit, CapControl)
	assert.True(t, actor.Can(CapRecordEdit))
	assert.True(t, actor.Can(CapControl))
	assert.False(t, actor.Can(CapPeriodDelete))

	none := NewActor(2)
	for _, c := range AllCapabilities() {
		assert.False(t, none.Can(c))
	}
}

func TestRecordEffect(t *testing.T) {
	credit := Record{Type: RecordTypeCredit, Amount: money.MustParse("12,50")}
	assert.Equal(t, money.MustParse("12,50"), credit.Effect())

	debit := Record{Type: RecordTypeDebit, Amount: money.MustParse("12,50")}
	assert.Equal(t, money.MustParse("-12,50"), debit.Effect())
}

func TestValidApproval(t *testing.T) {
	assert.True(t, ValidApproval(ApprovalUnapproved))
	assert.True(t, ValidApproval(ApprovalApproved))
	assert.True(t, ValidApproval(ApprovalDeclined))
	assert.False(t, ValidApproval(ApprovalStatus("PENDING")))
	assert.False(t, ValidApproval(ApprovalStatus("")))
}

func TestControlPolicy(t *testing.T) {
	strict := controlPolicy{requireApproval: true}
	loose := controlPolicy{requireApproval: false}

	approved := Record{Approval: ApprovalApproved}
	unapproved := Record{Approval: ApprovalUnapproved}
	declined := Record{Approval: ApprovalDeclined}

	assert.True(t, strict.Counts(approved))
	assert.False(t, strict.Counts(unapproved))
	assert.False(t, strict.Counts(declined))

	assert.True(t, loose.Counts(approved))
	assert.True(t, loose.Counts(unapproved))
	assert.False(t, loose.Counts(declined))
}

func TestRecordDraftValidate(t *testing.T) {
	ok := RecordDraft{
		AccountID:   1,
		Type:        RecordTypeCredit,
		Amount:      money.MustParse("1,00"),
		Description: "entry",
	}
	assert.NoError(t, ok.Validate())

	negative := ok
	negative.Amount = money.MustParse("-1,00")
	assert.ErrorIs(t, negative.Validate(), ErrInvalidAmount)

	badType := ok
	badType.Type = RecordType("TRANSFER")
	assert.ErrorIs(t, badType.Validate(), ErrMissingField)

	noAccount := ok
	noAccount.AccountID = 0
	assert.ErrorIs(t, noAccount.Validate(), ErrMissingField)
}

func TestIntegrityFindingString(t *testing.T) {
	f := IntegrityFinding{RecordID: 9, AccountID: 4, RecordPeriodID: 2, AccountPeriodID: 1}
	s := f.String()
	assert.Contains(t, s, "record 9")
	assert.Contains(t, s, "period 2")
	assert.Contains(t, s, "account 4")
}
