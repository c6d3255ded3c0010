package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaat/fiscaat/internal/money"
)

func TestCommitBatchBalanced(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	bank := seedAccount(t, svc, period.ID, 102, AccountTypeCapital)
	sales := seedAccount(t, svc, period.ID, 800, AccountTypeRevenue)

	records, err := svc.CommitBatch(ctx, []RecordDraft{
		draft(bank.ID, RecordTypeCredit, "150,00"),
		draft(sales.ID, RecordTypeDebit, "150,00"),
	}, bookkeeper())
	require.NoError(t, err)
	require.Len(t, records, 2)

	gotBank, err := repo.GetAccount(ctx, bank.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("150,00"), gotBank.EndValue)

	gotSales, err := repo.GetAccount(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("-150,00"), gotSales.EndValue)

	gotPeriod, err := repo.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.True(t, gotPeriod.EndValue.IsZero())
	assert.Equal(t, 2, gotPeriod.RecordCount)
}

func TestCommitBatchSumMismatch(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	bank := seedAccount(t, svc, period.ID, 102, AccountTypeCapital)
	sales := seedAccount(t, svc, period.ID, 800, AccountTypeRevenue)

	_, err := svc.CommitBatch(ctx, []RecordDraft{
		draft(sales.ID, RecordTypeDebit, "150,00"),
		draft(bank.ID, RecordTypeCredit, "149,99"),
	}, bookkeeper())
	require.Error(t, err)
	assert.Equal(t, KindBatch, KindOf(err))

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.True(t, batchErr.SumMismatch)
	assert.Equal(t, money.MustParse("150,00"), batchErr.DebitSum)
	assert.Equal(t, money.MustParse("149,99"), batchErr.CreditSum)
	assert.Empty(t, batchErr.Items)

	// Nothing committed.
	got, err := repo.GetAccount(ctx, bank.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RecordCount)
}

func TestCommitBatchReportsAllInvalidIndices(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)

	bad := draft(account.ID, RecordTypeCredit, "10,00")
	bad.Description = ""

	_, err := svc.CommitBatch(ctx, []RecordDraft{
		draft(account.ID, RecordTypeCredit, "0,00"), // invalid amount
		draft(account.ID, RecordTypeDebit, "10,00"),
		bad, // missing description
	}, bookkeeper())
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Items, 2)
	assert.Equal(t, 0, batchErr.Items[0].Index)
	assert.ErrorIs(t, batchErr.Items[0].Err, ErrInvalidAmount)
	assert.Equal(t, 2, batchErr.Items[1].Index)
	assert.ErrorIs(t, batchErr.Items[1].Err, ErrMissingField)
}

func TestCommitBatchAtomicOnClosedAccount(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	open := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	closed := seedAccount(t, svc, period.ID, 200, AccountTypeCapital)
	require.NoError(t, svc.CloseAccount(ctx, closed.ID, bookkeeper()))

	_, err := svc.CommitBatch(ctx, []RecordDraft{
		draft(open.ID, RecordTypeDebit, "25,00"),
		draft(closed.ID, RecordTypeCredit, "25,00"),
	}, bookkeeper())
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Items, 1)
	assert.Equal(t, 1, batchErr.Items[0].Index)
	assert.ErrorIs(t, batchErr.Items[0].Err, ErrAccountClosed)

	// The draft against the open account was rolled back with the rest.
	records, err := repo.ListRecordsOfAccount(ctx, open.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCommitBatchEmptyAndForbidden(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.CommitBatch(ctx, nil, bookkeeper())
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = svc.CommitBatch(ctx, []RecordDraft{draft(1, RecordTypeCredit, "1,00")}, NewActor(9))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{
		SumMismatch: true,
		DebitSum:    money.MustParse("150,00"),
		CreditSum:   money.MustParse("149,99"),
		Items:       []BatchItemError{{Index: 3, Err: ErrAccountClosed}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "150.00")
	assert.Contains(t, msg, "149.99")
	assert.Contains(t, msg, "draft 3")
}
