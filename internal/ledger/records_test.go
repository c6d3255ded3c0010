package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaat/fiscaat/internal/money"
	"github.com/fiscaat/fiscaat/internal/shared"
)

func TestCreateRecordUpdatesAggregates(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)

	_, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "120,50"), bookkeeper())
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, draft(account.ID, RecordTypeDebit, "20,50"), bookkeeper())
	require.NoError(t, err)

	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RecordCount)
	assert.Equal(t, money.MustParse("100,00"), got.EndValue)

	gotPeriod, err := repo.GetPeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotPeriod.RecordCount)
	assert.Equal(t, money.MustParse("100,00"), gotPeriod.EndValue)
}

func TestCreateRecordGuards(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)

	_, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "0,00"), bookkeeper())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), NewActor(9))
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.CloseAccount(ctx, account.ID, bookkeeper()))
	_, err = svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), bookkeeper())
	assert.ErrorIs(t, err, ErrAccountClosed)
}

func TestApprovalGatesBalance(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{RequireApproval: true})
	approvals := &stubApprovals{}
	svc.WithApprovals(approvals)
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)

	record, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeDebit, "100,00"), bookkeeper())
	require.NoError(t, err)
	assert.Equal(t, ApprovalUnapproved, record.Approval)

	// Unapproved records do not count while approval is required.
	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.EndValue.IsZero())
	assert.Equal(t, 1, got.RecordCountUnapproved)

	require.NoError(t, svc.SetApproval(ctx, record.ID, ApprovalApproved, bookkeeper()))
	got, err = repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("-100,00"), got.EndValue)
	assert.Equal(t, 0, got.RecordCountUnapproved)

	require.NoError(t, svc.SetApproval(ctx, record.ID, ApprovalDeclined, bookkeeper()))
	got, err = repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.EndValue.IsZero())
	assert.Equal(t, 1, got.RecordCountDeclined)

	require.Len(t, approvals.logs, 2)
	assert.Equal(t, shared.ApprovalApprove, approvals.logs[0].Action)
	assert.Equal(t, shared.ApprovalDecline, approvals.logs[1].Action)
}

func TestUnapprovedCountsWithoutWorkflow(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{RequireApproval: false})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)

	_, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "42,00"), bookkeeper())
	require.NoError(t, err)

	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("42,00"), got.EndValue)
}

func TestSetApprovalValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Config{RequireApproval: true})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	record, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), bookkeeper())
	require.NoError(t, err)

	err = svc.SetApproval(ctx, record.ID, ApprovalStatus("PENDING"), bookkeeper())
	assert.ErrorIs(t, err, ErrInvalidApproval)

	controller := NewActor(5, CapRecordEdit)
	err = svc.SetApproval(ctx, record.ID, ApprovalApproved, controller)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateRecordPeriodMismatchSurfaced(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	record, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), bookkeeper())
	require.NoError(t, err)

	repo.SetRecordPeriod(record.ID, period.ID+40)

	err = svc.UpdateRecord(ctx, UpdateRecordInput{
		RecordID:    record.ID,
		Type:        RecordTypeCredit,
		Amount:      money.MustParse("11,00"),
		Description: "edited",
		RecordDate:  record.RecordDate,
		Actor:       bookkeeper(),
	})
	require.ErrorIs(t, err, ErrPeriodMismatch)
	assert.Equal(t, KindIntegrity, KindOf(err))

	// The mismatch is reported, never corrected in place.
	findings, err := repo.ListMismatchedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.ID, findings[0].RecordID)
	assert.Equal(t, period.ID, findings[0].AccountPeriodID)
}

func TestRecordsImmutableAfterPeriodClose(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	record, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), bookkeeper())
	require.NoError(t, err)

	require.NoError(t, svc.CloseAccount(ctx, account.ID, bookkeeper()))
	require.NoError(t, svc.ClosePeriod(ctx, period.ID, bookkeeper()))

	err = svc.UpdateRecord(ctx, UpdateRecordInput{
		RecordID:    record.ID,
		Type:        RecordTypeDebit,
		Amount:      money.MustParse("99,00"),
		Description: "tamper",
		RecordDate:  record.RecordDate,
		Actor:       bookkeeper(),
	})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.DeleteRecord(ctx, record.ID, bookkeeper()), ErrForbidden)
}

func TestDeleteRecordRecomputes(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	record, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "10,00"), bookkeeper())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRecord(ctx, record.ID, bookkeeper()))

	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RecordCount)
	assert.True(t, got.EndValue.IsZero())
}

func TestRecomputeIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	period := seedOpenPeriod(t, svc, "2026")
	account := seedAccount(t, svc, period.ID, 100, AccountTypeRevenue)
	_, err := svc.CreateRecord(ctx, draft(account.ID, RecordTypeCredit, "33,35"), bookkeeper())
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, draft(account.ID, RecordTypeDebit, "3,35"), bookkeeper())
	require.NoError(t, err)

	first, err := svc.RecomputeAccount(ctx, account.ID)
	require.NoError(t, err)
	second, err := svc.RecomputeAccount(ctx, account.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, money.MustParse("30,00"), second.EndValue)

	pAgg, err := svc.RecomputePeriod(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("30,00"), pAgg.EndValue)
	assert.Equal(t, 1, pAgg.AccountCount)
	assert.Equal(t, 2, pAgg.RecordCount)
}
