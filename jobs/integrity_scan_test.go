package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

func seedLedger(t *testing.T) (*ledger.Service, *ledger.MemoryRepository, ledger.Record) {
	t.Helper()
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	svc := ledger.NewService(repo, nil, ledger.Config{})
	actor := ledger.NewActor(1, ledger.AllCapabilities()...)

	period, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "2026", Actor: actor})
	require.NoError(t, err)
	require.NoError(t, svc.OpenPeriod(ctx, period.ID, actor))

	account, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{
		PeriodID: period.ID, Title: "Bank", LedgerNumber: 102,
		Type: ledger.AccountTypeCapital, Actor: actor,
	})
	require.NoError(t, err)

	record, err := svc.CreateRecord(ctx, ledger.RecordDraft{
		AccountID:   account.ID,
		Type:        ledger.RecordTypeCredit,
		Amount:      money.MustParse("10,00"),
		Description: "entry",
		RecordDate:  time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}, actor)
	require.NoError(t, err)
	return svc, repo, record
}

func TestIntegrityScanReportsMismatch(t *testing.T) {
	_, repo, record := seedLedger(t)

	var buf bytes.Buffer
	scanner := NewIntegrityScanner(repo, slog.New(slog.NewTextHandler(&buf, nil)))

	findings, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)

	repo.SetRecordPeriod(record.ID, 99)

	findings, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, record.ID, findings[0].RecordID)
	assert.Equal(t, int64(99), findings[0].RecordPeriodID)
	assert.Contains(t, buf.String(), "record period mismatch")

	// The scan only reports; the record keeps its drifted reference.
	got, err := repo.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.PeriodID)
}

func TestAggregateRefresherHandle(t *testing.T) {
	svc, repo, record := seedLedger(t)
	ctx := context.Background()

	refresher := NewAggregateRefresher(svc, repo, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	task, err := NewAggregatesRefreshTask(AggregatesRefreshPayload{})
	require.NoError(t, err)
	require.NoError(t, refresher.Handle(ctx, task))

	account, err := repo.GetAccount(ctx, record.AccountID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("10,00"), account.EndValue)

	scoped, err := NewAggregatesRefreshTask(AggregatesRefreshPayload{PeriodID: account.PeriodID})
	require.NoError(t, err)
	assert.NoError(t, refresher.Handle(ctx, scoped))
}
