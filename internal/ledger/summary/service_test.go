package summary

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

func newTestStack(t *testing.T) (*ledger.Service, *Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, time.Minute)
	repo := ledger.NewMemoryRepository()
	svc := ledger.NewService(repo, nil, ledger.Config{})
	svc.WithInvalidator(cache)
	return svc, NewService(repo, cache), cache
}

func actor() ledger.Actor {
	return ledger.NewActor(1, ledger.AllCapabilities()...)
}

func seedPeriod(t *testing.T, svc *ledger.Service) (ledger.Period, ledger.Account) {
	t.Helper()
	ctx := context.Background()
	period, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "2026", Actor: actor()})
	require.NoError(t, err)
	require.NoError(t, svc.OpenPeriod(ctx, period.ID, actor()))
	account, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{
		PeriodID:     period.ID,
		Title:        "Bank",
		LedgerNumber: 102,
		Type:         ledger.AccountTypeCapital,
		Actor:        actor(),
	})
	require.NoError(t, err)
	return period, account
}

func TestPeriodSummary(t *testing.T) {
	svc, reads, _ := newTestStack(t)
	ctx := context.Background()

	period, account := seedPeriod(t, svc)
	_, err := svc.CreateRecord(ctx, ledger.RecordDraft{
		AccountID:   account.ID,
		Type:        ledger.RecordTypeCredit,
		Amount:      money.MustParse("1234,50"),
		Description: "opening deposit",
		RecordDate:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}, actor())
	require.NoError(t, err)

	got, err := reads.PeriodSummary(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, period.ID, got.PeriodID)
	assert.Equal(t, 1, got.AccountCount)
	assert.Equal(t, 1, got.RecordCount)
	assert.Equal(t, money.MustParse("1234,50"), got.EndValue)
	assert.Contains(t, got.Display, "€")
	assert.Contains(t, got.Display, "1.234,50")
}

func TestAccountBalancesOrderedByLedgerNumber(t *testing.T) {
	svc, reads, _ := newTestStack(t)
	ctx := context.Background()

	period, _ := seedPeriod(t, svc)
	_, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{
		PeriodID: period.ID, Title: "Sales", LedgerNumber: 800,
		Type: ledger.AccountTypeRevenue, Actor: actor(),
	})
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, ledger.CreateAccountInput{
		PeriodID: period.ID, Title: "Cash", LedgerNumber: 100,
		Type: ledger.AccountTypeCapital, Actor: actor(),
	})
	require.NoError(t, err)

	balances, err := reads.AccountBalances(ctx, period.ID)
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.Equal(t, []int{100, 102, 800}, []int{
		balances[0].LedgerNumber, balances[1].LedgerNumber, balances[2].LedgerNumber,
	})
}

func TestMutationsInvalidateCache(t *testing.T) {
	svc, reads, _ := newTestStack(t)
	ctx := context.Background()

	period, account := seedPeriod(t, svc)

	before, err := reads.PeriodSummary(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, before.RecordCount)

	// The write service bumps the cache version, so the next read sees the
	// new record without waiting for TTL expiry.
	_, err = svc.CreateRecord(ctx, ledger.RecordDraft{
		AccountID:   account.ID,
		Type:        ledger.RecordTypeDebit,
		Amount:      money.MustParse("5,00"),
		Description: "bank fee",
		RecordDate:  time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	}, actor())
	require.NoError(t, err)

	after, err := reads.PeriodSummary(ctx, period.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.RecordCount)
	assert.Equal(t, money.MustParse("-5,00"), after.EndValue)
}

func TestPeriodSummariesListsAll(t *testing.T) {
	svc, reads, _ := newTestStack(t)
	ctx := context.Background()

	seedPeriod(t, svc)
	second, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "2027", Actor: actor()})
	require.NoError(t, err)

	summaries, err := reads.PeriodSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "2026", summaries[0].Title)
	assert.Equal(t, second.ID, summaries[1].PeriodID)
	assert.Equal(t, ledger.PeriodStatusClosed, summaries[1].Status)
}
