package importer

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

const sampleCSV = `ledger;title;type;side;amount;description;date;offset
102;Bank;CAPITAL;C;1.234,50;contributie januari;05-01-2026;leden
800;Contributie;REVENUE;D;1.234,50;contributie januari;05-01-2026;leden
102;Bank;CAPITAL;D;50,00;zaalhuur;12-01-2026;dorpshuis
430;Zaalhuur;REVENUE;C;50,00;zaalhuur;12-01-2026;dorpshuis
`

func TestCSVSourceParse(t *testing.T) {
	var src CSVSource
	batch, err := src.Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Len(t, batch.Accounts, 3)
	assert.Equal(t, AccountLine{LedgerNumber: 102, Title: "Bank", Type: ledger.AccountTypeCapital}, batch.Accounts[0])

	require.Len(t, batch.Records, 4)
	first := batch.Records[0]
	assert.Equal(t, 102, first.LedgerNumber)
	assert.Equal(t, ledger.RecordTypeCredit, first.Type)
	assert.Equal(t, money.MustParse("1234,50"), first.Amount)
	assert.Equal(t, "contributie januari", first.Description)
	assert.Equal(t, 2026, first.Date.Year())
}

func TestCSVSourceRejects(t *testing.T) {
	var src CSVSource
	cases := map[string]string{
		"bad ledger number": "ledger;title;type;side;amount;description;date;offset\nx;Bank;CAPITAL;C;1,00;d;05-01-2026;o\n",
		"bad side":          "ledger;title;type;side;amount;description;date;offset\n102;Bank;CAPITAL;X;1,00;d;05-01-2026;o\n",
		"bad amount":        "ledger;title;type;side;amount;description;date;offset\n102;Bank;CAPITAL;C;geen;d;05-01-2026;o\n",
		"bad date":          "ledger;title;type;side;amount;description;date;offset\n102;Bank;CAPITAL;C;1,00;d;2026/01/05;o\n",
		"redefined account": "ledger;title;type;side;amount;description;date;offset\n102;Bank;CAPITAL;C;1,00;d;05-01-2026;o\n102;Kas;CAPITAL;D;1,00;d;05-01-2026;o\n",
	}
	for name, input := range cases {
		_, err := src.Parse(strings.NewReader(input))
		assert.Error(t, err, name)
	}
}

func newRunner(t *testing.T) (*Runner, *ledger.Service, *ledger.MemoryRepository) {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	svc := ledger.NewService(repo, nil, ledger.Config{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(svc, repo, logger), svc, repo
}

func importActor() ledger.Actor {
	return ledger.NewActor(3, ledger.AllCapabilities()...)
}

func TestRunnerImportsBalancedFile(t *testing.T) {
	runner, svc, repo := newRunner(t)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "2026", Actor: importActor()})
	require.NoError(t, err)
	require.NoError(t, svc.OpenPeriod(ctx, period.ID, importActor()))

	report, err := runner.Run(ctx, &CSVSource{}, strings.NewReader(sampleCSV), importActor())
	require.NoError(t, err)
	assert.Equal(t, period.ID, report.PeriodID)
	assert.Equal(t, 3, report.AccountsCreated)
	assert.Equal(t, 4, report.RecordsImported)

	accounts, err := repo.ListAccountsOfPeriod(ctx, period.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, money.MustParse("1184,50"), accounts[0].EndValue) // bank: +1234,50 -50,00

	// Re-running the same file reuses the accounts.
	report, err = runner.Run(ctx, &CSVSource{}, strings.NewReader(sampleCSV), importActor())
	require.NoError(t, err)
	assert.Equal(t, 0, report.AccountsCreated)
}

func TestRunnerRequiresOpenPeriod(t *testing.T) {
	runner, _, _ := newRunner(t)
	_, err := runner.Run(context.Background(), &CSVSource{}, strings.NewReader(sampleCSV), importActor())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPeriodNotFound)
}

func TestRunnerUnbalancedFileImportsNothing(t *testing.T) {
	runner, svc, repo := newRunner(t)
	ctx := context.Background()

	period, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "2026", Actor: importActor()})
	require.NoError(t, err)
	require.NoError(t, svc.OpenPeriod(ctx, period.ID, importActor()))

	unbalanced := "ledger;title;type;side;amount;description;date;offset\n" +
		"102;Bank;CAPITAL;C;150,00;d;05-01-2026;o\n" +
		"800;Contributie;REVENUE;D;149,99;d;05-01-2026;o\n"

	_, err = runner.Run(ctx, &CSVSource{}, strings.NewReader(unbalanced), importActor())
	require.Error(t, err)
	var batchErr *ledger.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.True(t, batchErr.SumMismatch)

	// Accounts were created before the batch was rejected, but no records.
	accounts, err := repo.ListAccountsOfPeriod(ctx, period.ID)
	require.NoError(t, err)
	for _, a := range accounts {
		assert.Equal(t, 0, a.RecordCount)
	}
}
