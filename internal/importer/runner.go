package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fiscaat/fiscaat/internal/ledger"
)

// AccountLister is the slice of the ledger repository the runner needs to
// resolve ledger numbers to account ids.
type AccountLister interface {
	ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]ledger.Account, error)
}

// Report summarises one import run.
type Report struct {
	PeriodID        int64
	AccountsCreated int
	RecordsImported int
}

// Runner replays a parsed batch through the ledger service. Missing accounts
// are created first; the records then commit atomically, so an unbalanced or
// partially invalid file imports nothing.
type Runner struct {
	svc    *ledger.Service
	lister AccountLister
	logger *slog.Logger
}

// NewRunner wires the runner.
func NewRunner(svc *ledger.Service, lister AccountLister, logger *slog.Logger) *Runner {
	return &Runner{svc: svc, lister: lister, logger: logger}
}

// Run imports one file into the currently open period.
func (r *Runner) Run(ctx context.Context, source Source, input io.Reader, actor ledger.Actor) (Report, error) {
	batch, err := source.Parse(input)
	if err != nil {
		return Report{}, err
	}
	if len(batch.Records) == 0 {
		return Report{}, nil
	}

	period, err := r.svc.GetCurrentOpenPeriod(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("import needs an open period: %w", err)
	}
	report := Report{PeriodID: period.ID}

	existing, err := r.lister.ListAccountsOfPeriod(ctx, period.ID)
	if err != nil {
		return Report{}, err
	}
	byNumber := make(map[int]int64, len(existing))
	for _, account := range existing {
		byNumber[account.LedgerNumber] = account.ID
	}

	for _, line := range batch.Accounts {
		if _, ok := byNumber[line.LedgerNumber]; ok {
			continue
		}
		account, err := r.svc.CreateAccount(ctx, ledger.CreateAccountInput{
			PeriodID:     period.ID,
			Title:        line.Title,
			LedgerNumber: line.LedgerNumber,
			Type:         line.Type,
			Actor:        actor,
		})
		if err != nil {
			return Report{}, fmt.Errorf("account %d %q: %w", line.LedgerNumber, line.Title, err)
		}
		byNumber[line.LedgerNumber] = account.ID
		report.AccountsCreated++
		r.logger.Info("import created account",
			slog.Int("ledger_number", line.LedgerNumber),
			slog.String("title", line.Title))
	}

	drafts := make([]ledger.RecordDraft, 0, len(batch.Records))
	for _, line := range batch.Records {
		drafts = append(drafts, ledger.RecordDraft{
			AccountID:     byNumber[line.LedgerNumber],
			Type:          line.Type,
			Amount:        line.Amount,
			Description:   line.Description,
			RecordDate:    line.Date,
			OffsetAccount: line.OffsetAccount,
		})
	}
	records, err := r.svc.CommitBatch(ctx, drafts, actor)
	if err != nil {
		return Report{}, err
	}
	report.RecordsImported = len(records)

	r.logger.Info("import committed",
		slog.Int64("period_id", period.ID),
		slog.Int("accounts_created", report.AccountsCreated),
		slog.Int("records", report.RecordsImported))
	return report, nil
}
