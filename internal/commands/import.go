package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscaat/fiscaat/internal/app"
	"github.com/fiscaat/fiscaat/internal/importer"
	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/platform/db"
	"github.com/fiscaat/fiscaat/internal/shared"
)

func newImportCommand() *cobra.Command {
	var (
		format  string
		actorID int64
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a bookkeeping export into the open period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)

			source := importer.DefaultRegistry().Get(format)
			if source == nil {
				return fmt.Errorf("unknown import format %q", format)
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()

			actor := ledger.NewActor(actorID, ledger.AllCapabilities()...)
			ctx := cmd.Context()

			if dryRun {
				// Replays the file against an in-memory ledger with a fresh
				// open period, so format and balance errors surface without
				// touching the database.
				repo := ledger.NewMemoryRepository()
				svc := ledger.NewService(repo, nil, ledger.Config{RequireApproval: cfg.RequireApproval})
				period, err := svc.CreatePeriod(ctx, ledger.CreatePeriodInput{Title: "dry-run", Actor: actor})
				if err != nil {
					return err
				}
				if err := svc.OpenPeriod(ctx, period.ID, actor); err != nil {
					return err
				}
				report, err := importer.NewRunner(svc, repo, logger).Run(ctx, source, file, actor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dry run ok: %d accounts, %d records\n",
					report.AccountsCreated, report.RecordsImported)
				return nil
			}

			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := ledger.NewRepository(pool)
			svc := ledger.NewService(repo, shared.NewAuditLogger(pool), ledger.Config{RequireApproval: cfg.RequireApproval})
			report, err := importer.NewRunner(svc, repo, logger).Run(ctx, source, file, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into period %d (%d accounts created) at %s\n",
				report.RecordsImported, report.PeriodID, report.AccountsCreated,
				time.Now().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "import format")
	cmd.Flags().Int64Var(&actorID, "actor", 1, "acting user id for the audit trail")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}
