package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fiscaat/fiscaat/internal/app"
	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/platform/db"
	"github.com/fiscaat/fiscaat/jobs"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Scan for records whose period reference drifted from their account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			ctx := cmd.Context()

			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := ledger.NewRepository(pool)
			findings, err := jobs.NewIntegrityScanner(repo, logger).Scan(ctx)
			if err != nil {
				return err
			}
			if len(findings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok: no mismatched records")
				return nil
			}
			for _, f := range findings {
				fmt.Fprintln(cmd.OutOrStdout(), f.String())
			}
			return fmt.Errorf("%d mismatched record(s)", len(findings))
		},
	}
}
