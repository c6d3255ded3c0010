package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/platform/db"
	"github.com/fiscaat/fiscaat/internal/shared"
)

func newRecomputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <period-id>",
		Short: "Re-derive the cached aggregates of a period and its accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			periodID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("period id %q: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := ledger.NewRepository(pool)
			svc := ledger.NewService(repo, shared.NewAuditLogger(pool), ledger.Config{RequireApproval: cfg.RequireApproval})
			agg, err := svc.RecomputePeriod(ctx, periodID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "period %d: %d accounts, %d records, end value %s\n",
				periodID, agg.AccountCount, agg.RecordCount, agg.EndValue.Format(true))
			return nil
		},
	}
}
