package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fiscaat/fiscaat/internal/ledger"
)

// AggregateRefresher re-derives cached period aggregates in the background,
// as a safety net on top of the per-mutation recomputation.
type AggregateRefresher struct {
	svc    *ledger.Service
	repo   ledger.RepositoryPort
	logger *slog.Logger
}

// NewAggregateRefresher wires the refresher.
func NewAggregateRefresher(svc *ledger.Service, repo ledger.RepositoryPort, logger *slog.Logger) *AggregateRefresher {
	return &AggregateRefresher{svc: svc, repo: repo, logger: logger}
}

// Handle processes TaskAggregatesRefresh tasks. A malformed payload is
// dropped rather than retried.
func (r *AggregateRefresher) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AggregatesRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.PeriodID != 0 {
		return r.refreshOne(ctx, payload.PeriodID)
	}
	periods, err := r.repo.ListPeriods(ctx)
	if err != nil {
		return err
	}
	for _, period := range periods {
		if err := r.refreshOne(ctx, period.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *AggregateRefresher) refreshOne(ctx context.Context, periodID int64) error {
	agg, err := r.svc.RecomputePeriod(ctx, periodID)
	if err != nil {
		return err
	}
	r.logger.Info("aggregates refreshed",
		slog.Int64("period_id", periodID),
		slog.Int("accounts", agg.AccountCount),
		slog.Int("records", agg.RecordCount),
		slog.String("end_value", agg.EndValue.String()))
	return nil
}
