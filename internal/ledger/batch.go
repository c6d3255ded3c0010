package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fiscaat/fiscaat/internal/money"
)

// BatchItemError names a failing draft by its index in the batch.
type BatchItemError struct {
	Index int
	Err   error
}

func (e BatchItemError) Error() string {
	return fmt.Sprintf("draft %d: %v", e.Index, e.Err)
}

// BatchError aggregates every per-draft failure plus an optional sum
// mismatch. A batch either commits whole or not at all.
type BatchError struct {
	Items       []BatchItemError
	SumMismatch bool
	DebitSum    money.Amount
	CreditSum   money.Amount
}

func (e *BatchError) Error() string {
	var parts []string
	if e.SumMismatch {
		parts = append(parts, fmt.Sprintf("debit sum %s != credit sum %s", e.DebitSum, e.CreditSum))
	}
	for _, item := range e.Items {
		parts = append(parts, item.Error())
	}
	return "ledger: batch rejected: " + strings.Join(parts, "; ")
}

func (e *BatchError) failed() bool {
	return e.SumMismatch || len(e.Items) > 0
}

// CommitBatch inserts a set of records atomically. Every draft is validated
// individually and the debit and credit totals must balance across the whole
// batch; on any failure nothing is committed and the returned BatchError
// lists all failing indices. On success each affected account is recomputed
// once, not once per record.
func (s *Service) CommitBatch(ctx context.Context, drafts []RecordDraft, actor Actor) ([]Record, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMissingField)
	}
	if !actor.Can(CapRecordEdit) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, CapRecordEdit)
	}

	batchErr := &BatchError{}
	for i, draft := range drafts {
		if err := draft.Validate(); err != nil {
			batchErr.Items = append(batchErr.Items, BatchItemError{Index: i, Err: err})
			continue
		}
		switch draft.Type {
		case RecordTypeDebit:
			batchErr.DebitSum = batchErr.DebitSum.Add(draft.Amount)
		case RecordTypeCredit:
			batchErr.CreditSum = batchErr.CreditSum.Add(draft.Amount)
		}
	}
	if len(batchErr.Items) == 0 && !batchErr.DebitSum.Equal(batchErr.CreditSum) {
		batchErr.SumMismatch = true
	}
	if batchErr.failed() {
		return nil, batchErr
	}

	batchID := uuid.New()
	records := make([]Record, 0, len(drafts))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		records = records[:0]
		accounts := make(map[int64]Account)

		// Per-draft account checks collected first so the caller sees every
		// failing index, not just the first.
		txErr := &BatchError{DebitSum: batchErr.DebitSum, CreditSum: batchErr.CreditSum}
		for i, draft := range drafts {
			account, ok := accounts[draft.AccountID]
			if !ok {
				var err error
				account, err = tx.GetAccountForUpdate(ctx, draft.AccountID)
				if err != nil {
					txErr.Items = append(txErr.Items, BatchItemError{Index: i, Err: err})
					continue
				}
				accounts[draft.AccountID] = account
			}
			if account.Status != AccountStatusOpen {
				txErr.Items = append(txErr.Items, BatchItemError{Index: i, Err: ErrAccountClosed})
				continue
			}
			period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
			if err != nil {
				txErr.Items = append(txErr.Items, BatchItemError{Index: i, Err: err})
				continue
			}
			if period.Status != PeriodStatusOpen {
				txErr.Items = append(txErr.Items, BatchItemError{Index: i, Err: ErrPeriodNotOpen})
			}
		}
		if txErr.failed() {
			return txErr
		}

		for _, draft := range drafts {
			account := accounts[draft.AccountID]
			record, err := tx.InsertRecord(ctx, draft, account.PeriodID, ApprovalUnapproved)
			if err != nil {
				return err
			}
			records = append(records, record)
		}

		// One recomputation pass per affected account, then per period.
		periods := make(map[int64]struct{})
		for _, account := range accounts {
			if _, err := s.recomputeAccountTx(ctx, tx, account); err != nil {
				return err
			}
			periods[account.PeriodID] = struct{}{}
		}
		for periodID := range periods {
			if _, err := s.recomputePeriodTx(ctx, tx, periodID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actor.ID, "record.batch", "batch", 0, map[string]any{
		"batch_id":   batchID.String(),
		"records":    len(records),
		"debit_sum":  batchErr.DebitSum.String(),
		"credit_sum": batchErr.CreditSum.String(),
	})
	s.bumpCache(ctx)
	return records, nil
}
