package ledger

import (
	"context"
	"fmt"

	"github.com/fiscaat/fiscaat/internal/shared"
)

// CreateRecord inserts a single record against an open account in the open
// period. The record's denormalized period reference is taken from the
// account at insert time.
func (s *Service) CreateRecord(ctx context.Context, draft RecordDraft, actor Actor) (Record, error) {
	if err := draft.Validate(); err != nil {
		return Record{}, err
	}
	if !actor.Can(CapRecordEdit) {
		return Record{}, fmt.Errorf("%w: %s", ErrForbidden, CapRecordEdit)
	}
	var record Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		account, err := tx.GetAccountForUpdate(ctx, draft.AccountID)
		if err != nil {
			return err
		}
		if account.Status != AccountStatusOpen {
			return ErrAccountClosed
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return ErrPeriodNotOpen
		}
		record, err = tx.InsertRecord(ctx, draft, account.PeriodID, ApprovalUnapproved)
		if err != nil {
			return err
		}
		return s.refreshAccountAndPeriodTx(ctx, tx, account)
	})
	if err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, actor.ID, "record.create", "record", record.ID, map[string]any{
		"account_id": record.AccountID,
		"type":       string(record.Type),
		"amount":     record.Amount.String(),
	})
	s.bumpCache(ctx)
	return record, nil
}

// UpdateRecord edits a record. History is immutable once the owning period
// closes. A denormalized period reference that no longer matches the
// account's period is surfaced, never silently re-synced.
func (s *Service) UpdateRecord(ctx context.Context, in UpdateRecordInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if !in.Actor.Can(CapRecordEdit) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapRecordEdit)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := tx.GetRecordForUpdate(ctx, in.RecordID)
		if err != nil {
			return err
		}
		account, err := tx.GetAccountForUpdate(ctx, record.AccountID)
		if err != nil {
			return err
		}
		if record.PeriodID != account.PeriodID {
			return fmt.Errorf("%w: record %d has period %d, account %d has period %d",
				ErrPeriodMismatch, record.ID, record.PeriodID, account.ID, account.PeriodID)
		}
		if account.Status != AccountStatusOpen {
			return ErrAccountClosed
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: period %d is closed", ErrForbidden, period.ID)
		}
		if err := tx.UpdateRecord(ctx, in); err != nil {
			return err
		}
		return s.refreshAccountAndPeriodTx(ctx, tx, account)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, in.Actor.ID, "record.update", "record", in.RecordID, nil)
	s.bumpCache(ctx)
	return nil
}

// SetApproval moves a record through the control workflow. All transitions
// between the three states are valid; each one re-derives the owning
// account's and period's aggregates since approval gates balance inclusion.
func (s *Service) SetApproval(ctx context.Context, recordID int64, status ApprovalStatus, actor Actor) error {
	if !ValidApproval(status) {
		return fmt.Errorf("%w: %q", ErrInvalidApproval, status)
	}
	if !actor.Can(CapControl) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapControl)
	}
	var previous ApprovalStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		previous = record.Approval
		account, err := tx.GetAccountForUpdate(ctx, record.AccountID)
		if err != nil {
			return err
		}
		if err := tx.UpdateRecordApproval(ctx, recordID, status); err != nil {
			return err
		}
		return s.refreshAccountAndPeriodTx(ctx, tx, account)
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			RecordID: recordID,
			ActorID:  actor.ID,
			Action:   approvalAction(status),
			Note:     fmt.Sprintf("from %s", previous),
			At:       s.now(),
		})
	}
	s.recordAudit(ctx, actor.ID, "record.approval", "record", recordID, map[string]any{
		"from": string(previous),
		"to":   string(status),
	})
	s.bumpCache(ctx)
	return nil
}

func approvalAction(status ApprovalStatus) shared.ApprovalAction {
	switch status {
	case ApprovalApproved:
		return shared.ApprovalApprove
	case ApprovalDeclined:
		return shared.ApprovalDecline
	default:
		return shared.ApprovalReopen
	}
}

// DeleteRecord removes a record and re-derives the owning aggregates.
// Records of a closed period are immutable.
func (s *Service) DeleteRecord(ctx context.Context, recordID int64, actor Actor) error {
	if !actor.Can(CapRecordDelete) {
		return fmt.Errorf("%w: %s", ErrForbidden, CapRecordDelete)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		record, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		account, err := tx.GetAccountForUpdate(ctx, record.AccountID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, account.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: period %d is closed", ErrForbidden, period.ID)
		}
		if err := tx.DeleteRecord(ctx, recordID); err != nil {
			return err
		}
		return s.refreshAccountAndPeriodTx(ctx, tx, account)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "record.delete", "record", recordID, nil)
	s.bumpCache(ctx)
	return nil
}
