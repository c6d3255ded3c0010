package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fiscaat/fiscaat/internal/money"
	"github.com/fiscaat/fiscaat/internal/platform/db"
)

const periodColumns = `id, title, status, opened_at, closed_at, closed_by,
account_count, record_count, record_count_declined, record_count_unapproved,
end_value, created_at, updated_at`

const accountColumns = `id, period_id, ledger_number, title, type, status,
record_count, record_count_declined, record_count_unapproved,
start_value, end_value, created_at, updated_at`

const recordColumns = `id, account_id, period_id, type, amount, description,
record_date, offset_account, approval, created_at, updated_at`

// Repository is the Postgres implementation of RepositoryPort. Amounts are
// stored as integer cents (BIGINT).
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the Postgres repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn inside a repeatable-read transaction, rolling back on any
// error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (Period, error) {
	var p Period
	var endValue int64
	err := row.Scan(&p.ID, &p.Title, &p.Status, &p.OpenedAt, &p.ClosedAt, &p.ClosedBy,
		&p.AccountCount, &p.RecordCount, &p.RecordCountDeclined, &p.RecordCountUnapproved,
		&endValue, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	p.EndValue = money.FromCents(endValue)
	return p, nil
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	var startValue, endValue int64
	err := row.Scan(&a.ID, &a.PeriodID, &a.LedgerNumber, &a.Title, &a.Type, &a.Status,
		&a.RecordCount, &a.RecordCountDeclined, &a.RecordCountUnapproved,
		&startValue, &endValue, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.StartValue = money.FromCents(startValue)
	a.EndValue = money.FromCents(endValue)
	return a, nil
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var amount int64
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.PeriodID, &rec.Type, &amount, &rec.Description,
		&rec.RecordDate, &rec.OffsetAccount, &rec.Approval, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Amount = money.FromCents(amount)
	return rec, nil
}

func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *Repository) GetOpenPeriod(ctx context.Context) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE status='OPEN' LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *Repository) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *Repository) ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error) {
	return listAccounts(ctx, r.db, periodID)
}

func (r *Repository) ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error) {
	return listRecords(ctx, r.db, accountID)
}

// ListMismatchedRecords surfaces records whose denormalized period reference
// drifted from their account's period. The finding is reported, never
// auto-corrected.
func (r *Repository) ListMismatchedRecords(ctx context.Context) ([]IntegrityFinding, error) {
	rows, err := r.db.Query(ctx, `SELECT r.id, r.account_id, r.period_id, a.period_id
FROM records r JOIN accounts a ON a.id = r.account_id
WHERE r.period_id <> a.period_id ORDER BY r.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var findings []IntegrityFinding
	for rows.Next() {
		var f IntegrityFinding
		if err := rows.Scan(&f.RecordID, &f.AccountID, &f.RecordPeriodID, &f.AccountPeriodID); err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listAccounts(ctx context.Context, q pgxQuerier, periodID int64) ([]Account, error) {
	// Ledger number ascending, ties broken by title.
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE period_id=$1 ORDER BY ledger_number ASC, title ASC`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func listRecords(ctx context.Context, q pgxQuerier, accountID int64) ([]Record, error) {
	rows, err := q.Query(ctx, `SELECT `+recordColumns+` FROM records
WHERE account_id=$1 ORDER BY record_date ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepository) HasOpenPeriod(ctx context.Context, exceptID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM periods WHERE status='OPEN' AND id <> $1)`, exceptID).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasOpenAccounts(ctx context.Context, periodID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE period_id=$1 AND status='OPEN')`, periodID).Scan(&exists)
	return exists, err
}

func (r *txRepository) FindAccountByLedgerNumber(ctx context.Context, periodID int64, ledgerNumber int, exceptID int64) (Account, bool, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE period_id=$1 AND ledger_number=$2 AND id <> $3 LIMIT 1`, periodID, ledgerNumber, exceptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	return a, true, nil
}

func (r *txRepository) GetPreviousPeriod(ctx context.Context, periodID int64) (Period, bool, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE created_at < (SELECT created_at FROM periods WHERE id=$1)
ORDER BY created_at DESC LIMIT 1`, periodID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, false, nil
	}
	if err != nil {
		return Period{}, false, err
	}
	return p, true, nil
}

func (r *txRepository) CountRecordsOfPeriod(ctx context.Context, periodID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE period_id=$1`, periodID).Scan(&count)
	return count, err
}

func (r *txRepository) CountRecordsOfAccount(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE account_id=$1`, accountID).Scan(&count)
	return count, err
}

func (r *txRepository) ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error) {
	return listAccounts(ctx, r.tx, periodID)
}

func (r *txRepository) ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error) {
	return listRecords(ctx, r.tx, accountID)
}

func (r *txRepository) InsertPeriod(ctx context.Context, title string, status PeriodStatus, openedAt *time.Time) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO periods (title, status, opened_at)
VALUES ($1, $2, $3) RETURNING `+periodColumns, title, status, openedAt))
}

func (r *txRepository) UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error {
	query := `UPDATE periods SET status=$2, opened_at=$3, closed_at=NULL, closed_by=NULL, updated_at=NOW() WHERE id=$1`
	args := []any{id, status, at}
	if status == PeriodStatusClosed {
		query = `UPDATE periods SET status=$2, closed_at=$3, closed_by=$4, updated_at=NOW() WHERE id=$1`
		args = append(args, actorID)
	}
	cmd, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) DeletePeriod(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM periods WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput, startValue money.Amount) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (period_id, ledger_number, title, type, status, start_value, end_value)
VALUES ($1, $2, $3, $4, 'OPEN', $5, $5) RETURNING `+accountColumns,
		in.PeriodID, in.LedgerNumber, in.Title, in.Type, startValue.Cents()))
	if err != nil {
		return Account{}, mapLedgerConstraint(err)
	}
	return a, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, id int64, title string, ledgerNumber int) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET title=$2, ledger_number=$3, updated_at=NOW() WHERE id=$1`,
		id, title, ledgerNumber)
	if err != nil {
		return mapLedgerConstraint(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) InsertRecord(ctx context.Context, draft RecordDraft, periodID int64, approval ApprovalStatus) (Record, error) {
	return scanRecord(r.tx.QueryRow(ctx, `INSERT INTO records (account_id, period_id, type, amount, description, record_date, offset_account, approval)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+recordColumns,
		draft.AccountID, periodID, draft.Type, draft.Amount.Cents(), draft.Description,
		draft.RecordDate, draft.OffsetAccount, approval))
}

func (r *txRepository) UpdateRecord(ctx context.Context, in UpdateRecordInput) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE records SET type=$2, amount=$3, description=$4, record_date=$5, offset_account=$6, updated_at=NOW()
WHERE id=$1`, in.RecordID, in.Type, in.Amount.Cents(), in.Description, in.RecordDate, in.OffsetAccount)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *txRepository) UpdateRecordApproval(ctx context.Context, id int64, status ApprovalStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE records SET approval=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *txRepository) DeleteRecord(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM records WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *txRepository) SaveAccountAggregates(ctx context.Context, id int64, agg AccountAggregates) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts
SET record_count=$2, record_count_declined=$3, record_count_unapproved=$4, start_value=$5, end_value=$6, updated_at=NOW()
WHERE id=$1`, id, agg.RecordCount, agg.RecordCountDeclined, agg.RecordCountUnapproved,
		agg.StartValue.Cents(), agg.EndValue.Cents())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) SavePeriodAggregates(ctx context.Context, id int64, agg PeriodAggregates) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE periods
SET account_count=$2, record_count=$3, record_count_declined=$4, record_count_unapproved=$5, end_value=$6, updated_at=NOW()
WHERE id=$1`, id, agg.AccountCount, agg.RecordCount, agg.RecordCountDeclined, agg.RecordCountUnapproved,
		agg.EndValue.Cents())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// mapLedgerConstraint translates the unique-constraint violation on
// (period_id, ledger_number) into the domain error.
func mapLedgerConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_period_ledger" {
		return ErrDuplicateLedgerNumber
	}
	return err
}
