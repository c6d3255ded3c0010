package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fiscaat/fiscaat/internal/money"
)

// MemoryRepository is an in-memory implementation of RepositoryPort backing
// tests and the importer's dry-run mode. WithTx operates on a copy of the
// state and swaps it in on success, so a failed transaction leaves nothing
// behind.
type MemoryRepository struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	periods     map[int64]Period
	accounts    map[int64]Account
	records     map[int64]Record
	periodOrder []int64
	nextPeriod  int64
	nextAccount int64
	nextRecord  int64
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: memState{
			periods:     make(map[int64]Period),
			accounts:    make(map[int64]Account),
			records:     make(map[int64]Record),
			nextPeriod:  1,
			nextAccount: 1,
			nextRecord:  1,
		},
		now: time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (r *MemoryRepository) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

func (s memState) clone() memState {
	out := memState{
		periods:     make(map[int64]Period, len(s.periods)),
		accounts:    make(map[int64]Account, len(s.accounts)),
		records:     make(map[int64]Record, len(s.records)),
		periodOrder: append([]int64(nil), s.periodOrder...),
		nextPeriod:  s.nextPeriod,
		nextAccount: s.nextAccount,
		nextRecord:  s.nextRecord,
	}
	for id, p := range s.periods {
		out.periods[id] = p
	}
	for id, a := range s.accounts {
		out.accounts[id] = a
	}
	for id, rec := range s.records {
		out.records[id] = rec
	}
	return out
}

// WithTx runs fn against a staged copy of the state, committing it only when
// fn succeeds.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	tx := &memTx{state: &staged, now: r.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *MemoryRepository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.state.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *MemoryRepository) GetRecord(ctx context.Context, id int64) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.state.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) GetOpenPeriod(ctx context.Context) (Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.state.periodOrder {
		if p := r.state.periods[id]; p.Status == PeriodStatusOpen {
			return p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (r *MemoryRepository) ListPeriods(ctx context.Context) ([]Period, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	periods := make([]Period, 0, len(r.state.periodOrder))
	for _, id := range r.state.periodOrder {
		periods = append(periods, r.state.periods[id])
	}
	return periods, nil
}

func (r *MemoryRepository) ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.accountsOfPeriod(periodID), nil
}

func (r *MemoryRepository) ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.recordsOfAccount(accountID), nil
}

func (r *MemoryRepository) ListMismatchedRecords(ctx context.Context) ([]IntegrityFinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var findings []IntegrityFinding
	for _, rec := range r.state.records {
		account, ok := r.state.accounts[rec.AccountID]
		if !ok {
			continue
		}
		if rec.PeriodID != account.PeriodID {
			findings = append(findings, IntegrityFinding{
				RecordID:        rec.ID,
				AccountID:       rec.AccountID,
				RecordPeriodID:  rec.PeriodID,
				AccountPeriodID: account.PeriodID,
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].RecordID < findings[j].RecordID })
	return findings, nil
}

// SetRecordPeriod rewrites a record's denormalized period reference without
// touching its account. Used to stage integrity findings in tests.
func (r *MemoryRepository) SetRecordPeriod(recordID, periodID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.state.records[recordID]; ok {
		rec.PeriodID = periodID
		r.state.records[recordID] = rec
	}
}

func (s *memState) accountsOfPeriod(periodID int64) []Account {
	var accounts []Account
	for _, a := range s.accounts {
		if a.PeriodID == periodID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].LedgerNumber != accounts[j].LedgerNumber {
			return accounts[i].LedgerNumber < accounts[j].LedgerNumber
		}
		return accounts[i].Title < accounts[j].Title
	})
	return accounts
}

func (s *memState) recordsOfAccount(accountID int64) []Record {
	var records []Record
	for _, rec := range s.records {
		if rec.AccountID == accountID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].RecordDate.Equal(records[j].RecordDate) {
			return records[i].RecordDate.Before(records[j].RecordDate)
		}
		return records[i].ID < records[j].ID
	})
	return records
}

type memTx struct {
	state *memState
	now   func() time.Time
}

func (t *memTx) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	p, ok := t.state.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (t *memTx) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, ok := t.state.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (t *memTx) HasOpenPeriod(ctx context.Context, exceptID int64) (bool, error) {
	for id, p := range t.state.periods {
		if id != exceptID && p.Status == PeriodStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasOpenAccounts(ctx context.Context, periodID int64) (bool, error) {
	for _, a := range t.state.accounts {
		if a.PeriodID == periodID && a.Status == AccountStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) FindAccountByLedgerNumber(ctx context.Context, periodID int64, ledgerNumber int, exceptID int64) (Account, bool, error) {
	for _, a := range t.state.accountsOfPeriod(periodID) {
		if a.LedgerNumber == ledgerNumber && a.ID != exceptID {
			return a, true, nil
		}
	}
	return Account{}, false, nil
}

func (t *memTx) GetPreviousPeriod(ctx context.Context, periodID int64) (Period, bool, error) {
	prev := int64(0)
	for _, id := range t.state.periodOrder {
		if id == periodID {
			break
		}
		prev = id
	}
	if prev == 0 {
		return Period{}, false, nil
	}
	return t.state.periods[prev], true, nil
}

func (t *memTx) CountRecordsOfPeriod(ctx context.Context, periodID int64) (int, error) {
	count := 0
	for _, rec := range t.state.records {
		if rec.PeriodID == periodID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) CountRecordsOfAccount(ctx context.Context, accountID int64) (int, error) {
	count := 0
	for _, rec := range t.state.records {
		if rec.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]Account, error) {
	return t.state.accountsOfPeriod(periodID), nil
}

func (t *memTx) ListRecordsOfAccount(ctx context.Context, accountID int64) ([]Record, error) {
	return t.state.recordsOfAccount(accountID), nil
}

func (t *memTx) InsertPeriod(ctx context.Context, title string, status PeriodStatus, openedAt *time.Time) (Period, error) {
	now := t.now()
	p := Period{
		ID:        t.state.nextPeriod,
		Title:     title,
		Status:    status,
		OpenedAt:  openedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.state.nextPeriod++
	t.state.periods[p.ID] = p
	t.state.periodOrder = append(t.state.periodOrder, p.ID)
	return p, nil
}

func (t *memTx) UpdatePeriodStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error {
	p, ok := t.state.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = status
	p.UpdatedAt = t.now()
	if status == PeriodStatusClosed {
		p.ClosedAt = &at
		p.ClosedBy = &actorID
	} else {
		p.OpenedAt = &at
		p.ClosedAt = nil
		p.ClosedBy = nil
	}
	t.state.periods[id] = p
	return nil
}

func (t *memTx) DeletePeriod(ctx context.Context, id int64) error {
	if _, ok := t.state.periods[id]; !ok {
		return ErrPeriodNotFound
	}
	delete(t.state.periods, id)
	for i, pid := range t.state.periodOrder {
		if pid == id {
			t.state.periodOrder = append(t.state.periodOrder[:i], t.state.periodOrder[i+1:]...)
			break
		}
	}
	// Cascade, matching the schema's ON DELETE CASCADE.
	for aid, a := range t.state.accounts {
		if a.PeriodID == id {
			delete(t.state.accounts, aid)
		}
	}
	for rid, rec := range t.state.records {
		if rec.PeriodID == id {
			delete(t.state.records, rid)
		}
	}
	return nil
}

func (t *memTx) InsertAccount(ctx context.Context, in CreateAccountInput, startValue money.Amount) (Account, error) {
	if _, taken, _ := t.FindAccountByLedgerNumber(ctx, in.PeriodID, in.LedgerNumber, 0); taken {
		return Account{}, ErrDuplicateLedgerNumber
	}
	now := t.now()
	a := Account{
		ID:           t.state.nextAccount,
		PeriodID:     in.PeriodID,
		LedgerNumber: in.LedgerNumber,
		Title:        in.Title,
		Type:         in.Type,
		Status:       AccountStatusOpen,
		StartValue:   startValue,
		EndValue:     startValue,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	t.state.nextAccount++
	t.state.accounts[a.ID] = a
	return a, nil
}

func (t *memTx) UpdateAccount(ctx context.Context, id int64, title string, ledgerNumber int) error {
	a, ok := t.state.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if _, taken, _ := t.FindAccountByLedgerNumber(ctx, a.PeriodID, ledgerNumber, id); taken {
		return ErrDuplicateLedgerNumber
	}
	a.Title = title
	a.LedgerNumber = ledgerNumber
	a.UpdatedAt = t.now()
	t.state.accounts[id] = a
	return nil
}

func (t *memTx) UpdateAccountStatus(ctx context.Context, id int64, status AccountStatus) error {
	a, ok := t.state.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = t.now()
	t.state.accounts[id] = a
	return nil
}

func (t *memTx) DeleteAccount(ctx context.Context, id int64) error {
	if _, ok := t.state.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(t.state.accounts, id)
	for rid, rec := range t.state.records {
		if rec.AccountID == id {
			delete(t.state.records, rid)
		}
	}
	return nil
}

func (t *memTx) InsertRecord(ctx context.Context, draft RecordDraft, periodID int64, approval ApprovalStatus) (Record, error) {
	now := t.now()
	rec := Record{
		ID:            t.state.nextRecord,
		AccountID:     draft.AccountID,
		PeriodID:      periodID,
		Type:          draft.Type,
		Amount:        draft.Amount,
		Description:   draft.Description,
		RecordDate:    draft.RecordDate,
		OffsetAccount: draft.OffsetAccount,
		Approval:      approval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.state.nextRecord++
	t.state.records[rec.ID] = rec
	return rec, nil
}

func (t *memTx) UpdateRecord(ctx context.Context, in UpdateRecordInput) error {
	rec, ok := t.state.records[in.RecordID]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Type = in.Type
	rec.Amount = in.Amount
	rec.Description = in.Description
	rec.RecordDate = in.RecordDate
	rec.OffsetAccount = in.OffsetAccount
	rec.UpdatedAt = t.now()
	t.state.records[in.RecordID] = rec
	return nil
}

func (t *memTx) UpdateRecordApproval(ctx context.Context, id int64, status ApprovalStatus) error {
	rec, ok := t.state.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Approval = status
	rec.UpdatedAt = t.now()
	t.state.records[id] = rec
	return nil
}

func (t *memTx) DeleteRecord(ctx context.Context, id int64) error {
	if _, ok := t.state.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(t.state.records, id)
	return nil
}

func (t *memTx) SaveAccountAggregates(ctx context.Context, id int64, agg AccountAggregates) error {
	a, ok := t.state.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.RecordCount = agg.RecordCount
	a.RecordCountDeclined = agg.RecordCountDeclined
	a.RecordCountUnapproved = agg.RecordCountUnapproved
	a.StartValue = agg.StartValue
	a.EndValue = agg.EndValue
	a.UpdatedAt = t.now()
	t.state.accounts[id] = a
	return nil
}

func (t *memTx) SavePeriodAggregates(ctx context.Context, id int64, agg PeriodAggregates) error {
	p, ok := t.state.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.AccountCount = agg.AccountCount
	p.RecordCount = agg.RecordCount
	p.RecordCountDeclined = agg.RecordCountDeclined
	p.RecordCountUnapproved = agg.RecordCountUnapproved
	p.EndValue = agg.EndValue
	p.UpdatedAt = t.now()
	t.state.periods[id] = p
	return nil
}
