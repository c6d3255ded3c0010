package summary

import (
	"context"
	"encoding/json"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

// Reader is the slice of the ledger repository the read side needs.
type Reader interface {
	GetPeriod(ctx context.Context, id int64) (ledger.Period, error)
	ListPeriods(ctx context.Context) ([]ledger.Period, error)
	ListAccountsOfPeriod(ctx context.Context, periodID int64) ([]ledger.Account, error)
}

// PeriodSummary is the cached roll-up of one fiscal period.
type PeriodSummary struct {
	PeriodID              int64               `json:"period_id"`
	Title                 string              `json:"title"`
	Status                ledger.PeriodStatus `json:"status"`
	AccountCount          int                 `json:"account_count"`
	RecordCount           int                 `json:"record_count"`
	RecordCountDeclined   int                 `json:"record_count_declined"`
	RecordCountUnapproved int                 `json:"record_count_unapproved"`
	EndValue              money.Amount        `json:"end_value"`
	// Display is the end value formatted for Dutch locales, symbol included.
	Display string `json:"display"`
}

// AccountBalance is one line of a period's balance listing.
type AccountBalance struct {
	AccountID    int64                `json:"account_id"`
	LedgerNumber int                  `json:"ledger_number"`
	Title        string               `json:"title"`
	Type         ledger.AccountType   `json:"type"`
	Status       ledger.AccountStatus `json:"status"`
	RecordCount  int                  `json:"record_count"`
	StartValue   money.Amount         `json:"start_value"`
	EndValue     money.Amount         `json:"end_value"`
	Display      string               `json:"display"`
}

// Service answers read queries from the stored aggregates, through the
// versioned cache. Concurrent misses for the same key collapse into a single
// load.
type Service struct {
	reader Reader
	cache  *Cache
	group  singleflight.Group
}

// NewService wires the reader with the cache helper.
func NewService(reader Reader, cache *Cache) *Service {
	return &Service{reader: reader, cache: cache}
}

// fetch collapses concurrent misses for the same key into one load. The
// group shares raw JSON, not the caller's destination, so every collapsed
// caller decodes its own copy.
func (s *Service) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	raw, err, _ := s.group.Do(key, func() (any, error) {
		var buf json.RawMessage
		if err := s.cache.FetchJSON(ctx, key, &buf, loader); err != nil {
			return nil, err
		}
		return buf, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.(json.RawMessage), dest)
}

// PeriodSummary returns the cached roll-up of a period.
func (s *Service) PeriodSummary(ctx context.Context, periodID int64) (PeriodSummary, error) {
	key, err := s.cache.Key(ctx, "summary", "period", strconv.FormatInt(periodID, 10))
	if err != nil {
		return PeriodSummary{}, err
	}
	var out PeriodSummary
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		period, err := s.reader.GetPeriod(ctx, periodID)
		if err != nil {
			return nil, err
		}
		return periodSummary(period), nil
	})
	return out, err
}

// PeriodSummaries returns the roll-up of every period, oldest first.
func (s *Service) PeriodSummaries(ctx context.Context) ([]PeriodSummary, error) {
	key, err := s.cache.Key(ctx, "summary", "periods")
	if err != nil {
		return nil, err
	}
	var out []PeriodSummary
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		periods, err := s.reader.ListPeriods(ctx)
		if err != nil {
			return nil, err
		}
		summaries := make([]PeriodSummary, 0, len(periods))
		for _, p := range periods {
			summaries = append(summaries, periodSummary(p))
		}
		return summaries, nil
	})
	return out, err
}

// AccountBalances returns the balance listing of a period, ordered by ledger
// number.
func (s *Service) AccountBalances(ctx context.Context, periodID int64) ([]AccountBalance, error) {
	key, err := s.cache.Key(ctx, "summary", "balances", strconv.FormatInt(periodID, 10))
	if err != nil {
		return nil, err
	}
	var out []AccountBalance
	err = s.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		accounts, err := s.reader.ListAccountsOfPeriod(ctx, periodID)
		if err != nil {
			return nil, err
		}
		balances := make([]AccountBalance, 0, len(accounts))
		for _, a := range accounts {
			balances = append(balances, AccountBalance{
				AccountID:    a.ID,
				LedgerNumber: a.LedgerNumber,
				Title:        a.Title,
				Type:         a.Type,
				Status:       a.Status,
				RecordCount:  a.RecordCount,
				StartValue:   a.StartValue,
				EndValue:     a.EndValue,
				Display:      a.EndValue.Format(true),
			})
		}
		return balances, nil
	})
	return out, err
}

func periodSummary(p ledger.Period) PeriodSummary {
	return PeriodSummary{
		PeriodID:              p.ID,
		Title:                 p.Title,
		Status:                p.Status,
		AccountCount:          p.AccountCount,
		RecordCount:           p.RecordCount,
		RecordCountDeclined:   p.RecordCountDeclined,
		RecordCountUnapproved: p.RecordCountUnapproved,
		EndValue:              p.EndValue,
		Display:               p.EndValue.Format(true),
	}
}
