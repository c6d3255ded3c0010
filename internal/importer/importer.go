// Package importer feeds external bookkeeping exports into the ledger core.
// Sources only parse; every rule (open period, duplicate ledger numbers,
// balanced batches) is enforced by the core when the runner replays the
// parsed batch through the public API.
package importer

import (
	"io"
	"strings"
	"time"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

// AccountLine describes an account the import expects to exist.
type AccountLine struct {
	LedgerNumber int
	Title        string
	Type         ledger.AccountType
}

// RecordLine is one parsed entry, addressed by ledger number rather than
// account id since external exports know nothing about our ids.
type RecordLine struct {
	LedgerNumber  int
	Type          ledger.RecordType
	Amount        money.Amount
	Description   string
	Date          time.Time
	OffsetAccount string
}

// Batch is the parsed content of one import file.
type Batch struct {
	Accounts []AccountLine
	Records  []RecordLine
}

// Source converts an input stream into a Batch.
type Source interface {
	Format() string
	Parse(r io.Reader) (Batch, error)
}

// Registry holds named sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source. Panics on duplicate format.
func (r *Registry) Register(s Source) {
	key := strings.ToLower(s.Format())
	if _, ok := r.sources[key]; ok {
		panic("duplicate source format: " + key)
	}
	r.sources[key] = s
}

// Get returns the source for format, or nil.
func (r *Registry) Get(format string) Source {
	return r.sources[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in sources.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CSVSource{})
	return r
}
