package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fiscaat/fiscaat/internal/ledger"
	"github.com/fiscaat/fiscaat/internal/money"
)

// CSVSource parses semicolon-separated exports in the layout produced by the
// legacy bookkeeping tool: one row per entry, accounts derived from the rows.
type CSVSource struct{}

const (
	csvDateFormat = "02-01-2006"
	csvNumFields  = 8
	csvColLedger  = 0
	csvColTitle   = 1
	csvColType    = 2
	csvColSide    = 3
	csvColAmount  = 4
	csvColDesc    = 5
	csvColDate    = 6
	csvColOffset  = 7
)

// Format returns the source name.
func (s *CSVSource) Format() string { return "csv" }

// Parse reads the export and returns the accounts and records it describes.
// The header row is required. Account lines are deduplicated by ledger
// number; conflicting titles or types for the same number are an error.
func (s *CSVSource) Parse(r io.Reader) (Batch, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = csvNumFields

	rows, err := cr.ReadAll()
	if err != nil {
		return Batch{}, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) <= 1 {
		return Batch{}, nil
	}

	var batch Batch
	seen := make(map[int]AccountLine)
	for i, row := range rows[1:] {
		line := i + 2
		account, record, err := parseRow(row)
		if err != nil {
			return Batch{}, fmt.Errorf("row %d: %w", line, err)
		}
		if prior, ok := seen[account.LedgerNumber]; ok {
			if prior != account {
				return Batch{}, fmt.Errorf("row %d: ledger number %d redefined as %q/%s, was %q/%s",
					line, account.LedgerNumber, account.Title, account.Type, prior.Title, prior.Type)
			}
		} else {
			seen[account.LedgerNumber] = account
			batch.Accounts = append(batch.Accounts, account)
		}
		batch.Records = append(batch.Records, record)
	}
	return batch, nil
}

func parseRow(row []string) (AccountLine, RecordLine, error) {
	number, err := strconv.Atoi(strings.TrimSpace(row[csvColLedger]))
	if err != nil || number <= 0 {
		return AccountLine{}, RecordLine{}, fmt.Errorf("ledger number %q: %w", row[csvColLedger], ledger.ErrInvalidLedgerNumber)
	}

	accountType, err := parseAccountType(row[csvColType])
	if err != nil {
		return AccountLine{}, RecordLine{}, err
	}
	side, err := parseSide(row[csvColSide])
	if err != nil {
		return AccountLine{}, RecordLine{}, err
	}
	amount, err := money.Parse(row[csvColAmount])
	if err != nil {
		return AccountLine{}, RecordLine{}, err
	}
	date, err := time.Parse(csvDateFormat, strings.TrimSpace(row[csvColDate]))
	if err != nil {
		return AccountLine{}, RecordLine{}, fmt.Errorf("parsing date %q: %w", row[csvColDate], err)
	}

	account := AccountLine{
		LedgerNumber: number,
		Title:        strings.TrimSpace(row[csvColTitle]),
		Type:         accountType,
	}
	record := RecordLine{
		LedgerNumber:  number,
		Type:          side,
		Amount:        amount,
		Description:   strings.TrimSpace(row[csvColDesc]),
		Date:          date,
		OffsetAccount: strings.TrimSpace(row[csvColOffset]),
	}
	return account, record, nil
}

func parseAccountType(raw string) (ledger.AccountType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "REVENUE", "RESULT":
		return ledger.AccountTypeRevenue, nil
	case "CAPITAL", "BALANCE":
		return ledger.AccountTypeCapital, nil
	default:
		return "", fmt.Errorf("unknown account type %q", raw)
	}
}

func parseSide(raw string) (ledger.RecordType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBIT", "D":
		return ledger.RecordTypeDebit, nil
	case "CREDIT", "C":
		return ledger.RecordTypeCredit, nil
	default:
		return "", fmt.Errorf("unknown record side %q", raw)
	}
}
