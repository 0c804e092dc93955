// Package parser turns raw statement bytes into normalized transaction
// candidates. Parsers never fail past this boundary: every outcome,
// including partial failure, is carried in a Result.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/tech1ee/finuts/internal/locale"
	"github.com/tech1ee/finuts/internal/model"
)

// Outcome classifies a parse result.
type Outcome int

// Parse outcomes.
const (
	// OutcomeSuccess means the document parsed; Transactions and
	// Confidence are populated.
	OutcomeSuccess Outcome = iota
	// OutcomeNeedsUserInput means the document is recognizable but the
	// parser could not proceed without help (e.g. undetectable columns).
	OutcomeNeedsUserInput
	// OutcomeError means document-level failure; any partially parsed
	// transactions are preserved for inspection.
	OutcomeError
	// OutcomeEmpty means the document is well-formed but carries no
	// transactions at all.
	OutcomeEmpty
)

// Result is the common parser contract.
type Result struct {
	Message      string
	Issues       []string
	Transactions []model.ImportedTransaction
	Confidence   float64
	Outcome      Outcome
}

// Parser converts raw file bytes into transaction candidates.
type Parser interface {
	Parse(ctx context.Context, data []byte, doc model.DocumentType) Result
}

// Options carries the locale conventions a parser should assume.
type Options struct {
	DateFormat   locale.DateFormat
	NumberLocale locale.NumberLocale
}

// ForDocument returns the parser matching a detected document type.
func ForDocument(doc model.DocumentType, opts Options) (Parser, error) {
	switch doc.Kind {
	case model.DocDelimited:
		return &DelimitedParser{DateFormat: opts.DateFormat, NumberLocale: opts.NumberLocale}, nil
	case model.DocOFX:
		return &OFXParser{}, nil
	case model.DocCAMT:
		return &CAMTParser{}, nil
	default:
		return nil, fmt.Errorf("no parser for document kind %s", doc.Kind)
	}
}

func successResult(txns []model.ImportedTransaction, confidence float64, issues []string) Result {
	return Result{Outcome: OutcomeSuccess, Transactions: txns, Confidence: confidence, Issues: issues}
}

func errorResult(message string, partial []model.ImportedTransaction) Result {
	return Result{Outcome: OutcomeError, Message: message, Transactions: partial}
}

func needsInputResult(txns []model.ImportedTransaction, issues []string) Result {
	return Result{Outcome: OutcomeNeedsUserInput, Transactions: txns, Issues: issues}
}

func emptyResult(message string) Result {
	return Result{Outcome: OutcomeEmpty, Message: message}
}

// decodeText converts raw bytes to UTF-8 text per the detected encoding and
// strips any byte-order mark.
func decodeText(data []byte, encoding string) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if encoding == "windows-1251" {
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode windows-1251: %w", err)
		}
		return decoded, nil
	}
	return data, nil
}

// Column field types, in detection order.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldBalance     = "balance"
	FieldMerchant    = "merchant"
)

// columnSynonyms maps each field type to lowercase header substrings in
// English and Russian. First match wins, and a column claimed by one field
// type is not eligible for another.
var columnSynonyms = map[string][]string{
	FieldDate:        {"date", "дата", "datum"},
	FieldAmount:      {"amount", "сумма", "sum", "оборот", "debit/credit"},
	FieldDescription: {"description", "описание", "назначение", "details", "memo", "purpose", "операция", "narrative"},
	FieldBalance:     {"balance", "баланс", "остаток"},
	FieldMerchant:    {"merchant", "payee", "counterparty", "контрагент", "получатель", "продавец", "vendor"},
}

var fieldOrder = []string{FieldDate, FieldAmount, FieldDescription, FieldBalance, FieldMerchant}

// Columns holds the detected column index per field type, -1 when absent.
type Columns struct {
	Date        int
	Amount      int
	Description int
	Balance     int
	Merchant    int
}

// DetectColumns maps header cells to field types by case-insensitive
// substring matching.
func DetectColumns(header []string) Columns {
	cols := Columns{Date: -1, Amount: -1, Description: -1, Balance: -1, Merchant: -1}
	claimed := make(map[int]bool, len(header))

	for _, field := range fieldOrder {
		for i, cell := range header {
			if claimed[i] {
				continue
			}
			lower := strings.ToLower(strings.TrimSpace(cell))
			for _, syn := range columnSynonyms[field] {
				if strings.Contains(lower, syn) {
					claimed[i] = true
					switch field {
					case FieldDate:
						cols.Date = i
					case FieldAmount:
						cols.Amount = i
					case FieldDescription:
						cols.Description = i
					case FieldBalance:
						cols.Balance = i
					case FieldMerchant:
						cols.Merchant = i
					}
					break
				}
			}
			if claimed[i] {
				break
			}
		}
	}
	return cols
}
