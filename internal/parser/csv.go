package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tech1ee/finuts/internal/locale"
	"github.com/tech1ee/finuts/internal/model"
)

// DelimitedParser parses delimited-text statements with a detected
// delimiter, mapping columns through the multilingual synonym table.
// Each data row is parsed independently; a bad row is skipped, not fatal.
type DelimitedParser struct {
	DateFormat   locale.DateFormat
	NumberLocale locale.NumberLocale
}

// highSkipRatio is the row-skip fraction above which an aggregate warning
// is surfaced in the result issues.
const highSkipRatio = 0.3

// Parse implements the Parser contract for delimited text.
func (p *DelimitedParser) Parse(ctx context.Context, data []byte, doc model.DocumentType) Result {
	text, err := decodeText(data, doc.Encoding)
	if err != nil {
		return errorResult(err.Error(), nil)
	}

	delim := doc.Delimiter
	if delim == 0 {
		delim = ','
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := p.readHeader(reader)
	if err != nil {
		return errorResult(fmt.Sprintf("no header row: %v", err), nil)
	}

	cols := DetectColumns(header)
	if cols.Date < 0 || cols.Amount < 0 {
		var issues []string
		if cols.Date < 0 {
			issues = append(issues, "date column not detected")
		}
		if cols.Amount < 0 {
			issues = append(issues, "amount column not detected")
		}
		return needsInputResult(nil, issues)
	}

	var (
		transactions []model.ImportedTransaction
		issues       []string
		rowCount     int
		skipped      int
	)

	for {
		if ctx.Err() != nil {
			return errorResult(ctx.Err().Error(), transactions)
		}

		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			rowCount++
			skipped++
			issues = append(issues, fmt.Sprintf("row %d: %v", rowCount, readErr))
			continue
		}
		if isBlankRecord(record) {
			continue
		}

		rowCount++
		record = p.mergeOverflow(record, header, cols)

		txn, rowErr := p.parseRow(record, header, cols)
		if rowErr != nil {
			skipped++
			issues = append(issues, fmt.Sprintf("row %d: %v", rowCount, rowErr))
			continue
		}
		transactions = append(transactions, txn)
	}

	if rowCount == 0 {
		return emptyResult("no data rows")
	}
	if len(transactions) == 0 {
		return errorResult("no rows could be parsed", nil)
	}

	confidence := p.confidence(len(transactions), rowCount, cols)
	for i := range transactions {
		transactions[i].ParseConfidence = confidence
	}

	if float64(skipped)/float64(rowCount) > highSkipRatio {
		issues = append(issues, fmt.Sprintf("high skip ratio: %d of %d rows failed", skipped, rowCount))
	}

	slog.Debug("parsed delimited document",
		"rows", rowCount,
		"transactions", len(transactions),
		"skipped", skipped,
		"confidence", confidence)

	return successResult(transactions, confidence, issues)
}

// readHeader returns the first non-blank record.
func (p *DelimitedParser) readHeader(reader *csv.Reader) ([]string, error) {
	for {
		record, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if !isBlankRecord(record) {
			return record, nil
		}
	}
}

// mergeOverflow rejoins an amount that the delimiter split apart, which
// happens when comma is both the field delimiter and the decimal
// separator and the cell was not quoted.
func (p *DelimitedParser) mergeOverflow(record, header []string, cols Columns) []string {
	if len(record) != len(header)+1 || cols.Amount < 0 || cols.Amount+1 >= len(record) {
		return record
	}
	merged := record[cols.Amount] + "," + record[cols.Amount+1]
	if _, err := locale.ParseAmount(merged, p.NumberLocale); err != nil {
		return record
	}
	fixed := make([]string, 0, len(header))
	fixed = append(fixed, record[:cols.Amount]...)
	fixed = append(fixed, merged)
	fixed = append(fixed, record[cols.Amount+2:]...)
	return fixed
}

func (p *DelimitedParser) parseRow(record, header []string, cols Columns) (model.ImportedTransaction, error) {
	var txn model.ImportedTransaction

	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	date, err := locale.ParseDate(cell(cols.Date), p.DateFormat)
	if err != nil {
		return txn, fmt.Errorf("date: %w", err)
	}

	amount, err := locale.ParseAmount(cell(cols.Amount), p.NumberLocale)
	if err != nil {
		return txn, fmt.Errorf("amount: %w", err)
	}

	description := cell(cols.Description)
	if description == "" {
		// No dedicated description column: keep whatever non-claimed text
		// the row carries.
		var parts []string
		for i := range record {
			if i != cols.Date && i != cols.Amount && i != cols.Balance && cell(i) != "" {
				parts = append(parts, cell(i))
			}
		}
		description = strings.Join(parts, " ")
	}

	raw := make([]model.RawField, 0, len(header))
	for i, name := range header {
		raw = append(raw, model.RawField{Key: name, Value: cell(i)})
	}

	txn = model.ImportedTransaction{
		ID:          uuid.NewString(),
		Date:        date,
		Amount:      amount,
		Description: description,
		Merchant:    cell(cols.Merchant),
		RawFields:   raw,
		ParseSource: model.ParseSourceRule,
	}

	if cols.Balance >= 0 && cell(cols.Balance) != "" {
		if balance, balErr := locale.ParseAmount(cell(cols.Balance), p.NumberLocale); balErr == nil {
			txn.RunningBalance = &balance
		}
	}

	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// confidence scores the parse: fraction of rows parsed, weighted 0.9, plus
// a bonus for detected balance and merchant columns.
func (p *DelimitedParser) confidence(parsed, total int, cols Columns) float64 {
	score := float64(parsed) / float64(total) * 0.9
	switch {
	case cols.Balance >= 0 && cols.Merchant >= 0:
		score += 0.1
	case cols.Balance >= 0 || cols.Merchant >= 0:
		score += 0.05
	}
	return score
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
