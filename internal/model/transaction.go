// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// ParseSource indicates how a transaction was extracted from its document.
type ParseSource string

// Parse source constants.
const (
	ParseSourceRule   ParseSource = "RULE_BASED"
	ParseSourceAI     ParseSource = "AI_ASSISTED"
	ParseSourceManual ParseSource = "MANUAL"
)

// RawField preserves one original column of a statement row, in order.
type RawField struct {
	Key   string
	Value string
}

// ImportedTransaction is a single normalized transaction produced by a
// format parser. Amounts are integer minor currency units (cents/kopecks),
// negative for expenses. Immutable once produced; never mutated, only
// wrapped in a ReviewableTransaction.
type ImportedTransaction struct {
	Date              time.Time
	ID                string
	Description       string
	Merchant          string
	AccountID         string
	SuggestedCategory string
	Hash              string
	ParseSource       ParseSource
	RawFields         []RawField
	Amount            int64
	RunningBalance    *int64
	ParseConfidence   float64
}

// GenerateHash creates a deterministic identity for duplicate detection.
// Built only from immutable properties so the same economic event hashes
// identically regardless of which file it arrived in.
func (t *ImportedTransaction) GenerateHash() string {
	desc := strings.Join(strings.Fields(strings.ToLower(t.Description)), " ")
	data := fmt.Sprintf("%s:%d:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		desc,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// IsExpense reports whether the transaction moves money out.
func (t *ImportedTransaction) IsExpense() bool {
	return t.Amount < 0
}

// ReviewableTransaction wraps an ImportedTransaction for the confirmation
// step. Mutated only by explicit user selection/override while the import
// awaits confirmation.
type ReviewableTransaction struct {
	CategoryOverride string
	Duplicate        DuplicateStatus
	Transaction      ImportedTransaction
	Index            int
	Selected         bool
}

// EffectiveCategory returns the user override when present, otherwise the
// suggestion carried by the transaction.
func (r *ReviewableTransaction) EffectiveCategory() string {
	if r.CategoryOverride != "" {
		return r.CategoryOverride
	}
	return r.Transaction.SuggestedCategory
}
