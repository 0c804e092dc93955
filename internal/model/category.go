package model

import "time"

// CategoryType indicates whether a category is for income, expense, or system use.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for expense transactions.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeSystem represents system-managed categories (e.g., transfers).
	CategoryTypeSystem CategoryType = "system"
)

// Category represents a valid spending category.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	Type        CategoryType
	ID          int
	IsActive    bool
}

// CategorySource indicates which cascade tier produced a categorization.
type CategorySource string

// Categorization sources, ordered by cascade tier.
const (
	SourceLearned    CategorySource = "learned"
	SourceRule       CategorySource = "rule"
	SourceMerchantDB CategorySource = "merchant-db"
	SourceHistory    CategorySource = "history"
	SourceLocalML    CategorySource = "on-device-ml"
	SourceRemoteFast CategorySource = "remote-llm-tier2"
	SourceRemoteBest CategorySource = "remote-llm-tier3"
	SourceManual     CategorySource = "manual"
)

// Confidence thresholds shared across the cascade. A result at or above
// ConfidenceAutoApply is applied without asking; between ConfidenceFlagged
// and ConfidenceAutoApply it is applied but flagged for review; below
// ConfidenceFlagged it requires explicit confirmation.
const (
	ConfidenceAutoApply = 0.85
	ConfidenceFlagged   = 0.70
)

// CategorizationResult is the outcome of the categorization cascade for one
// transaction.
type CategorizationResult struct {
	TransactionID        string
	Category             string
	Source               CategorySource
	Confidence           float64
	RequiresConfirmation bool
}

// AutoApply reports whether the category can be applied without review.
func (r CategorizationResult) AutoApply() bool {
	return !r.RequiresConfirmation && r.Confidence >= ConfidenceAutoApply
}

// Flagged reports whether the category is applied but marked for review.
func (r CategorizationResult) Flagged() bool {
	return !r.RequiresConfirmation &&
		r.Confidence >= ConfidenceFlagged && r.Confidence < ConfidenceAutoApply
}
