package categorize

import (
	"fmt"
	"strings"

	"github.com/tech1ee/finuts/internal/model"
)

const systemPrompt = "You are a financial transaction classifier. " +
	"Pick exactly one category from the provided list. " +
	"Respond only with JSON in the exact format requested, no prose."

func categoryNames(categories []model.Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}

// buildSinglePrompt asks for one transaction's category as a JSON object.
func buildSinglePrompt(txn model.ImportedTransaction, categories []model.Category) string {
	var b strings.Builder
	b.WriteString("Categorize this bank transaction.\n\n")
	fmt.Fprintf(&b, "Description: %s\n", txn.Description)
	if txn.Merchant != "" {
		fmt.Fprintf(&b, "Merchant: %s\n", txn.Merchant)
	}
	fmt.Fprintf(&b, "Direction: %s\n", direction(txn))
	fmt.Fprintf(&b, "\nCategories: %s\n", strings.Join(categoryNames(categories), ", "))
	b.WriteString("\nRespond with JSON: {\"category\": \"<name>\", \"confidence\": <0.0-1.0>}")
	return b.String()
}

// buildBatchPrompt asks for categories of several transactions in one
// call. Items are indexed so the answer can be matched back even if the
// model reorders them.
func buildBatchPrompt(txns []model.ImportedTransaction, indices []int, categories []model.Category) string {
	var b strings.Builder
	b.WriteString("Categorize these bank transactions.\n\n")
	for i, txn := range txns {
		fmt.Fprintf(&b, "%d. %s (%s)\n", indices[i], txn.Description, direction(txn))
	}
	fmt.Fprintf(&b, "\nCategories: %s\n", strings.Join(categoryNames(categories), ", "))
	b.WriteString("\nRespond with a JSON array: [{\"index\": <n>, \"category\": \"<name>\", \"confidence\": <0.0-1.0>}, ...]\n")
	b.WriteString("Include every index exactly once.")
	return b.String()
}

func direction(txn model.ImportedTransaction) string {
	if txn.IsExpense() {
		return "expense"
	}
	return "income"
}
