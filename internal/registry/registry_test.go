package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech1ee/finuts/internal/model"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(DefaultGroups())
	require.NoError(t, err)
	return r
}

func TestMatchDefaults(t *testing.T) {
	r := defaultRegistry(t)

	tests := []struct {
		name     string
		text     string
		category string
	}{
		{"magnum", "MAGNUM CASH AND CARRY ALMATY", "groceries"},
		{"wolt", "WOLT ALMATY KZ", "dining"},
		{"yandex go", "YANDEX.GO RIDE", "transport"},
		{"cyrillic transfer", "Перевод на карту", "transfers"},
		{"cyrillic pharmacy", "АПТЕКА ЕВРОФАРМА", "health"},
		{"salary", "SALARY PAYMENT JANUARY", "income"},
		{"atm", "ATM WITHDRAWAL 12:30", "cash"},
		{"netflix", "NETFLIX.COM SUBSCRIPTION", "entertainment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.Match(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.category, p.Category)
			assert.GreaterOrEqual(t, p.Confidence, 0.80)
		})
	}
}

func TestMatchNoMatch(t *testing.T) {
	r := defaultRegistry(t)

	_, ok := r.Match("completely unrelated text 123")
	assert.False(t, ok)
}

func TestMatchPriorityOrder(t *testing.T) {
	// "transfer" belongs to the transfers group, which outranks the
	// generic fee pattern that also appears in the text.
	r := defaultRegistry(t)

	p, ok := r.Match("transfer service charge")
	require.True(t, ok)
	assert.Equal(t, "transfers", p.Category)
}

func TestMatchCaseInsensitive(t *testing.T) {
	r := defaultRegistry(t)

	lower, ok := r.Match("magnum almaty")
	require.True(t, ok)
	upper, ok2 := r.Match("MAGNUM ALMATY")
	require.True(t, ok2)
	assert.Equal(t, lower.Category, upper.Category)

	// Cyrillic case folding.
	p, ok := r.Match("ПЕРЕВОД НА КАРТУ")
	require.True(t, ok)
	assert.Equal(t, "transfers", p.Category)
}

func TestGroupsSortedByPriority(t *testing.T) {
	r := defaultRegistry(t)

	groups := r.Groups()
	require.NotEmpty(t, groups)
	for i := 1; i < len(groups); i++ {
		assert.GreaterOrEqual(t, groups[i-1].Priority, groups[i].Priority)
	}
	assert.Equal(t, "transfers", groups[0].Name)
}

func TestBrandNames(t *testing.T) {
	r := defaultRegistry(t)

	names := r.BrandNames()
	assert.Contains(t, names, "Magnum")
	assert.Contains(t, names, "Yandex Go")
	assert.Contains(t, names, "Wolt")
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New([]Group{
		{
			Name:     "broken",
			Priority: 1,
			Patterns: []model.MerchantPattern{
				{Pattern: `(unclosed`, Category: "other", Confidence: 0.5},
			},
		},
	})
	assert.Error(t, err)
}

func TestMatchFirstPatternInGroupWins(t *testing.T) {
	r, err := New([]Group{
		{
			Name:     "test",
			Priority: 1,
			Patterns: []model.MerchantPattern{
				{Pattern: `shop`, Category: "first", Confidence: 0.9},
				{Pattern: `shop deluxe`, Category: "second", Confidence: 0.9},
			},
		},
	})
	require.NoError(t, err)

	p, ok := r.Match("shop deluxe almaty")
	require.True(t, ok)
	assert.Equal(t, "first", p.Category)
}
