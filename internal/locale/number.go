package locale

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberLocale selects the digit-grouping and decimal-separator convention.
type NumberLocale int

// Number locales. NumberAuto infers the decimal separator from the string.
const (
	NumberAuto NumberLocale = iota
	NumberUS                // 1,234.56
	NumberEU                // 1.234,56
	NumberRU                // 1 234,56 (space or NBSP grouping)
	NumberIN                // 12,34,567.89
)

var currencyTokenRe = regexp.MustCompile(`^[A-Za-z]{3}$`)

const currencySymbols = "$€£¥₽₸₴"

// ParseAmount parses a free-text monetary amount into integer minor
// currency units. Rounding is never applied: more than two fractional
// digits is an error. Parenthesized amounts are negative.
func ParseAmount(s string, loc NumberLocale) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripCurrency(s)

	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = strings.TrimSpace(s[1:])
	case strings.HasPrefix(s, "+"):
		s = strings.TrimSpace(s[1:])
	}

	s = stripCurrency(s)
	if s == "" {
		return 0, fmt.Errorf("no digits in amount")
	}

	normalized, err := normalizeSeparators(s, loc)
	if err != nil {
		return 0, err
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("amount %q has more than two decimal digits", s)
	}

	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q is not a whole number of minor units", s)
	}

	value := minor.IntPart()
	if negative {
		value = -value
	}
	return value, nil
}

// FormatAmount renders minor units as a plain dot-decimal string, the form
// ParseAmount(_, NumberUS) accepts back unchanged.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// stripCurrency removes currency symbols anywhere and 3-letter currency
// codes at either end of the string.
func stripCurrency(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(currencySymbols, r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	if i := strings.LastIndexByte(s, ' '); i > 0 && currencyTokenRe.MatchString(s[i+1:]) {
		s = strings.TrimSpace(s[:i])
	}
	if i := strings.IndexByte(s, ' '); i > 0 && currencyTokenRe.MatchString(s[:i]) {
		s = strings.TrimSpace(s[i+1:])
	}
	return s
}

// normalizeSeparators rewrites a localized amount into plain dot-decimal
// form. Spaces (including non-breaking variants) are always grouping.
func normalizeSeparators(s string, loc NumberLocale) (string, error) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch loc {
	case NumberUS, NumberIN:
		s = strings.ReplaceAll(s, ",", "")
	case NumberEU:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case NumberRU:
		s = strings.Replace(s, ",", ".", 1)
	case NumberAuto:
		switch {
		case dots > 0 && commas > 0:
			// Both present: the rightmost separator is the decimal one.
			if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
				s = strings.ReplaceAll(s, ",", "")
			} else {
				s = strings.ReplaceAll(s, ".", "")
				s = strings.Replace(s, ",", ".", 1)
			}
		case dots+commas == 1:
			sep := "."
			if commas == 1 {
				sep = ","
			}
			idx := strings.Index(s, sep)
			// A single separator followed by exactly three digits is
			// ambiguous and defaults to a thousands separator.
			if len(s)-idx-1 == 3 {
				s = s[:idx] + s[idx+1:]
			} else {
				s = s[:idx] + "." + s[idx+1:]
			}
		case dots > 1:
			s = strings.ReplaceAll(s, ".", "")
		case commas > 1:
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	if strings.Count(s, ".") > 1 || strings.Contains(s, ",") {
		return "", fmt.Errorf("ambiguous separators in amount %q", s)
	}
	return s, nil
}
