// Package locale parses free-text dates and amounts written under
// different regional conventions.
package locale

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateFormat selects how ambiguous numeric dates are interpreted.
type DateFormat int

// Date formats. DateAuto resolves ambiguity from the values themselves and
// falls back to the European convention.
const (
	DateAuto DateFormat = iota
	DateISO
	DateEU
	DateUS
)

var monthNames = map[string]time.Month{
	// English, full and abbreviated
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5,
	"june": 6, "july": 7, "august": 8, "september": 9, "october": 10,
	"november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7,
	"aug": 8, "sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
	// Russian, nominative
	"январь": 1, "февраль": 2, "март": 3, "апрель": 4, "май": 5,
	"июнь": 6, "июль": 7, "август": 8, "сентябрь": 9, "октябрь": 10,
	"ноябрь": 11, "декабрь": 12,
	// Russian, genitive
	"января": 1, "февраля": 2, "марта": 3, "апреля": 4, "мая": 5,
	"июня": 6, "июля": 7, "августа": 8, "сентября": 9, "октября": 10,
	"ноября": 11, "декабря": 12,
}

var (
	numericDateRe = regexp.MustCompile(`^(\d{1,4})([./-])(\d{1,2})[./-](\d{1,4})$`)
	dayFirstTextRe = regexp.MustCompile(`^(\d{1,2})\s+([\p{L}]+)\.?,?\s+(\d{2,4})$`)
	monthFirstTextRe = regexp.MustCompile(`^([\p{L}]+)\.?\s+(\d{1,2}),?\s+(\d{2,4})$`)
)

// ParseDate parses a free-text date under the requested format convention.
// Invalid calendar dates (day 32, month 13, Feb 29 in a non-leap year) are
// errors, never clamped.
func ParseDate(s string, format DateFormat) (time.Time, error) {
	s = strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	// Compact 8-digit forms: YYYYMMDD or DDMMYYYY. A 19/20 prefix is read
	// year-first, but days 19 and 20 also produce that prefix, so the
	// day-first reading is tried when the year-first one is not a valid
	// calendar date.
	if len(s) == 8 && isDigits(s) {
		if strings.HasPrefix(s, "19") || strings.HasPrefix(s, "20") {
			if t, err := makeDate(atoi(s[0:4]), atoi(s[4:6]), atoi(s[6:8])); err == nil {
				return t, nil
			}
		}
		return makeDate(atoi(s[4:8]), atoi(s[2:4]), atoi(s[0:2]))
	}

	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		return parseNumericDate(m[1], m[3], m[4], format)
	}

	if m := dayFirstTextRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthNames[strings.ToLower(m[2])]; ok {
			return makeDate(expandYear(atoi(m[3]), len(m[3])), int(month), atoi(m[1]))
		}
	}
	if m := monthFirstTextRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			return makeDate(expandYear(atoi(m[3]), len(m[3])), int(month), atoi(m[2]))
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}

// FormatDate renders a date in the ISO form used throughout the pipeline.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func parseNumericDate(first, second, third string, format DateFormat) (time.Time, error) {
	// A four-digit leading group is always a year.
	if len(first) == 4 {
		return makeDate(atoi(first), atoi(second), atoi(third))
	}

	a, b := atoi(first), atoi(second)
	year := expandYear(atoi(third), len(third))

	dayFirst := true
	switch {
	case a > 12 && b <= 12:
		dayFirst = true
	case b > 12 && a <= 12:
		dayFirst = false
	case format == DateUS:
		dayFirst = false
	case format == DateISO:
		return time.Time{}, fmt.Errorf("not an ISO date: %s.%s.%s", first, second, third)
	default:
		// DateEU and DateAuto both resolve ties day-first.
		dayFirst = true
	}

	if dayFirst {
		return makeDate(year, b, a)
	}
	return makeDate(year, a, b)
}

// expandYear applies the two-digit year pivot: 50 and above belongs to the
// 1900s, below 50 to the 2000s.
func expandYear(y, digits int) int {
	if digits > 2 {
		return y
	}
	if y >= 50 {
		return 1900 + y
	}
	return 2000 + y
}

func makeDate(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid month %d", month)
	}
	if day < 1 || day > daysInMonth(year, month) {
		return time.Time{}, fmt.Errorf("invalid day %d for %04d-%02d", day, year, month)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

func daysInMonth(year, month int) int {
	switch month {
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
