package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		format  DateFormat
		want    string
		wantErr bool
	}{
		{name: "ISO", input: "2024-01-15", format: DateAuto, want: "2024-01-15"},
		{name: "european dots", input: "15.01.2024", format: DateAuto, want: "2024-01-15"},
		{name: "european slashes", input: "15/01/2024", format: DateAuto, want: "2024-01-15"},
		{name: "european dashes", input: "15-01-2024", format: DateAuto, want: "2024-01-15"},
		{name: "US month first", input: "01/15/2024", format: DateUS, want: "2024-01-15"},
		{name: "US auto-detected by day over 12", input: "01/15/2024", format: DateAuto, want: "2024-01-15"},
		{name: "EU auto-detected by day over 12", input: "15/01/2024", format: DateUS, want: "2024-01-15"},
		{name: "ambiguous defaults to EU", input: "03.04.2024", format: DateAuto, want: "2024-04-03"},
		{name: "ambiguous honors US request", input: "03/04/2024", format: DateUS, want: "2024-03-04"},
		{name: "two-digit year 2000s", input: "15.01.24", format: DateEU, want: "2024-01-15"},
		{name: "two-digit year 1900s", input: "15.01.99", format: DateEU, want: "1999-01-15"},
		{name: "pivot year 50", input: "01.01.50", format: DateEU, want: "1950-01-01"},
		{name: "pivot year 49", input: "01.01.49", format: DateEU, want: "2049-01-01"},
		{name: "compact ISO", input: "20240115", format: DateAuto, want: "2024-01-15"},
		{name: "compact european", input: "15012024", format: DateAuto, want: "2024-01-15"},
		{name: "compact european day 20", input: "20122024", format: DateAuto, want: "2024-12-20"},
		{name: "compact european day 19", input: "19052023", format: DateAuto, want: "2023-05-19"},
		{name: "russian genitive month", input: "15 января 2024", format: DateAuto, want: "2024-01-15"},
		{name: "russian nominative month", input: "1 март 2024", format: DateAuto, want: "2024-03-01"},
		{name: "english month name", input: "15 Jan 2024", format: DateAuto, want: "2024-01-15"},
		{name: "english month first", input: "January 15, 2024", format: DateAuto, want: "2024-01-15"},
		{name: "extra whitespace", input: "  15.01.2024 ", format: DateAuto, want: "2024-01-15"},
		{name: "day 32", input: "32.01.2024", format: DateEU, wantErr: true},
		{name: "month 13", input: "15.13.2024", format: DateEU, wantErr: true},
		{name: "feb 29 non-leap", input: "29.02.2023", format: DateEU, wantErr: true},
		{name: "feb 29 leap", input: "29.02.2024", format: DateEU, want: "2024-02-29"},
		{name: "feb 29 century non-leap", input: "29.02.1900", format: DateEU, wantErr: true},
		{name: "empty", input: "", format: DateAuto, wantErr: true},
		{name: "garbage", input: "not a date", format: DateAuto, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatDate(got))
		})
	}
}

func TestParseDateRoundTrip(t *testing.T) {
	// format(parse(s)) must round-trip to an equivalent calendar date.
	inputs := []string{
		"2024-01-15", "15.01.2024", "20240115", "15 января 2024", "Jan 15, 2024",
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, s := range inputs {
		got, err := ParseDate(s, DateAuto)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), "%s parsed to %v", s, got)

		again, err := ParseDate(FormatDate(got), DateAuto)
		require.NoError(t, err, s)
		assert.True(t, again.Equal(got), s)
	}
}
