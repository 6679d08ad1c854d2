package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// refMonday is 2026-03-09, a Monday, mid-afternoon UTC.
var refMonday = time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

func TestNormalizeSameDayMarkers(t *testing.T) {
	for _, raw := range []string{
		"today", "by today", "tonight", "this evening",
		"EOD", "by end of day", "COB", "close of business",
		"ASAP", "as soon as possible", "immediately", "urgent",
		"right away", "at your earliest",
		"within 2 hours", "in 30 minutes",
		"before the meeting", "before our call", "before the demo",
	} {
		t.Run(raw, func(t *testing.T) {
			got, ok := Normalize(raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, "2026-03-09", got)
		})
	}
}

func TestNormalizeNextDayMarkers(t *testing.T) {
	for _, raw := range []string{
		"tomorrow", "by tomorrow", "due tomorrow",
		"tomorrow morning", "first thing tomorrow", "first thing in the morning",
	} {
		t.Run(raw, func(t *testing.T) {
			got, ok := Normalize(raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, "2026-03-10", got)
		})
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"friday", "2026-03-13"},
		{"by Friday", "2026-03-13"},
		{"this friday", "2026-03-13"},
		{"fri", "2026-03-13"},
		// "next" only pushes a same-day hit out a week.
		{"next friday", "2026-03-13"},
		{"next tue", "2026-03-10"},
		// Same weekday as the reference stays same-day unless "next".
		{"monday", "2026-03-09"},
		{"this monday", "2026-03-09"},
		{"next monday", "2026-03-16"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Normalize(tt.raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeWeekdaySameDayStays(t *testing.T) {
	friday := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	got, ok := Normalize("this friday", friday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-13", got)

	got, ok = Normalize("next friday", friday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-20", got)
}

func TestNormalizeWeekAndMonthAnchors(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		// "this week" closes on Sunday; "next week" is a flat +7.
		{"this week", "2026-03-15"},
		{"next week", "2026-03-16"},
		{"end of week", "2026-03-13"},
		{"end of the week", "2026-03-13"},
		{"eow", "2026-03-13"},
		{"end of month", "2026-03-31"},
		{"eom", "2026-03-31"},
		{"next month", "2026-04-01"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Normalize(tt.raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeWeekAnchorsMidAndLateWeek(t *testing.T) {
	wednesday := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	got, ok := Normalize("next week", wednesday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-18", got)

	friday := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	got, ok = Normalize("this week", friday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-15", got)

	sunday := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	got, ok = Normalize("this week", sunday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-15", got)

	saturday := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	got, ok = Normalize("end of week", saturday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-20", got)
}

func TestNormalizeRelativeOffsets(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"in 3 days", "2026-03-12"},
		{"within 5 days", "2026-03-14"},
		{"5 days", "2026-03-14"},
		{"in a week", "2026-03-16"},
		{"in 2 weeks", "2026-03-23"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Normalize(tt.raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeExplicitDates(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"2026-04-15", "2026-04-15"},
		{"04/15/2026", "2026-04-15"},
		{"4/15/2026", "2026-04-15"},
		// A date with no year stays in the email's year, even when past.
		{"4/15", "2026-04-15"},
		{"1/15", "2026-01-15"},
		{"march 15", "2026-03-15"},
		{"March 15th", "2026-03-15"},
		{"15 march", "2026-03-15"},
		{"Nov 25", "2026-11-25"},
		{"25th of November", "2026-11-25"},
		{"Mar 15, 2026", "2026-03-15"},
		{"january 5", "2026-01-05"},
		{"march 9", "2026-03-09"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Normalize(tt.raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeBareDayOfMonth(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"the 25th", "2026-03-25"},
		{"by the 30th", "2026-03-30"},
		// A day already past rolls one month forward.
		{"the 5th", "2026-04-05"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Normalize(tt.raw, refMonday)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	// December rolls into January of the next year.
	december := time.Date(2026, 12, 10, 9, 0, 0, 0, time.UTC)
	got, ok := Normalize("the 2nd", december)
	assert.True(t, ok)
	assert.Equal(t, "2027-01-02", got)
}

func TestNormalizeUnparseable(t *testing.T) {
	for _, raw := range []string{
		"", "  ", "none", "null", "n/a", "tbd", "no deadline", "to be determined",
		"whenever you get a chance", "soonish", "Q3", "2026-13-40", "02/30/2026",
	} {
		t.Run("raw="+raw, func(t *testing.T) {
			got, ok := Normalize(raw, refMonday)
			assert.False(t, ok)
			assert.Equal(t, "", got)
		})
	}
}

func TestNormalizeMatchesInsideLongerPhrases(t *testing.T) {
	got, ok := Normalize("need this urgently please", refMonday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-09", got)

	got, ok = Normalize("due by Friday at the latest", refMonday)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-13", got)
}
