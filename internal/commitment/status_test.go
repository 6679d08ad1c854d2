package commitment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var today = time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name        string
		completed   bool
		deadline    string
		wantStatus  string
		wantDays    int
		wantOverdue bool
	}{
		{"no deadline", false, "", StatusNoDeadline, 0, false},
		{"bad iso", false, "next friday", StatusNoDeadline, 0, false},
		{"one day past", false, "2026-03-08", StatusOverdue, 1, true},
		{"week past", false, "2026-03-02", StatusOverdue, 7, true},
		{"due today", false, "2026-03-09", StatusDueToday, 0, false},
		{"future", false, "2026-03-15", StatusActive, 0, false},
		{"completed freezes", true, "2026-03-01", StatusCompleted, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, days, flag := StatusFor(tt.completed, tt.deadline, today)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantDays, days)
			assert.Equal(t, tt.wantOverdue, flag)
		})
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	c := Commitment{DeadlineISO: "2026-03-05"}
	c.Recompute(today)
	first := c
	c.Recompute(today)
	assert.Equal(t, first, c)
	assert.Equal(t, StatusOverdue, c.Status)
	assert.Equal(t, 4, c.DaysOverdue)
	assert.True(t, c.OverdueFlag)
}

func TestRecomputeCompletedUnchanged(t *testing.T) {
	c := Commitment{DeadlineISO: "2026-03-01", Completed: true, CompletedAt: "2026-03-02T10:00:00Z"}
	c.Recompute(today)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Zero(t, c.DaysOverdue)
	assert.False(t, c.OverdueFlag)
	assert.Equal(t, "2026-03-02T10:00:00Z", c.CompletedAt)
}
