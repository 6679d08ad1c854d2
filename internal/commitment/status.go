package commitment

import "time"

// StatusFor derives the lifecycle status from the completion flag and the
// normalized deadline, relative to the given day. It is a pure function:
// calling it twice with the same inputs yields the same outputs.
func StatusFor(completed bool, deadlineISO string, today time.Time) (status string, daysOverdue int, overdueFlag bool) {
	if completed {
		return StatusCompleted, 0, false
	}
	if deadlineISO == "" {
		return StatusNoDeadline, 0, false
	}
	deadline, err := time.ParseInLocation("2006-01-02", deadlineISO, time.UTC)
	if err != nil {
		return StatusNoDeadline, 0, false
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case deadline.Before(day):
		days := int(day.Sub(deadline).Hours() / 24)
		return StatusOverdue, days, true
	case deadline.Equal(day):
		return StatusDueToday, 0, false
	default:
		return StatusActive, 0, false
	}
}

// Recompute refreshes the cached status fields on the record.
func (c *Commitment) Recompute(today time.Time) {
	c.Status, c.DaysOverdue, c.OverdueFlag = StatusFor(c.Completed, c.DeadlineISO, today)
}
