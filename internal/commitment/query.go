package commitment

import (
	"context"
	"sort"
	"time"
)

// Result is the envelope returned by Fetch. The chat layer consumes it
// as-is, so the shape is part of the API contract.
type Result struct {
	QueryDescription string       `json:"query_description"`
	FiltersApplied   Filters      `json:"filters_applied"`
	TotalFound       int          `json:"total_found"`
	Summary          Summary      `json:"summary"`
	Overdue          []Commitment `json:"overdue"`
	DueToday         []Commitment `json:"due_today"`
	Upcoming         []Commitment `json:"upcoming"`
	Later            []Commitment `json:"later"`
	NoDeadline       []Commitment `json:"no_deadline"`
	Completed        []Commitment `json:"completed"`
	AllCommitments   []Commitment `json:"all_commitments"`
	EmptyResult      *EmptyResult `json:"empty_result,omitempty"`
	UserID           string       `json:"user_id"`
	FetchedAt        string       `json:"fetched_at"`
}

// EmptyResult carries filter-aware guidance when a query matches nothing.
type EmptyResult struct {
	FilterType  string   `json:"filter_type"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// TodaySnapshot aggregates the four views the chat layer shows for "today".
type TodaySnapshot struct {
	Overdue       *Result `json:"overdue"`
	DueToday      *Result `json:"due_today"`
	ReceivedToday *Result `json:"received_today"`
	DueTomorrow   *Result `json:"due_tomorrow"`
	// TotalHours sums estimated_hours across tomorrow's deadlines.
	TotalHours float64 `json:"total_hours"`
	UserID     string  `json:"user_id"`
	Date       string  `json:"date"`
}

// Fetch runs a filtered commitment query. The completed constraint and the
// limit are pushed down to storage; statuses are recomputed before any other
// filter applies, then results are sorted and bucketed by deadline.
func (s *Service) Fetch(ctx context.Context, userID string, f Filters) (*Result, error) {
	now := time.Now().UTC()
	return s.fetchAt(ctx, userID, f, now)
}

// fetchAt is Fetch with an injectable clock for tests.
func (s *Service) fetchAt(ctx context.Context, userID string, f Filters, now time.Time) (*Result, error) {
	if f.Limit <= 0 {
		f.Limit = s.defaultLimit
	}

	items, err := s.repo.List(ctx, userID, f.CompletedPushdown(), f.Limit)
	if err != nil {
		return nil, err
	}

	matched := make([]Commitment, 0, len(items))
	for i := range items {
		c := items[i]
		c.ApplyDefaults()
		if !c.Completed {
			c.Recompute(now)
		}
		if f.Match(&c) {
			matched = append(matched, c)
		}
	}

	s.sortCommitments(matched, f.SortBy, f.SortOrder, now)

	res := &Result{
		QueryDescription: f.Describe(),
		FiltersApplied:   f,
		TotalFound:       len(matched),
		AllCommitments:   matched,
		Overdue:          []Commitment{},
		DueToday:         []Commitment{},
		Upcoming:         []Commitment{},
		Later:            []Commitment{},
		NoDeadline:       []Commitment{},
		Completed:        []Commitment{},
		UserID:           userID,
		FetchedAt:        now.Format(time.RFC3339),
	}

	today := dateOnly(now)
	horizon := today.AddDate(0, 0, s.upcomingDays)
	for _, c := range matched {
		switch c.Status {
		case StatusOverdue:
			res.Overdue = append(res.Overdue, c)
		case StatusDueToday:
			res.DueToday = append(res.DueToday, c)
		case StatusActive:
			if d, err := time.ParseInLocation("2006-01-02", c.DeadlineISO, time.UTC); err == nil && !d.After(horizon) {
				res.Upcoming = append(res.Upcoming, c)
			} else {
				res.Later = append(res.Later, c)
			}
		case StatusCompleted:
			res.Completed = append(res.Completed, c)
		default:
			res.NoDeadline = append(res.NoDeadline, c)
		}
	}

	res.Summary = Summary{
		Total:      len(matched),
		Overdue:    len(res.Overdue),
		DueToday:   len(res.DueToday),
		Upcoming:   len(res.Upcoming),
		Later:      len(res.Later),
		NoDeadline: len(res.NoDeadline),
		Completed:  len(res.Completed),
	}

	if len(matched) == 0 {
		res.EmptyResult = emptyGuidance(f)
	}

	return res, nil
}

// Today assembles the four sub-queries of the daily snapshot.
func (s *Service) Today(ctx context.Context, userID string) (*TodaySnapshot, error) {
	now := time.Now().UTC()
	today := dateOnly(now).Format("2006-01-02")
	tomorrow := dateOnly(now).AddDate(0, 0, 1).Format("2006-01-02")

	overdue, err := s.fetchAt(ctx, userID, Filters{Status: []string{StatusOverdue}}, now)
	if err != nil {
		return nil, err
	}
	dueToday, err := s.fetchAt(ctx, userID, Filters{DeadlineAfter: today, DeadlineBefore: today}, now)
	if err != nil {
		return nil, err
	}
	received, err := s.fetchAt(ctx, userID, Filters{
		IncludeCompleted: true,
		CreatedAfter:     dateOnly(now).Format(time.RFC3339),
		SortBy:           "created_at",
		SortOrder:        "desc",
	}, now)
	if err != nil {
		return nil, err
	}
	dueTomorrow, err := s.fetchAt(ctx, userID, Filters{DeadlineAfter: tomorrow, DeadlineBefore: tomorrow}, now)
	if err != nil {
		return nil, err
	}

	var hours float64
	for _, c := range dueTomorrow.AllCommitments {
		hours += c.EstimatedHours
	}

	return &TodaySnapshot{
		Overdue:       overdue,
		DueToday:      dueToday,
		ReceivedToday: received,
		DueTomorrow:   dueTomorrow,
		TotalHours:    hours,
		UserID:        userID,
		Date:          today,
	}, nil
}

// sortCommitments orders in place. "deadline" (the default) sorts by urgency
// so overdue items surface first; "priority" breaks priority ties with
// urgency; "days_overdue" defaults to descending.
func (s *Service) sortCommitments(items []Commitment, sortBy, sortOrder string, now time.Time) {
	desc := sortOrder == "desc"
	if sortBy == "days_overdue" && sortOrder == "" {
		desc = true
	}

	var less func(a, b *Commitment) bool
	switch sortBy {
	case "created_at":
		less = func(a, b *Commitment) bool {
			ta, _ := parseWhen(a.CreatedAt)
			tb, _ := parseWhen(b.CreatedAt)
			return ta.Before(tb)
		}
	case "priority":
		less = func(a, b *Commitment) bool {
			pa, pb := priorityScore(a.Priority), priorityScore(b.Priority)
			if pa != pb {
				return pa < pb
			}
			return s.urgencyScore(a, now) < s.urgencyScore(b, now)
		}
	case "days_overdue":
		less = func(a, b *Commitment) bool {
			return a.DaysOverdue < b.DaysOverdue
		}
	default: // "deadline"
		less = func(a, b *Commitment) bool {
			return s.urgencyScore(a, now) < s.urgencyScore(b, now)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(&items[j], &items[i])
		}
		return less(&items[i], &items[j])
	})
}

// urgencyScore orders overdue < due today < upcoming < later < no deadline;
// lower is more urgent.
func (s *Service) urgencyScore(c *Commitment, now time.Time) int {
	switch c.Status {
	case StatusOverdue:
		score := 100 - c.DaysOverdue
		if score < 0 {
			score = 0
		}
		return score
	case StatusDueToday:
		return 100
	case StatusActive:
		d, err := time.ParseInLocation("2006-01-02", c.DeadlineISO, time.UTC)
		if err != nil {
			return 1000
		}
		until := int(d.Sub(dateOnly(now)).Hours() / 24)
		if until <= s.upcomingDays {
			return 200 + until
		}
		return 300 + until
	case StatusCompleted:
		return 2000
	default:
		return 1000
	}
}

func priorityScore(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

func emptyGuidance(f Filters) *EmptyResult {
	ft := f.FilterType()
	g := &EmptyResult{FilterType: ft}
	switch ft {
	case "completed":
		g.Message = "No completed commitments yet."
		g.Suggestions = []string{"Mark a commitment as done to see it here", "Try the active list instead"}
	case "status":
		g.Message = "Nothing matches that status right now."
		g.Suggestions = []string{"Check the full active list", "Widen the status filter"}
	case "sender":
		g.Message = "No commitments from that sender."
		g.Suggestions = []string{"Try part of the email address", "Search by name instead of address"}
	case "sender_role":
		g.Message = "No commitments from that group."
		g.Suggestions = []string{"Try a different sender role", "Check the full active list"}
	case "date":
		g.Message = "No commitments in that date range."
		g.Suggestions = []string{"Widen the date range", "Check items without deadlines too"}
	case "search":
		g.Message = "Nothing matches that search."
		g.Suggestions = []string{"Try a shorter phrase", "Search the email subject wording"}
	case "priority":
		g.Message = "No commitments at that priority."
		g.Suggestions = []string{"Try another priority level", "Check the full active list"}
	default:
		g.Message = "No commitments found yet."
		g.Suggestions = []string{"New email is scanned automatically", "Check the connection status if this seems wrong"}
	}
	return g
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
