package commitment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryNow is 2026-03-09 (Monday) mid-day UTC.
var queryNow = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func seedQueryData(t *testing.T, svc *Service, repo *memRepo) {
	t.Helper()
	ctx := context.Background()
	rows := []Commitment{
		{What: "overdue old", DeadlineISO: "2026-03-02", Priority: PriorityLow},
		{What: "overdue fresh", DeadlineISO: "2026-03-08", Priority: PriorityHigh},
		{What: "due today", DeadlineISO: "2026-03-09", Priority: PriorityMedium},
		{What: "upcoming edge", DeadlineISO: "2026-03-16", Priority: PriorityLow}, // exactly +7
		{What: "later", DeadlineISO: "2026-03-17", Priority: PriorityHigh},        // +8
		{What: "no deadline", Priority: PriorityMedium},
		{What: "done", DeadlineISO: "2026-03-04", Completed: true},
	}
	for i := range rows {
		rows[i].UserID = "u1"
		rows[i].CreatedAt = queryNow.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		_, err := svc.Create(ctx, &rows[i])
		require.NoError(t, err)
		// Create stamps created_at with the wall clock; pin it for sorting.
		rows[i].CreatedAt = queryNow.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		if rows[i].Completed {
			rows[i].CompletedAt = "2026-03-05T00:00:00Z"
			rows[i].Status = StatusCompleted
		}
		require.NoError(t, repo.Put(ctx, &rows[i]))
	}
}

func whats(items []Commitment) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.What
	}
	return out
}

func TestFetchBucketsAndSummary(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1", Filters{}, queryNow)
	require.NoError(t, err)

	assert.Equal(t, 6, res.TotalFound, "completed excluded by default")
	assert.ElementsMatch(t, []string{"overdue old", "overdue fresh"}, whats(res.Overdue))
	assert.Equal(t, []string{"due today"}, whats(res.DueToday))
	assert.Equal(t, []string{"upcoming edge"}, whats(res.Upcoming), "+7 days is still upcoming")
	assert.Equal(t, []string{"later"}, whats(res.Later))
	assert.Equal(t, []string{"no deadline"}, whats(res.NoDeadline))
	assert.Empty(t, res.Completed)

	assert.Equal(t, Summary{Total: 6, Overdue: 2, DueToday: 1, Upcoming: 1, Later: 1, NoDeadline: 1}, res.Summary)
	assert.Nil(t, res.EmptyResult)
	assert.Equal(t, "u1", res.UserID)
}

func TestFetchDeadlineSortIsUrgencyOrder(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1", Filters{}, queryNow)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"overdue old", "overdue fresh", "due today", "upcoming edge", "later", "no deadline"},
		whats(res.AllCommitments))
}

func TestFetchPrioritySort(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1", Filters{SortBy: "priority"}, queryNow)
	require.NoError(t, err)
	// High first; urgency breaks the tie inside each priority band.
	assert.Equal(t,
		[]string{"overdue fresh", "later", "due today", "no deadline", "overdue old", "upcoming edge"},
		whats(res.AllCommitments))
}

func TestFetchDaysOverdueDefaultsDescending(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1",
		Filters{Status: []string{StatusOverdue}, SortBy: "days_overdue"}, queryNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue old", "overdue fresh"}, whats(res.AllCommitments))
	assert.Equal(t, 7, res.AllCommitments[0].DaysOverdue)
}

func TestFetchCreatedAtSort(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1",
		Filters{SortBy: "created_at", SortOrder: "desc"}, queryNow)
	require.NoError(t, err)
	assert.Equal(t, "no deadline", res.AllCommitments[0].What)
}

func TestFetchOnlyCompleted(t *testing.T) {
	svc, repo, _ := newTestService()
	seedQueryData(t, svc, repo)

	res, err := svc.fetchAt(context.Background(), "u1", Filters{OnlyCompleted: true}, queryNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, whats(res.AllCommitments))
	assert.Equal(t, []string{"done"}, whats(res.Completed))
}

func TestFetchEmptyResultGuidance(t *testing.T) {
	svc, _, _ := newTestService()

	res, err := svc.fetchAt(context.Background(), "u1", Filters{SenderEmail: "nobody@x.com"}, queryNow)
	require.NoError(t, err)
	require.NotNil(t, res.EmptyResult)
	assert.Equal(t, "sender", res.EmptyResult.FilterType)
	assert.NotEmpty(t, res.EmptyResult.Message)
	assert.NotEmpty(t, res.EmptyResult.Suggestions)
	assert.NotNil(t, res.AllCommitments)
}

func TestFetchRecomputesStaleStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	// Stored as active at extraction time; the deadline has since passed.
	c := &Commitment{UserID: "u1", What: "stale", DeadlineISO: "2026-03-06", Status: StatusActive}
	_, err := svc.Create(ctx, c)
	require.NoError(t, err)
	c.Status = StatusActive
	require.NoError(t, repo.Put(ctx, c))

	res, err := svc.fetchAt(ctx, "u1", Filters{Status: []string{StatusOverdue}}, queryNow)
	require.NoError(t, err)
	require.Len(t, res.AllCommitments, 1)
	assert.Equal(t, StatusOverdue, res.AllCommitments[0].Status)
	assert.Equal(t, 3, res.AllCommitments[0].DaysOverdue)
}

func TestTodaySnapshot(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	rows := []Commitment{
		{What: "overdue", DeadlineISO: now.AddDate(0, 0, -3).Format("2006-01-02")},
		{What: "today", DeadlineISO: today},
		{What: "tomorrow a", DeadlineISO: tomorrow, EstimatedHours: 2},
		{What: "tomorrow b", DeadlineISO: tomorrow, EstimatedHours: 0.5},
	}
	for i := range rows {
		rows[i].UserID = "u1"
		_, err := svc.Create(ctx, &rows[i])
		require.NoError(t, err)
	}
	_ = repo

	snap, err := svc.Today(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Overdue.TotalFound)
	assert.Equal(t, 1, snap.DueToday.TotalFound)
	assert.Equal(t, 4, snap.ReceivedToday.TotalFound, "everything was created today")
	assert.Equal(t, 2, snap.DueTomorrow.TotalFound)
	assert.InDelta(t, 2.5, snap.TotalHours, 1e-9)
	assert.Equal(t, today, snap.Date)
}
