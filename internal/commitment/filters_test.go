package commitment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sample() *Commitment {
	return &Commitment{
		CommitmentID:    "commitment_aaaa000011112222",
		What:            "Send the pitch deck",
		EmailSubject:    "Series A follow-up",
		EmailSender:     "jane@acmevc.com",
		EmailSenderName: "Jane Porter",
		GivenBy:         "jane@acmevc.com",
		SenderRole:      "investor",
		Direction:       DirectionIncoming,
		AssignedToMe:    true,
		Priority:        PriorityHigh,
		Type:            "deliverable",
		DeadlineISO:     "2026-03-13",
		Status:          StatusActive,
		CreatedAt:       "2026-03-09T10:00:00Z",
	}
}

func TestFiltersMatch(t *testing.T) {
	yes := true
	tests := []struct {
		name string
		f    Filters
		want bool
	}{
		{"empty matches", Filters{}, true},
		{"status hit", Filters{Status: []string{StatusActive}}, true},
		{"status miss", Filters{Status: []string{StatusOverdue}}, false},
		{"sender email substring", Filters{SenderEmail: "acmevc"}, true},
		{"sender email matches given_by", Filters{SenderEmail: "JANE@acmevc.com"}, true},
		{"sender name fold", Filters{SenderName: "jane port"}, true},
		{"sender role", Filters{SenderRole: "investor"}, true},
		{"wrong role", Filters{SenderRole: "customer"}, false},
		{"direction", Filters{Direction: "incoming"}, true},
		{"assigned", Filters{AssignedToMe: &yes}, true},
		{"created window", Filters{CreatedAfter: "2026-03-09", CreatedBefore: "2026-03-10"}, true},
		{"created too early", Filters{CreatedAfter: "2026-03-10"}, false},
		{"deadline window", Filters{DeadlineAfter: "2026-03-13", DeadlineBefore: "2026-03-13"}, true},
		{"has deadline", Filters{HasDeadline: &yes}, true},
		{"priority", Filters{Priority: "high"}, true},
		{"type", Filters{Type: "deliverable"}, true},
		{"search in what", Filters{SearchText: "pitch deck"}, true},
		{"search in subject", Filters{SearchText: "series a"}, true},
		{"search miss", Filters{SearchText: "invoice"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Match(sample()))
		})
	}
}

func TestFiltersMatchNoDeadlineAgainstDateRange(t *testing.T) {
	c := sample()
	c.DeadlineISO = ""
	f := Filters{DeadlineAfter: "2026-03-01"}
	assert.False(t, f.Match(c), "date-ranged queries exclude items without deadlines")

	no := false
	assert.True(t, Filters{HasDeadline: &no}.Match(c))
}

func TestCompletedPushdown(t *testing.T) {
	if v := (Filters{}).CompletedPushdown(); assert.NotNil(t, v) {
		assert.False(t, *v)
	}
	if v := (Filters{OnlyCompleted: true}).CompletedPushdown(); assert.NotNil(t, v) {
		assert.True(t, *v)
	}
	assert.Nil(t, (Filters{IncludeCompleted: true}).CompletedPushdown())
}

func TestDescribeAndFilterType(t *testing.T) {
	f := Filters{SenderRole: "investor", Priority: "high"}
	assert.Equal(t, "Commitments: active, from investors, priority high", f.Describe())
	assert.Equal(t, "sender_role", f.FilterType())

	assert.Equal(t, "All commitments", Filters{IncludeCompleted: true}.Describe())
	assert.Equal(t, "general", Filters{}.FilterType())
	assert.Equal(t, "completed", Filters{OnlyCompleted: true}.FilterType())
}

func TestPresetExpansion(t *testing.T) {
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) // a Wednesday

	f, ok := Preset("urgent", now)
	assert.True(t, ok)
	assert.Equal(t, []string{StatusOverdue, StatusDueToday}, f.Status)

	f, ok = Preset("due_this_week", now)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-11", f.DeadlineAfter)
	assert.Equal(t, "2026-03-15", f.DeadlineBefore) // upcoming Sunday

	f, ok = Preset("created_this_week", now)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-09T00:00:00Z", f.CreatedAfter) // Monday

	f, ok = Preset("outgoing_promises", now)
	assert.True(t, ok)
	assert.Equal(t, DirectionOutgoing, f.Direction)
	if assert.NotNil(t, f.AssignedToMe) {
		assert.True(t, *f.AssignedToMe)
	}

	_, ok = Preset("no_such_preset", now)
	assert.False(t, ok)

	// Every cataloged preset must expand.
	for _, p := range PresetList() {
		_, ok := Preset(p.Name, now)
		assert.True(t, ok, p.Name)
	}
}
