package commitment

import (
	"fmt"
	"strings"
	"time"
)

// Filters narrows a commitment query. Zero values mean "no constraint";
// the three-valued knobs (AssignedToMe, HasDeadline) use pointers so that
// "unset" and "false" stay distinct.
type Filters struct {
	IncludeCompleted bool     `json:"include_completed,omitempty"`
	OnlyCompleted    bool     `json:"only_completed,omitempty"`
	Status           []string `json:"status,omitempty"`
	SenderEmail      string   `json:"sender_email,omitempty"`
	SenderName       string   `json:"sender_name,omitempty"`
	SenderRole       string   `json:"sender_role,omitempty"`
	Direction        string   `json:"direction,omitempty"`
	AssignedToMe     *bool    `json:"assigned_to_me,omitempty"`
	CreatedAfter     string   `json:"created_after,omitempty"`
	CreatedBefore    string   `json:"created_before,omitempty"`
	DeadlineAfter    string   `json:"deadline_after,omitempty"`
	DeadlineBefore   string   `json:"deadline_before,omitempty"`
	HasDeadline      *bool    `json:"has_deadline,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	Type             string   `json:"commitment_type,omitempty"`
	SearchText       string   `json:"search_text,omitempty"`
	SortBy           string   `json:"sort_by,omitempty"`
	SortOrder        string   `json:"sort_order,omitempty"`
	Limit            int      `json:"limit,omitempty"`
}

// CompletedPushdown returns the completed constraint the storage layer can
// apply before anything else: nil means no constraint.
func (f Filters) CompletedPushdown() *bool {
	if f.OnlyCompleted {
		v := true
		return &v
	}
	if f.IncludeCompleted {
		return nil
	}
	v := false
	return &v
}

// Match reports whether a record (with its status already recomputed)
// passes every set filter. Filters apply in a fixed order; the first miss
// rejects.
func (f Filters) Match(c *Commitment) bool {
	if len(f.Status) > 0 && !containsFold(f.Status, c.Status) {
		return false
	}
	if f.SenderEmail != "" {
		needle := strings.ToLower(f.SenderEmail)
		if !strings.Contains(strings.ToLower(c.EmailSender), needle) &&
			!strings.Contains(strings.ToLower(c.GivenBy), needle) {
			return false
		}
	}
	if f.SenderName != "" &&
		!strings.Contains(strings.ToLower(c.EmailSenderName), strings.ToLower(f.SenderName)) {
		return false
	}
	if f.SenderRole != "" && !strings.EqualFold(orDefault(c.SenderRole, "unknown"), f.SenderRole) {
		return false
	}
	if f.Direction != "" && !strings.EqualFold(orDefault(c.Direction, DirectionIncoming), f.Direction) {
		return false
	}
	if f.AssignedToMe != nil && c.AssignedToMe != *f.AssignedToMe {
		return false
	}
	if f.CreatedAfter != "" || f.CreatedBefore != "" {
		created, err := parseWhen(c.CreatedAt)
		if err != nil {
			return false
		}
		if f.CreatedAfter != "" {
			after, err := parseWhen(f.CreatedAfter)
			if err != nil || created.Before(after) {
				return false
			}
		}
		if f.CreatedBefore != "" {
			before, err := parseWhen(f.CreatedBefore)
			if err != nil || created.After(before) {
				return false
			}
		}
	}
	if f.DeadlineAfter != "" || f.DeadlineBefore != "" {
		deadline, err := parseDay(c.DeadlineISO)
		if err != nil {
			return false
		}
		if f.DeadlineAfter != "" {
			after, err := parseDay(f.DeadlineAfter)
			if err != nil || deadline.Before(after) {
				return false
			}
		}
		if f.DeadlineBefore != "" {
			before, err := parseDay(f.DeadlineBefore)
			if err != nil || deadline.After(before) {
				return false
			}
		}
	}
	if f.HasDeadline != nil && (c.DeadlineISO != "") != *f.HasDeadline {
		return false
	}
	if f.Priority != "" && !strings.EqualFold(orDefault(c.Priority, PriorityMedium), f.Priority) {
		return false
	}
	if f.Type != "" && !strings.EqualFold(orDefault(c.Type, "general"), f.Type) {
		return false
	}
	if f.SearchText != "" {
		needle := strings.ToLower(f.SearchText)
		if !strings.Contains(strings.ToLower(c.What), needle) &&
			!strings.Contains(strings.ToLower(c.EmailSubject), needle) {
			return false
		}
	}
	return true
}

// Describe renders the filter set as a human-readable line for the result
// envelope ("Commitments: active, from investors, priority high").
func (f Filters) Describe() string {
	var parts []string
	if f.OnlyCompleted {
		parts = append(parts, "completed")
	} else if !f.IncludeCompleted {
		parts = append(parts, "active")
	}
	if len(f.Status) > 0 {
		parts = append(parts, "status: "+strings.Join(f.Status, " or "))
	}
	if f.SenderEmail != "" {
		parts = append(parts, "from "+f.SenderEmail)
	}
	if f.SenderName != "" {
		parts = append(parts, "from "+f.SenderName)
	}
	if f.SenderRole != "" {
		parts = append(parts, "from "+f.SenderRole+"s")
	}
	if f.Direction != "" {
		parts = append(parts, f.Direction)
	}
	if f.AssignedToMe != nil {
		if *f.AssignedToMe {
			parts = append(parts, "assigned to me")
		} else {
			parts = append(parts, "waiting on others")
		}
	}
	if f.CreatedAfter != "" || f.CreatedBefore != "" {
		parts = append(parts, "created "+rangeLabel(f.CreatedAfter, f.CreatedBefore))
	}
	if f.DeadlineAfter != "" || f.DeadlineBefore != "" {
		parts = append(parts, "due "+rangeLabel(f.DeadlineAfter, f.DeadlineBefore))
	}
	if f.HasDeadline != nil {
		if *f.HasDeadline {
			parts = append(parts, "with deadline")
		} else {
			parts = append(parts, "without deadline")
		}
	}
	if f.Priority != "" {
		parts = append(parts, "priority "+f.Priority)
	}
	if f.Type != "" {
		parts = append(parts, "type "+f.Type)
	}
	if f.SearchText != "" {
		parts = append(parts, fmt.Sprintf("matching %q", f.SearchText))
	}
	if len(parts) == 0 {
		return "All commitments"
	}
	return "Commitments: " + strings.Join(parts, ", ")
}

// FilterType names the dominant filter for empty-result messaging.
func (f Filters) FilterType() string {
	switch {
	case f.OnlyCompleted:
		return "completed"
	case len(f.Status) > 0:
		return "status"
	case f.SenderEmail != "" || f.SenderName != "":
		return "sender"
	case f.SenderRole != "":
		return "sender_role"
	case f.CreatedAfter != "" || f.CreatedBefore != "" || f.DeadlineAfter != "" || f.DeadlineBefore != "":
		return "date"
	case f.SearchText != "":
		return "search"
	case f.Priority != "":
		return "priority"
	default:
		return "general"
	}
}

func rangeLabel(after, before string) string {
	switch {
	case after != "" && before != "":
		return "between " + dayPart(after) + " and " + dayPart(before)
	case after != "":
		return "after " + dayPart(after)
	default:
		return "before " + dayPart(before)
	}
}

func dayPart(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// parseWhen accepts RFC3339 timestamps and bare dates.
func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

// parseDay accepts bare dates and date-prefixed timestamps.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return time.ParseInLocation("2006-01-02", dayPart(s), time.UTC)
}
