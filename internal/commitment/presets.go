package commitment

import "time"

// PresetInfo describes a named filter bundle for the presets endpoint.
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var presetDescriptions = []PresetInfo{
	{"all_active", "Everything still open, sorted by deadline"},
	{"overdue_only", "Open commitments past their deadline"},
	{"due_today_only", "Open commitments due today"},
	{"urgent", "Overdue plus due today"},
	{"from_investors", "Open commitments involving investors"},
	{"from_customers", "Open commitments involving customers"},
	{"high_priority", "Open commitments marked high priority"},
	{"created_today", "Commitments extracted today"},
	{"created_this_week", "Commitments extracted since Monday"},
	{"due_this_week", "Deadlines between today and Sunday"},
	{"completed_items", "Completed commitments"},
	{"incoming_only", "Commitments from incoming mail"},
	{"outgoing_only", "Commitments from sent mail"},
	{"assigned_to_me", "Actions the founder owes"},
	{"waiting_on_others", "Actions owed to the founder"},
	{"my_action_items", "Actions the founder owes"},
	{"incoming_assignments", "Incoming asks assigned to the founder"},
	{"incoming_promises", "Promises others made to the founder"},
	{"outgoing_promises", "Promises the founder made"},
	{"outgoing_requests", "Asks the founder sent to others"},
}

// PresetList returns the preset catalog in a stable order.
func PresetList() []PresetInfo {
	out := make([]PresetInfo, len(presetDescriptions))
	copy(out, presetDescriptions)
	return out
}

// Preset expands a named filter bundle. Date-anchored presets resolve
// against now (UTC). Returns false for unknown names.
func Preset(name string, now time.Time) (Filters, bool) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	yes, no := true, false
	switch name {
	case "all_active":
		return Filters{}, true
	case "overdue_only":
		return Filters{Status: []string{StatusOverdue}}, true
	case "due_today_only":
		return Filters{Status: []string{StatusDueToday}}, true
	case "urgent":
		return Filters{Status: []string{StatusOverdue, StatusDueToday}}, true
	case "from_investors":
		return Filters{SenderRole: "investor"}, true
	case "from_customers":
		return Filters{SenderRole: "customer"}, true
	case "high_priority":
		return Filters{Priority: PriorityHigh}, true
	case "created_today":
		return Filters{IncludeCompleted: true, CreatedAfter: today.Format(time.RFC3339)}, true
	case "created_this_week":
		monday := today.AddDate(0, 0, -mondayOffset(today))
		return Filters{IncludeCompleted: true, CreatedAfter: monday.Format(time.RFC3339)}, true
	case "due_this_week":
		sunday := today.AddDate(0, 0, 6-mondayOffset(today))
		return Filters{
			DeadlineAfter:  today.Format("2006-01-02"),
			DeadlineBefore: sunday.Format("2006-01-02"),
		}, true
	case "completed_items":
		return Filters{OnlyCompleted: true}, true
	case "incoming_only":
		return Filters{Direction: DirectionIncoming}, true
	case "outgoing_only":
		return Filters{Direction: DirectionOutgoing}, true
	case "assigned_to_me", "my_action_items":
		return Filters{AssignedToMe: &yes}, true
	case "waiting_on_others":
		return Filters{AssignedToMe: &no}, true
	case "incoming_assignments":
		return Filters{Direction: DirectionIncoming, AssignedToMe: &yes}, true
	case "incoming_promises":
		return Filters{Direction: DirectionIncoming, AssignedToMe: &no}, true
	case "outgoing_promises":
		return Filters{Direction: DirectionOutgoing, AssignedToMe: &yes}, true
	case "outgoing_requests":
		return Filters{Direction: DirectionOutgoing, AssignedToMe: &no}, true
	default:
		return Filters{}, false
	}
}

// mondayOffset returns days elapsed since the most recent Monday.
func mondayOffset(day time.Time) int {
	return (int(day.Weekday()) + 6) % 7
}
