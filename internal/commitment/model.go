package commitment

// Lifecycle statuses. "completed" short-circuits the deadline-derived four.
const (
	StatusOverdue    = "overdue"
	StatusDueToday   = "due_today"
	StatusActive     = "active"
	StatusNoDeadline = "no_deadline"
	StatusCompleted  = "completed"
)

// Commitment directions relative to the founder's mailbox.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Source folders.
const (
	FolderInbox = "INBOX"
	FolderSent  = "SENT"
)

// Priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Commitment is the flattened record persisted per extracted commitment.
// Field names are the API contract; handlers serve these records verbatim.
type Commitment struct {
	CommitmentID string `json:"commitment_id"`
	UserID       string `json:"user_id"`

	What         string  `json:"what"`
	ToWhom       string  `json:"to_whom"`
	GivenBy      string  `json:"given_by"`
	AssignedToMe bool    `json:"assigned_to_me"`
	Direction    string  `json:"direction"`
	Summary      string  `json:"summary"`
	Priority     string  `json:"priority"`
	Type         string  `json:"commitment_type"`
	Confidence   float64 `json:"confidence"`
	// EstimatedHours is never null: extraction defaults it by type.
	EstimatedHours float64 `json:"estimated_hours"`

	DeadlineRaw string `json:"deadline_raw"`
	DeadlineISO string `json:"deadline_iso"`
	Status      string `json:"status"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at"`
	DaysOverdue int    `json:"days_overdue"`
	OverdueFlag bool   `json:"overdue_flag"`

	MessageID       string `json:"message_id"`
	EmailSubject    string `json:"email_subject"`
	EmailSender     string `json:"email_sender"`
	EmailSenderName string `json:"email_sender_name"`
	EmailDate       string `json:"email_date"`
	SourceFolder    string `json:"source_email_folder"`

	SenderRole                   string  `json:"sender_role"`
	ClassificationConfidence     float64 `json:"classification_confidence"`
	ClassificationDomainMatch    bool    `json:"classification_domain_match"`
	ClassificationDomain         string  `json:"classification_domain"`
	ClassificationSignatureMatch bool    `json:"classification_signature_match"`
	ClassificationSubjectHint    bool    `json:"classification_subject_hint"`
	ClassificationBodyHint       bool    `json:"classification_body_hint"`
	ClassificationFallbackUsed   bool    `json:"classification_fallback_used"`

	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	ExtractedAt string `json:"extracted_at"`
	RestoredAt  string `json:"restored_at,omitempty"`
}

// ApplyDefaults fills the enum fields older or sparse records may miss.
func (c *Commitment) ApplyDefaults() {
	if c.Status == "" {
		c.Status = StatusNoDeadline
	}
	if c.Type == "" {
		c.Type = "general"
	}
	if c.Direction == "" {
		c.Direction = DirectionIncoming
	}
	if c.SenderRole == "" {
		c.SenderRole = "unknown"
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
}

// Summary carries the per-bucket counts for a query result.
type Summary struct {
	Total      int `json:"total"`
	Overdue    int `json:"overdue"`
	DueToday   int `json:"due_today"`
	Upcoming   int `json:"upcoming"`
	Later      int `json:"later"`
	NoDeadline int `json:"no_deadline"`
	Completed  int `json:"completed"`
}

// DeletedShadow is the restorable copy kept for 24 hours after a delete.
type DeletedShadow struct {
	CommitmentID string     `json:"commitment_id"`
	UserID       string     `json:"user_id"`
	Data         Commitment `json:"data"`
	DeletedAt    string     `json:"deleted_at"`
}
