// Package credits meters LLM usage against a per-user credit balance and
// pauses ingest when the balance runs out.
package credits

// UsageEvent is one debit appended to a user's usage history.
type UsageEvent struct {
	Timestamp    string  `json:"timestamp" dynamodbav:"timestamp"`
	InputTokens  int     `json:"input_tokens" dynamodbav:"input_tokens"`
	OutputTokens int     `json:"output_tokens" dynamodbav:"output_tokens"`
	Credits      float64 `json:"credits" dynamodbav:"credits"`
	Reason       string  `json:"reason" dynamodbav:"reason"`
}

// Record is the per-user credit balance. credits_remaining is never stored;
// it is derived from total minus used so the two stored figures stay the
// source of truth.
type Record struct {
	UserID       string       `json:"user_id" dynamodbav:"user_id"`
	CreditsTotal float64      `json:"credits_total" dynamodbav:"credits_total"`
	CreditsUsed  float64      `json:"credits_used" dynamodbav:"credits_used"`
	PlanType     string       `json:"plan_type" dynamodbav:"plan_type"`
	CreatedAt    string       `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    string       `json:"updated_at" dynamodbav:"updated_at"`
	UsageHistory []UsageEvent `json:"usage_history" dynamodbav:"usage_history"`
}

// Remaining returns total minus used without flooring; callers that present
// the figure to users clamp at zero themselves.
func (r *Record) Remaining() float64 {
	return r.CreditsTotal - r.CreditsUsed
}
