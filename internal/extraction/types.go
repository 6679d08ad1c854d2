// Package extraction turns parsed emails into commitment records through an
// LLM: prompt assembly, model invocation with retries, schema validation,
// and post-processing (deadline normalization, status, defaults).
package extraction

import (
	"context"
	"strings"

	"github.com/foundercrm/commitment-engine/internal/credits"
)

// UserContext is the founder on whose behalf extraction runs.
type UserContext struct {
	UserID string
	Email  string
	Name   string
}

// Domain returns the founder's company domain, derived from the email
// address with "example.com" as the fallback.
func (u UserContext) Domain() string {
	if at := strings.Index(u.Email, "@"); at >= 0 && at < len(u.Email)-1 {
		return strings.ToLower(u.Email[at+1:])
	}
	return "example.com"
}

// ModelOutput is the model's text plus the token usage that gets metered.
type ModelOutput struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// ModelClient invokes the extraction model.
type ModelClient interface {
	Invoke(ctx context.Context, system, user string) (*ModelOutput, error)
}

// Meter is the slice of the credit meter the engine needs: the gate before
// the loop and the per-attempt debit.
type Meter interface {
	HasCredits(ctx context.Context, userID string) (bool, error)
	Deduct(ctx context.Context, userID string, inputTokens, outputTokens int, reason string) (*credits.Record, error)
}

// EmailMetadata echoes the source message on every extraction result.
type EmailMetadata struct {
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Subject    string `json:"subject"`
	Date       string `json:"date"`
}

// ClassificationReasoning records how the sender-role call was made.
type ClassificationReasoning struct {
	DomainMatch    bool   `json:"domain_match"`
	Domain         string `json:"domain"`
	SignatureMatch bool   `json:"signature_match"`
	SubjectHint    bool   `json:"subject_hint"`
	BodyHint       bool   `json:"body_hint"`
	FallbackUsed   bool   `json:"fallback_used"`
}

// Classification is the sender-role judgement shipped with each result.
type Classification struct {
	SenderRole string                  `json:"sender_role"`
	Confidence float64                 `json:"confidence"`
	Reasoning  ClassificationReasoning `json:"reasoning"`
}
