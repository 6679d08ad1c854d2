package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/foundercrm/commitment-engine/internal/email"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// noCreditsSummary is the summary on the envelope returned when the credit
// gate blocks extraction.
const noCreditsSummary = "No credits remaining. Please top up."

// Engine runs the extraction contract: credit gate, model loop with retries,
// salvage, validation, post-processing. Extraction errors never escape; the
// failure envelope is the error channel.
type Engine struct {
	model      ModelClient
	meter      Meter
	prompts    *PromptBuilder
	retries    int
	retryDelay time.Duration
}

// NewEngine builds an engine. retries is the number of extra attempts after
// the first.
func NewEngine(model ModelClient, meter Meter, prompts *PromptBuilder, retries int) *Engine {
	if retries < 0 {
		retries = 2
	}
	return &Engine{
		model:      model,
		meter:      meter,
		prompts:    prompts,
		retries:    retries,
		retryDelay: time.Second,
	}
}

// Extract runs one email through the model and returns the post-processed
// result. The returned error is reserved for context cancellation; model and
// validation failures come back as the failure envelope.
func (e *Engine) Extract(ctx context.Context, parsed *email.ParsedEmail, user UserContext) (*Result, error) {
	ok, err := e.meter.HasCredits(ctx, user.UserID)
	if err != nil {
		logger.Warn("extraction: credit gate check failed, allowing attempt",
			"user_id", user.UserID, "error", err)
	} else if !ok {
		return e.noCreditsResult(parsed), nil
	}

	userPrompt, err := e.prompts.User(parsed, user, time.Now().UTC())
	if err != nil {
		return e.failureResult(parsed, err), nil
	}

	var lastErr error
	attempts := 1 + e.retries
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(e.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		out, err := e.model.Invoke(ctx, e.prompts.System(), userPrompt)
		if err != nil {
			lastErr = err
			logger.Warn("extraction: model call failed",
				"user_id", user.UserID,
				"message_id", parsed.MessageID,
				"attempt", attempt,
				"error", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		// Every attempt that reached the model is charged, including the
		// ones whose output fails validation below.
		if out.InputTokens > 0 || out.OutputTokens > 0 {
			if _, err := e.meter.Deduct(ctx, user.UserID, out.InputTokens, out.OutputTokens, "extraction"); err != nil {
				logger.Warn("extraction: credit debit failed",
					"user_id", user.UserID, "error", err)
			}
		}

		obj := salvageJSON(out.Text)
		if obj == nil {
			lastErr = fmt.Errorf("model output is not JSON")
			continue
		}
		if !validateSchema(obj) {
			lastErr = fmt.Errorf("model output failed schema validation")
			continue
		}
		return buildResult(obj, parsed, user.UserID), nil
	}

	logger.Error("extraction: all attempts failed",
		"user_id", user.UserID,
		"message_id", parsed.MessageID,
		"attempts", attempts,
		"error", lastErr)
	return e.failureResult(parsed, lastErr), nil
}

// noCreditsResult is the envelope for a gated user: no model call, no
// commitments.
func (e *Engine) noCreditsResult(parsed *email.ParsedEmail) *Result {
	r := e.failureResult(parsed, nil)
	r.Summary = noCreditsSummary
	return r
}

// failureResult is the envelope after all attempts failed: real metadata, no
// commitments, classification marked as fallback.
func (e *Engine) failureResult(parsed *email.ParsedEmail, lastErr error) *Result {
	summary := "No commitments (model failed)."
	if lastErr != nil {
		summary = fmt.Sprintf("No commitments (model failed). last_error=%v", lastErr)
	}
	return &Result{
		HasCommitment: false,
		Direction:     "incoming",
		Summary:       summary,
		EmailMetadata: EmailMetadata{
			Sender:     parsed.Sender,
			SenderName: parsed.SenderName,
			Subject:    parsed.Subject,
			Date:       parsed.Date.UTC().Format(time.RFC3339),
		},
		Classification: Classification{
			SenderRole: "unknown",
			Confidence: 0,
			Reasoning:  ClassificationReasoning{FallbackUsed: true},
		},
	}
}
