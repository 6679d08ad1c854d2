package credits

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// Store is the persistence contract the meter runs against.
type Store interface {
	// Get returns the user's record, or storage's not-found error.
	Get(ctx context.Context, userID string) (*Record, error)

	// Initialize writes a fresh record unless one exists, returning the
	// stored record either way.
	Initialize(ctx context.Context, rec *Record) (*Record, error)

	// Debit atomically applies the event and returns the post-debit record.
	Debit(ctx context.Context, userID string, ev UsageEvent) (*Record, error)

	// Reset restores the balance to the given total with zero used.
	Reset(ctx context.Context, userID string, total float64) (*Record, error)
}

// PauseHook runs when a user's balance crosses from positive to zero or
// below. It pauses ingest and notifies the user; failures stay out of the
// debit result.
type PauseHook func(ctx context.Context, userID string)

// EventSink receives every debit for export. Emits are post-commit and
// best-effort.
type EventSink interface {
	Emit(userID string, ev UsageEvent)
}

// Config sets the token-to-credit exchange rates and the free-trial grant.
type Config struct {
	InputTokensPerCredit  float64
	OutputTokensPerCredit float64
	DefaultFreeTrial      float64
}

// Meter converts model token usage into credit debits against a per-user
// balance.
type Meter struct {
	store     Store
	cfg       Config
	pauseHook PauseHook
	sink      EventSink
	notFound  error
}

// NewMeter builds a meter. notFound is the store's sentinel for a missing
// record; pauseHook and sink may be nil.
func NewMeter(store Store, cfg Config, notFound error, pauseHook PauseHook, sink EventSink) *Meter {
	return &Meter{
		store:     store,
		cfg:       cfg,
		pauseHook: pauseHook,
		sink:      sink,
		notFound:  notFound,
	}
}

// CreditsSpent converts token counts into credits at the configured rates.
// The epsilon keeps exact multiples from rounding down.
func (m *Meter) CreditsSpent(inputTokens, outputTokens int) float64 {
	raw := float64(inputTokens)/m.cfg.InputTokensPerCredit +
		float64(outputTokens)/m.cfg.OutputTokensPerCredit + 1e-8
	return math.Round(raw*100) / 100
}

// InitializeIfMissing ensures the user has a credit record, granting the
// free-trial balance on first touch.
func (m *Meter) InitializeIfMissing(ctx context.Context, userID string) (*Record, error) {
	rec, err := m.store.Get(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if m.notFound != nil && err != m.notFound {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	return m.store.Initialize(ctx, &Record{
		UserID:       userID,
		CreditsTotal: m.cfg.DefaultFreeTrial,
		CreditsUsed:  0,
		PlanType:     "free",
		CreatedAt:    now,
		UpdatedAt:    now,
		UsageHistory: []UsageEvent{},
	})
}

// HasCredits reports whether the user can afford another extraction. A
// missing record counts as having credits; the free trial is granted lazily.
func (m *Meter) HasCredits(ctx context.Context, userID string) (bool, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		if m.notFound != nil && err == m.notFound {
			return true, nil
		}
		return false, err
	}
	return rec.Remaining() > 0, nil
}

// Deduct debits the cost of a model call and returns the post-debit record.
// When the balance crosses from positive to zero or below, the pause hook
// fires exactly once; later debits on an already-exhausted balance do not
// refire it.
func (m *Meter) Deduct(ctx context.Context, userID string, inputTokens, outputTokens int, reason string) (*Record, error) {
	if _, err := m.InitializeIfMissing(ctx, userID); err != nil {
		return nil, fmt.Errorf("ensuring credit record: %w", err)
	}

	ev := UsageEvent{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Credits:      m.CreditsSpent(inputTokens, outputTokens),
		Reason:       reason,
	}

	rec, err := m.store.Debit(ctx, userID, ev)
	if err != nil {
		return nil, fmt.Errorf("debiting credits: %w", err)
	}

	if m.sink != nil {
		m.sink.Emit(userID, ev)
	}

	remaining := rec.Remaining()
	if remaining <= 0 && remaining+ev.Credits > 0 && m.pauseHook != nil {
		logger.Warn("credits: balance exhausted, pausing ingest",
			"user_id", userID,
			"credits_used", fmt.Sprintf("%.2f", rec.CreditsUsed),
			"credits_total", fmt.Sprintf("%.2f", rec.CreditsTotal))
		m.pauseHook(ctx, userID)
	}
	return rec, nil
}

// WarningLevel names the thresholds surfaced by Status.
const (
	WarnExhausted   = "credits_exhausted"
	WarnLow         = "low_credits"
	WarnApproaching = "approaching_limit"
)

// StatusReport is the credit summary returned to the API.
type StatusReport struct {
	UserID           string  `json:"user_id"`
	CreditsTotal     float64 `json:"credits_total"`
	CreditsUsed      float64 `json:"credits_used"`
	CreditsRemaining float64 `json:"credits_remaining"`
	PercentUsed      float64 `json:"percent_used"`
	PlanType         string  `json:"plan_type"`
	Warning          string  `json:"warning,omitempty"`
}

// Status returns the user's balance with a warning level, creating the
// record on first read.
func (m *Meter) Status(ctx context.Context, userID string) (*StatusReport, error) {
	rec, err := m.InitializeIfMissing(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		UserID:           userID,
		CreditsTotal:     rec.CreditsTotal,
		CreditsUsed:      rec.CreditsUsed,
		CreditsRemaining: math.Max(0, rec.Remaining()),
		PlanType:         rec.PlanType,
	}
	if rec.CreditsTotal > 0 {
		report.PercentUsed = math.Round(rec.CreditsUsed/rec.CreditsTotal*10000) / 100
	}
	switch {
	case report.PercentUsed >= 100:
		report.Warning = WarnExhausted
	case report.PercentUsed >= 90:
		report.Warning = WarnLow
	case report.PercentUsed >= 75:
		report.Warning = WarnApproaching
	}
	return report, nil
}

// Reset restores the user's balance to the free-trial grant with zero used.
func (m *Meter) Reset(ctx context.Context, userID string) (*Record, error) {
	return m.store.Reset(ctx, userID, m.cfg.DefaultFreeTrial)
}
