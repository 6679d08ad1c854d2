package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foundercrm/commitment-engine/internal/auth"
	"github.com/foundercrm/commitment-engine/internal/commitment"
	"github.com/foundercrm/commitment-engine/internal/connection"
	"github.com/foundercrm/commitment-engine/internal/credits"
	"github.com/foundercrm/commitment-engine/internal/pipeline"
	"github.com/foundercrm/commitment-engine/internal/pkg/httputil"
)

// ConnectionService is the slice of the connection state machine the API
// layer drives.
type ConnectionService interface {
	CheckConnection(ctx context.Context, userID, founderEmail, founderName string) (*connection.CheckResult, error)
	Disconnect(ctx context.Context, userID string) (*connection.DisconnectResult, error)
	SyncStatus(ctx context.Context, userID string) (*connection.SyncStatusReport, error)
	SyncUnlock(ctx context.Context, userID string) error
}

// CommitmentService is the lifecycle and query surface for commitments.
type CommitmentService interface {
	Fetch(ctx context.Context, userID string, f commitment.Filters) (*commitment.Result, error)
	Today(ctx context.Context, userID string) (*commitment.TodaySnapshot, error)
	SetCompleted(ctx context.Context, userID, commitmentID string, completed bool) (*commitment.Commitment, error)
	Delete(ctx context.Context, userID, commitmentID string) error
	Restore(ctx context.Context, userID, commitmentID string) (*commitment.Commitment, error)
	ListDeleted(ctx context.Context, userID string, limit int) ([]commitment.DeletedShadow, error)
	ListCompleted(ctx context.Context, userID string, limit int, todayOnly bool) ([]commitment.Commitment, error)
}

// CreditService is the balance surface exposed over HTTP.
type CreditService interface {
	Status(ctx context.Context, userID string) (*credits.StatusReport, error)
	Reset(ctx context.Context, userID string) (*credits.Record, error)
	HasCredits(ctx context.Context, userID string) (bool, error)
}

// StateReader reads connection state for the webhook's paused check.
type StateReader interface {
	Get(ctx context.Context, userID string) (*connection.State, error)
}

// JobQueue accepts live-ingest jobs.
type JobQueue interface {
	Enqueue(job pipeline.Job) bool
}

// IdentityResolver resolves the acting user for a request.
type IdentityResolver interface {
	Identity(r *http.Request) (*auth.Identity, error)
}

// Handlers carries the service dependencies for all endpoints.
type Handlers struct {
	conn          ConnectionService
	commitments   CommitmentService
	credits       CreditService
	states        StateReader
	queue         JobQueue
	identities    IdentityResolver
	redisProbe    func() bool
	webhookSecret string
	stateNotFound error
}

// NewHandlers wires the endpoint dependencies. redisProbe may be nil;
// stateNotFound is the state store's missing-record sentinel.
func NewHandlers(
	conn ConnectionService,
	commitments CommitmentService,
	creditSvc CreditService,
	states StateReader,
	queue JobQueue,
	identities IdentityResolver,
	redisProbe func() bool,
	webhookSecret string,
	stateNotFound error,
) *Handlers {
	return &Handlers{
		conn:          conn,
		commitments:   commitments,
		credits:       creditSvc,
		states:        states,
		queue:         queue,
		identities:    identities,
		redisProbe:    redisProbe,
		webhookSecret: webhookSecret,
		stateNotFound: stateNotFound,
	}
}

type contextKey string

const identityKey contextKey = "identity"

func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityKey).(*auth.Identity)
	return id
}

// HealthCheck reports service health and the feature inventory.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	redisUp := false
	if h.redisProbe != nil {
		redisUp = h.redisProbe()
	}
	httputil.OK(w, map[string]any{
		"status":          "healthy",
		"service":         "commitment-engine",
		"redis_available": redisUp,
		"features": []string{
			"gmail_backfill",
			"live_ingest",
			"commitment_extraction",
			"deadline_normalization",
			"credit_metering",
			"soft_delete_restore",
			"filtered_queries",
		},
	})
}

// CheckConnection drives the connection state machine for the caller.
func (h *Handlers) CheckConnection(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	result, err := h.conn.CheckConnection(r.Context(), id.UserID, id.Email, id.Name)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// Disconnect tears down the caller's Gmail connection.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	result, err := h.conn.Disconnect(r.Context(), id.UserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// SyncStatus reports the stored sync state.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	report, err := h.conn.SyncStatus(r.Context(), id.UserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

// SyncUnlock clears a wedged sync_in_progress flag.
func (h *Handlers) SyncUnlock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := h.conn.SyncUnlock(r.Context(), id.UserID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"success": true,
		"user_id": id.UserID,
		"message": "Sync flag cleared",
	})
}

// ListCommitments runs a filtered query. A preset name expands to its
// filter bundle; explicit query params override preset fields.
func (h *Handlers) ListCommitments(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	filters, err := filtersFromQuery(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	result, err := h.commitments.Fetch(r.Context(), id.UserID, filters)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

func filtersFromQuery(r *http.Request) (commitment.Filters, error) {
	q := r.URL.Query()

	var filters commitment.Filters
	if name := q.Get("preset"); name != "" {
		preset, ok := commitment.Preset(name, time.Now().UTC())
		if !ok {
			return filters, errors.New("unknown preset: " + name)
		}
		filters = preset
	}

	if v := q.Get("include_completed"); v != "" {
		filters.IncludeCompleted = parseBool(v)
	}
	if v := q.Get("only_completed"); v != "" {
		filters.OnlyCompleted = parseBool(v)
	}
	if v := q.Get("status"); v != "" {
		filters.Status = strings.Split(v, ",")
	}
	if v := q.Get("sender_email"); v != "" {
		filters.SenderEmail = v
	}
	if v := q.Get("sender_name"); v != "" {
		filters.SenderName = v
	}
	if v := q.Get("sender_role"); v != "" {
		filters.SenderRole = v
	}
	if v := q.Get("direction"); v != "" {
		filters.Direction = v
	}
	if v := q.Get("assigned_to_me"); v != "" {
		b := parseBool(v)
		filters.AssignedToMe = &b
	}
	if v := q.Get("created_after"); v != "" {
		filters.CreatedAfter = v
	}
	if v := q.Get("created_before"); v != "" {
		filters.CreatedBefore = v
	}
	if v := q.Get("deadline_after"); v != "" {
		filters.DeadlineAfter = v
	}
	if v := q.Get("deadline_before"); v != "" {
		filters.DeadlineBefore = v
	}
	if v := q.Get("has_deadline"); v != "" {
		b := parseBool(v)
		filters.HasDeadline = &b
	}
	if v := q.Get("priority"); v != "" {
		filters.Priority = v
	}
	if v := q.Get("commitment_type"); v != "" {
		filters.Type = v
	}
	if v := q.Get("search_text"); v != "" {
		filters.SearchText = v
	}
	if v := q.Get("sort_by"); v != "" {
		filters.SortBy = v
	}
	if v := q.Get("sort_order"); v != "" {
		filters.SortOrder = v
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filters, errors.New("limit must be a positive integer")
		}
		filters.Limit = n
	}

	return filters, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// TodaySnapshot returns the four "today" views in one envelope.
func (h *Handlers) TodaySnapshot(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	snapshot, err := h.commitments.Today(r.Context(), id.UserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, snapshot)
}

// Presets lists the named filter bundles.
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"presets": commitment.PresetList(),
	})
}

// Complete toggles a commitment's completed flag. Body {completed:bool},
// default true.
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	commitmentID := chi.URLParam(r, "id")

	completed := true
	if r.Body != nil && r.ContentLength != 0 {
		var body struct {
			Completed *bool `json:"completed"`
		}
		if !httputil.Decode(w, r, &body) {
			return
		}
		if body.Completed != nil {
			completed = *body.Completed
		}
	}

	updated, err := h.commitments.SetCompleted(r.Context(), id.UserID, commitmentID, completed)
	if err != nil {
		if errors.Is(err, commitment.ErrNotFound) {
			httputil.NotFound(w, "commitment not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	message := "Commitment marked as completed"
	if !completed {
		message = "Commitment reopened"
	}
	httputil.OK(w, map[string]any{
		"success":       true,
		"commitment_id": updated.CommitmentID,
		"completed":     updated.Completed,
		"completed_at":  updated.CompletedAt,
		"message":       message,
	})
}

// Delete soft-deletes a commitment, keeping a 24-hour restore shadow.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	commitmentID := chi.URLParam(r, "id")

	if err := h.commitments.Delete(r.Context(), id.UserID, commitmentID); err != nil {
		if errors.Is(err, commitment.ErrNotFound) {
			httputil.NotFound(w, "commitment not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"success":           true,
		"commitment_id":     commitmentID,
		"message":           "Commitment deleted",
		"backup_expires_in": "24 hours",
	})
}

// Restore re-creates a soft-deleted commitment from its shadow.
func (h *Handlers) Restore(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	commitmentID := chi.URLParam(r, "id")

	restored, err := h.commitments.Restore(r.Context(), id.UserID, commitmentID)
	if err != nil {
		if errors.Is(err, commitment.ErrShadowNotFound) {
			httputil.NotFound(w, "no restorable backup for commitment")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"success":       true,
		"commitment_id": restored.CommitmentID,
		"message":       "Commitment restored",
		"commitment": map[string]any{
			"what":         restored.What,
			"deadline_iso": restored.DeadlineISO,
		},
	})
}

// ListCompleted returns recently completed commitments.
func (h *Handlers) ListCompleted(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	limit := clampedLimit(r, 50, 100)
	todayOnly := parseBool(r.URL.Query().Get("today_only"))

	items, err := h.commitments.ListCompleted(r.Context(), id.UserID, limit, todayOnly)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"commitments": items,
		"total":       len(items),
		"user_id":     id.UserID,
	})
}

type deletedCommitment struct {
	commitment.Commitment
	OriginalStatus string `json:"original_status"`
	DeletedAt      string `json:"deleted_at"`
}

// ListDeleted returns restorable shadows, newest first.
func (h *Handlers) ListDeleted(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	limit := clampedLimit(r, 20, 50)

	shadows, err := h.commitments.ListDeleted(r.Context(), id.UserID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	items := make([]deletedCommitment, 0, len(shadows))
	for _, s := range shadows {
		c := s.Data
		original := c.Status
		c.Status = "deleted"
		items = append(items, deletedCommitment{
			Commitment:     c,
			OriginalStatus: original,
			DeletedAt:      s.DeletedAt,
		})
	}
	httputil.OK(w, map[string]any{
		"commitments": items,
		"total":       len(items),
		"user_id":     id.UserID,
	})
}

func clampedLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// CreditsStatus reports the caller's balance, creating the free-trial
// record on first read.
func (h *Handlers) CreditsStatus(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	report, err := h.credits.Status(r.Context(), id.UserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, report)
}

// CreditsReset zeroes the caller's usage. Support surface.
func (h *Handlers) CreditsReset(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	rec, err := h.credits.Reset(r.Context(), id.UserID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"success":       true,
		"user_id":       id.UserID,
		"credits_total": rec.CreditsTotal,
		"credits_used":  rec.CreditsUsed,
	})
}
