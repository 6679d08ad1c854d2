package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foundercrm/commitment-engine/internal/pipeline"
	"github.com/foundercrm/commitment-engine/internal/pkg/httputil"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// webhookPayload is the aggregator's inbound message notification.
type webhookPayload struct {
	Data struct {
		UserID           string `json:"user_id"`
		ConnectionNanoID string `json:"connection_nano_id"`
		ConnectionID     string `json:"connection_id"`
		MessageID        string `json:"message_id"`
		ID               string `json:"id"`
	} `json:"data"`
}

// Webhook accepts one inbound message notification. Ingestion problems
// are acknowledged with 200 status envelopes so the aggregator does not
// retry into a poison loop; only a bad shared secret is rejected.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" && r.Header.Get("X-Webhook-Secret") != h.webhookSecret {
		httputil.Unauthorized(w, "invalid webhook secret")
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.OK(w, map[string]string{"status": "error", "reason": "missing_fields"})
		return
	}

	userID := payload.Data.UserID
	connectionID := payload.Data.ConnectionNanoID
	if connectionID == "" {
		connectionID = payload.Data.ConnectionID
	}
	messageID := payload.Data.MessageID
	if messageID == "" {
		messageID = payload.Data.ID
	}

	if userID == "" || connectionID == "" || messageID == "" {
		httputil.OK(w, map[string]string{"status": "error", "reason": "missing_fields"})
		return
	}

	state, err := h.states.Get(r.Context(), userID)
	switch {
	case err == nil:
		if !state.AggregatorEnabled {
			httputil.OK(w, map[string]string{"status": "skipped", "reason": "ingest_paused"})
			return
		}
	case h.stateNotFound != nil && errors.Is(err, h.stateNotFound):
		// Unknown user state: let the worker sort it out.
	default:
		logger.Warn("webhook: state read failed", "user_id", userID, "error", err)
	}

	ok, err := h.credits.HasCredits(r.Context(), userID)
	if err != nil {
		logger.Warn("webhook: credit check failed", "user_id", userID, "error", err)
	} else if !ok {
		httputil.OK(w, map[string]string{"status": "skipped", "reason": "no_credits"})
		return
	}

	job := pipeline.Job{
		UserID:       userID,
		ConnectionID: connectionID,
		MessageID:    messageID,
	}
	if !h.queue.Enqueue(job) {
		logger.Warn("webhook: job queue full", "user_id", userID, "message_id", messageID)
		httputil.OK(w, map[string]string{"status": "skipped", "reason": "queue_full"})
		return
	}

	httputil.OK(w, map[string]string{"status": "ok"})
}
