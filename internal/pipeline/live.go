package pipeline

import (
	"context"
	"sync"

	"github.com/foundercrm/commitment-engine/internal/commitment"
	"github.com/foundercrm/commitment-engine/internal/connection"
	"github.com/foundercrm/commitment-engine/internal/email"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// keyedMutex serializes work per key so two workers handling webhooks for
// the same (user, message_id) cannot both pass the dedupe lookup.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e := k.locks[key]
	if e == nil {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// HandleJob ingests one webhook-delivered message. Errors are logged and the
// job is dropped; the webhook was already acknowledged.
func (p *Pipeline) HandleJob(ctx context.Context, job Job) {
	msg, err := p.source.GetMessage(ctx, job.ConnectionID, job.MessageID)
	if err != nil {
		logger.Error("pipeline: live message fetch failed",
			"user_id", job.UserID, "message_id", job.MessageID, "error", err)
		return
	}

	state, err := p.states.Get(ctx, job.UserID)
	if err != nil {
		// Founder attribution degrades gracefully when the state is gone.
		logger.Warn("pipeline: connection state read failed",
			"user_id", job.UserID, "error", err)
		state = &connection.State{UserID: job.UserID}
	}

	folder := email.FolderFromLabels(msg.LabelIDs)
	parsed := email.Parse(msg, folder, state.FounderEmail)

	// Resolve the dedupe key: provider id, then the Message-ID header, then
	// whatever the webhook carried.
	messageID := parsed.MessageID
	if messageID == "" {
		messageID = msg.Header("Message-ID")
	}
	if messageID == "" {
		messageID = job.MessageID
	}
	parsed.MessageID = messageID

	// Serialize on the dedupe key: a concurrently re-delivered webhook
	// waits here and then sees the first delivery's record below.
	unlock := p.ingest.lock(job.UserID + "\x00" + messageID)
	defer unlock()

	// Dedupe before extraction so a re-delivered webhook never spends
	// credits on a message already on record.
	if _, err := p.repo.FindByMessageID(ctx, job.UserID, messageID); err == nil {
		logger.Info("pipeline: duplicate message dropped",
			"user_id", job.UserID, "message_id", messageID)
		return
	} else if err != commitment.ErrNotFound {
		logger.Warn("pipeline: dedupe lookup failed, continuing",
			"user_id", job.UserID, "message_id", messageID, "error", err)
	}

	result, err := p.engine.Extract(ctx, parsed, userContext(state))
	if err != nil {
		logger.Error("pipeline: live extraction failed",
			"user_id", job.UserID, "message_id", messageID, "error", err)
		return
	}

	saved := 0
	for i := range result.Commitments {
		if _, err := p.commitments.Create(ctx, &result.Commitments[i]); err != nil {
			logger.Warn("pipeline: saving live commitment failed",
				"user_id", job.UserID, "message_id", messageID, "error", err)
			continue
		}
		saved++
	}

	if err := p.archive.ArchiveMessage(ctx, job.UserID, messageID, msg); err != nil {
		logger.Warn("pipeline: message archive failed",
			"user_id", job.UserID, "message_id", messageID, "error", err)
	}

	if saved > 0 {
		logger.Info("pipeline: live message ingested",
			"user_id", job.UserID, "message_id", messageID, "commitments", saved)
	}
}
