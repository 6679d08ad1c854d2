package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
	"github.com/foundercrm/commitment-engine/internal/connection"
	"github.com/foundercrm/commitment-engine/internal/email"
	"github.com/foundercrm/commitment-engine/internal/extraction"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// backfillDays is how far back the first-connect sync reaches.
const backfillDays = 2

// folderErrorPause is the breather after a folder-level fetch error before
// the other folder runs.
const folderErrorPause = 2 * time.Second

// Run executes the first-connect backfill for a freshly connected user and
// returns the number of open commitments on record afterwards.
func (p *Pipeline) Run(ctx context.Context, state *connection.State) (int, error) {
	connectedAt, err := time.Parse(time.RFC3339, state.FirstConnectedAt)
	if err != nil {
		return 0, fmt.Errorf("parsing first_connected_at: %w", err)
	}
	connectedAt = connectedAt.UTC()
	windowStart := connectedAt.AddDate(0, 0, -backfillDays).Truncate(24 * time.Hour)

	// The free trial is granted before the first model call.
	if _, err := p.meter.InitializeIfMissing(ctx, state.UserID); err != nil {
		return 0, fmt.Errorf("initializing credits: %w", err)
	}

	// Provider search is day-granular; the exact window re-check below
	// drops same-day messages that arrived after the connect instant.
	query := fmt.Sprintf("after:%s before:%s",
		windowStart.Format("2006/01/02"),
		connectedAt.AddDate(0, 0, 1).Format("2006/01/02"))

	passes := []struct {
		folder     string
		labels     []string
		cap        int
		newsFilter bool
	}{
		{email.FolderInbox, []string{"INBOX", "CATEGORY_PRIMARY"}, p.sync.MaxInbox, true},
		{email.FolderSent, []string{"SENT"}, p.sync.MaxSent, false},
	}

	for _, pass := range passes {
		if err := p.backfillFolder(ctx, state, pass.folder, pass.labels, query, pass.cap, pass.newsFilter, windowStart, connectedAt); err != nil {
			// One broken folder does not sink the sync; the other still runs.
			logger.Error("pipeline: backfill folder failed",
				"user_id", state.UserID, "folder", pass.folder, "error", err)
			time.Sleep(folderErrorPause)
		}
	}

	return p.commitments.CountOpen(ctx, state.UserID)
}

func (p *Pipeline) backfillFolder(
	ctx context.Context,
	state *connection.State,
	folder string,
	labels []string,
	query string,
	maxMessages int,
	newsletterFilter bool,
	windowStart, windowEnd time.Time,
) error {
	user := userContext(state)
	processed := 0
	pageToken := ""

	for processed < maxMessages {
		page, err := p.source.SearchMessages(ctx, aggregator.SearchParams{
			ConnectionID: state.ConnectionID,
			Query:        query,
			LabelIDs:     labels,
			MaxResults:   p.sync.Batch,
			PageToken:    pageToken,
		})
		if err != nil {
			return fmt.Errorf("searching %s: %w", folder, err)
		}

		for i := range page.Messages {
			if processed >= maxMessages {
				break
			}
			msg := &page.Messages[i]

			// Out of credits: the rest of the window stays unextracted.
			ok, err := p.meter.HasCredits(ctx, state.UserID)
			if err == nil && !ok {
				logger.Warn("pipeline: credits exhausted, halting backfill",
					"user_id", state.UserID, "folder", folder, "processed", processed)
				return nil
			}

			if p.processBackfillMessage(ctx, state, user, msg, folder, newsletterFilter, windowStart, windowEnd) {
				processed++
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Info("pipeline: backfill folder done",
		"user_id", state.UserID, "folder", folder, "processed", processed)
	return nil
}

// processBackfillMessage ingests one backfill message. It reports whether
// the message counted against the folder cap; filtered, out-of-window, and
// failed messages do not.
func (p *Pipeline) processBackfillMessage(
	ctx context.Context,
	state *connection.State,
	user extraction.UserContext,
	msg *aggregator.Message,
	folder string,
	newsletterFilter bool,
	windowStart, windowEnd time.Time,
) bool {
	parsed := email.Parse(msg, folder, state.FounderEmail)

	if parsed.Date.Before(windowStart) || parsed.Date.After(windowEnd) {
		return false
	}
	if newsletterFilter && email.IsNewsletter(msg, parsed.Sender, parsed.Subject) {
		return false
	}

	result, err := p.engine.Extract(ctx, parsed, user)
	if err != nil {
		logger.Warn("pipeline: backfill extraction failed",
			"user_id", state.UserID, "message_id", parsed.MessageID, "error", err)
		return false
	}

	for i := range result.Commitments {
		if _, err := p.commitments.Create(ctx, &result.Commitments[i]); err != nil {
			logger.Warn("pipeline: saving backfill commitment failed",
				"user_id", state.UserID, "message_id", parsed.MessageID, "error", err)
		}
	}

	if err := p.archive.ArchiveMessage(ctx, state.UserID, parsed.MessageID, msg); err != nil {
		logger.Warn("pipeline: message archive failed",
			"user_id", state.UserID, "message_id", parsed.MessageID, "error", err)
	}
	return true
}
