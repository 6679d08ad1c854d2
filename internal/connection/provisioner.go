package connection

import (
	"context"
	"fmt"

	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// EnsureTriggers makes sure both mail triggers exist on the connected
// account and returns their instance ids. Existing instances are reused, so
// repeated calls never duplicate a trigger.
func (s *Service) EnsureTriggers(ctx context.Context, userID, connectionID string) (inboxID, sentID string, err error) {
	instances, err := s.agg.ListTriggers(ctx, []string{s.inboxSlug, s.sentSlug}, connectionID)
	if err != nil {
		return "", "", fmt.Errorf("listing trigger instances: %w", err)
	}
	for _, inst := range instances {
		if inst.Disabled || inst.ConnectedAccountID != connectionID {
			continue
		}
		switch inst.TriggerName {
		case s.inboxSlug:
			inboxID = inst.InstanceID()
		case s.sentSlug:
			sentID = inst.InstanceID()
		}
	}

	if inboxID == "" {
		// Push trigger; the aggregator posts a webhook per new message.
		inst, err := s.agg.CreateTrigger(ctx, s.inboxSlug, connectionID, map[string]any{})
		if err != nil {
			return "", "", fmt.Errorf("creating inbox trigger: %w", err)
		}
		inboxID = inst.InstanceID()
		logger.Info("connection: inbox trigger created", "user_id", userID, "trigger_id", inboxID)
	}

	if sentID == "" {
		// Gmail exposes no push event for sent mail; the aggregator polls.
		inst, err := s.agg.CreateTrigger(ctx, s.sentSlug, connectionID, map[string]any{
			"interval": 1,
			"userId":   "me",
		})
		if err != nil {
			return "", "", fmt.Errorf("creating sent trigger: %w", err)
		}
		sentID = inst.InstanceID()
		logger.Info("connection: sent trigger created", "user_id", userID, "trigger_id", sentID)
	}

	return inboxID, sentID, nil
}
