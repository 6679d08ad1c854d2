package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
	"github.com/foundercrm/commitment-engine/internal/pkg/distlock"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// Sync statuses returned by CheckConnection.
const (
	SyncNotConnected = "not_connected"
	SyncCompleted    = "completed"
	SyncReconnecting = "reconnecting"
	SyncInProgress   = "in_progress"
	SyncStarted      = "started"
	SyncReconnected  = "reconnected"
)

// provisionLockTTL bounds how long a provision lock can wedge; expiry is the
// staleness break.
const provisionLockTTL = 5 * time.Minute

// backgroundTimeout bounds the flows spawned off request handlers.
const backgroundTimeout = 10 * time.Minute

// Store is the connection-state persistence contract.
type Store interface {
	// Get returns the user's state or the store's not-found error.
	Get(ctx context.Context, userID string) (*State, error)

	// Merge updates only the given fields, creating the record if absent.
	Merge(ctx context.Context, userID string, fields map[string]any) error
}

// AggregatorAPI is the slice of the aggregator client the state machine
// drives.
type AggregatorAPI interface {
	ActiveGmailConnection(ctx context.Context, userID string) (*aggregator.Connection, error)
	ListTriggers(ctx context.Context, slugs []string, connectedAccountID string) ([]aggregator.TriggerInstance, error)
	CreateTrigger(ctx context.Context, slug, connectedAccountID string, triggerConfig map[string]any) (*aggregator.TriggerInstance, error)
	DeleteTrigger(ctx context.Context, instanceID string) error
	DeleteConnection(ctx context.Context, connectionID string) error
}

// BackfillRunner runs the first-connect historical sync and returns the
// number of open commitments it saved.
type BackfillRunner interface {
	Run(ctx context.Context, state *State) (int, error)
}

// LockFactory builds a distributed lock for a key. Each call returns a fresh
// instance so goroutines never share one.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// Service is the per-user connection state machine.
type Service struct {
	store     Store
	agg       AggregatorAPI
	backfill  BackfillRunner
	locks     LockFactory
	notFound  error
	inboxSlug string
	sentSlug  string

	// spawn runs background flows; tests swap it for a synchronous runner.
	spawn func(func(ctx context.Context))
}

// NewService wires the state machine. notFound is the store's sentinel for a
// missing record.
func NewService(store Store, agg AggregatorAPI, backfill BackfillRunner, locks LockFactory, notFound error, inboxSlug, sentSlug string) *Service {
	if inboxSlug == "" {
		inboxSlug = "GMAIL_NEW_GMAIL_MESSAGE"
	}
	if sentSlug == "" {
		sentSlug = "GMAIL_EMAIL_SENT_TRIGGER"
	}
	s := &Service{
		store:     store,
		agg:       agg,
		backfill:  backfill,
		locks:     locks,
		notFound:  notFound,
		inboxSlug: inboxSlug,
		sentSlug:  sentSlug,
	}
	s.spawn = func(fn func(ctx context.Context)) {
		go func() {
			// Request contexts die with the response; background flows get
			// their own deadline.
			ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
			defer cancel()
			fn(ctx)
		}()
	}
	return s
}

// CheckResult is the check-connection response.
type CheckResult struct {
	Connected      bool   `json:"connected"`
	SyncStatus     string `json:"sync_status"`
	InboxTriggerID string `json:"inbox_trigger_id,omitempty"`
	SentTriggerID  string `json:"sent_trigger_id,omitempty"`
}

func (s *Service) provisionLock(userID string) distlock.DistLock {
	return s.locks("trigger-provision:"+userID, provisionLockTTL)
}

// getState returns the stored state, or a fresh first-time state for users
// the store has never seen.
func (s *Service) getState(ctx context.Context, userID string) (*State, error) {
	state, err := s.store.Get(ctx, userID)
	if err != nil {
		if s.notFound != nil && err == s.notFound {
			return &State{UserID: userID, IsFirstTime: true}, nil
		}
		return nil, err
	}
	return state, nil
}

// CheckConnection drives the connection state machine for one user. The
// founder identity travels with the session and is merged onto the state so
// background flows can attribute SENT mail.
func (s *Service) CheckConnection(ctx context.Context, userID, founderEmail, founderName string) (*CheckResult, error) {
	conn, err := s.agg.ActiveGmailConnection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("checking aggregator connection: %w", err)
	}
	if conn == nil {
		return &CheckResult{Connected: false, SyncStatus: SyncNotConnected}, nil
	}

	state, err := s.getState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading connection state: %w", err)
	}
	if founderEmail != "" && founderEmail != state.FounderEmail {
		state.FounderEmail = founderEmail
		state.FounderName = founderName
		if err := s.store.Merge(ctx, userID, map[string]any{
			"founder_email": founderEmail,
			"founder_name":  founderName,
		}); err != nil {
			logger.Warn("connection: founder identity merge failed", "user_id", userID, "error", err)
		}
	}

	switch {
	case state.InitialSyncCompleted:
		inboxID, sentID, alive := s.triggersAlive(ctx, conn.ID)
		if alive {
			return &CheckResult{
				Connected:      true,
				SyncStatus:     SyncCompleted,
				InboxTriggerID: inboxID,
				SentTriggerID:  sentID,
			}, nil
		}
		s.reprovisionUnderLock(ctx, state, conn)
		return &CheckResult{Connected: true, SyncStatus: SyncReconnecting}, nil

	case state.SyncInProgress:
		return &CheckResult{Connected: true, SyncStatus: SyncInProgress}, nil

	case state.IsFirstTime || state.FirstConnectedAt == "":
		if err := s.beginFirstConnect(ctx, state, conn); err != nil {
			return nil, err
		}
		return &CheckResult{Connected: true, SyncStatus: SyncStarted}, nil

	default:
		// Reconnect after a disconnect: state survives, triggers do not.
		s.reprovisionUnderLock(ctx, state, conn)
		return &CheckResult{Connected: true, SyncStatus: SyncReconnected}, nil
	}
}

// triggersAlive checks both trigger instances against the aggregator.
func (s *Service) triggersAlive(ctx context.Context, connectionID string) (inboxID, sentID string, alive bool) {
	instances, err := s.agg.ListTriggers(ctx, []string{s.inboxSlug, s.sentSlug}, connectionID)
	if err != nil {
		logger.Warn("connection: trigger listing failed", "connection_id", connectionID, "error", err)
		return "", "", false
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
	return inboxID, sentID, inboxID != "" && sentID != ""
}

// beginFirstConnect flips the single-flight flag and spawns the backfill
// flow. The flag has no TTL; a wedged flow is cleared through the admin
// unlock surface.
func (s *Service) beginFirstConnect(ctx context.Context, state *State, conn *aggregator.Connection) error {
	now := time.Now().UTC().Format(time.RFC3339)
	firstConnectedAt := state.FirstConnectedAt
	if firstConnectedAt == "" {
		firstConnectedAt = now
	}
	err := s.store.Merge(ctx, state.UserID, map[string]any{
		"sync_in_progress":   true,
		"sync_started_at":    now,
		"sync_error":         "",
		"connection_id":      conn.ID,
		"connection_status":  conn.Status,
		"aggregator_enabled": true,
		"first_connected_at": firstConnectedAt,
		"updated_at":         now,
	})
	if err != nil {
		return fmt.Errorf("marking sync in progress: %w", err)
	}

	state.ConnectionID = conn.ID
	state.FirstConnectedAt = firstConnectedAt
	snapshot := *state
	s.spawn(func(ctx context.Context) {
		s.runFirstConnect(ctx, &snapshot)
	})
	return nil
}

// runFirstConnect is the background first-connect flow: backfill, trigger
// provisioning, then the completion merge.
func (s *Service) runFirstConnect(ctx context.Context, state *State) {
	userID := state.UserID
	logger.Info("connection: first-connect sync starting", "user_id", userID)

	found, err := s.backfill.Run(ctx, state)
	if err != nil {
		s.failSync(ctx, userID, fmt.Errorf("backfill: %w", err))
		return
	}

	inboxID, sentID, err := s.EnsureTriggers(ctx, userID, state.ConnectionID)
	if err != nil {
		s.failSync(ctx, userID, fmt.Errorf("provisioning triggers: %w", err))
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = s.store.Merge(ctx, userID, map[string]any{
		"initial_sync_completed":    true,
		"initial_sync_completed_at": now,
		"sync_in_progress":          false,
		"sync_error":                "",
		"is_first_time":             false,
		"trigger_registered":        true,
		"inbox_trigger_id":          inboxID,
		"sent_trigger_id":           sentID,
		"total_commitments_found":   found,
		"updated_at":                now,
	})
	if err != nil {
		logger.Error("connection: completion merge failed", "user_id", userID, "error", err)
		return
	}
	logger.Info("connection: first-connect sync completed",
		"user_id", userID, "commitments_found", found)
}

func (s *Service) failSync(ctx context.Context, userID string, cause error) {
	logger.Error("connection: first-connect sync failed", "user_id", userID, "error", cause)
	err := s.store.Merge(ctx, userID, map[string]any{
		"sync_in_progress": false,
		"sync_error":       cause.Error(),
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("connection: failure merge failed", "user_id", userID, "error", err)
	}
}

// reprovisionUnderLock takes the provision lock and spawns trigger
// re-creation. A held lock means another instance is already on it.
func (s *Service) reprovisionUnderLock(ctx context.Context, state *State, conn *aggregator.Connection) {
	lock := s.provisionLock(state.UserID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Warn("connection: provision lock acquire failed", "user_id", state.UserID, "error", err)
		return
	}
	if !acquired {
		return
	}

	userID := state.UserID
	connectionID := conn.ID
	s.spawn(func(ctx context.Context) {
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("connection: provision lock release failed", "user_id", userID, "error", err)
			}
		}()
		s.runReprovision(ctx, userID, connectionID)
	})
}

// runReprovision re-creates both triggers and records the reconnection.
func (s *Service) runReprovision(ctx context.Context, userID, connectionID string) {
	inboxID, sentID, err := s.EnsureTriggers(ctx, userID, connectionID)
	if err != nil {
		logger.Error("connection: reprovision failed", "user_id", userID, "error", err)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = s.store.Merge(ctx, userID, map[string]any{
		"trigger_registered": true,
		"inbox_trigger_id":   inboxID,
		"sent_trigger_id":    sentID,
		"connection_id":      connectionID,
		"aggregator_enabled": true,
		"reconnected_at":     now,
		"updated_at":         now,
	})
	if err != nil {
		logger.Error("connection: reconnection merge failed", "user_id", userID, "error", err)
	}
}

// DisconnectResult is the disconnect response.
type DisconnectResult struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
}

// Disconnect tears the user's connection down: triggers first (best-effort),
// then the aggregator connection, then the local state flip.
func (s *Service) Disconnect(ctx context.Context, userID string) (*DisconnectResult, error) {
	state, err := s.getState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading connection state: %w", err)
	}

	for _, triggerID := range []string{state.InboxTriggerID, state.SentTriggerID} {
		if triggerID == "" {
			continue
		}
		if err := s.agg.DeleteTrigger(ctx, triggerID); err != nil {
			logger.Warn("connection: trigger deletion failed during disconnect",
				"user_id", userID, "trigger_id", triggerID, "error", err)
		}
	}

	if state.ConnectionID != "" {
		if err := s.agg.DeleteConnection(ctx, state.ConnectionID); err != nil {
			logger.Warn("connection: aggregator disconnect failed",
				"user_id", userID, "connection_id", state.ConnectionID, "error", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err = s.store.Merge(ctx, userID, map[string]any{
		"aggregator_enabled": false,
		"trigger_registered": false,
		"connection_id":      "",
		"inbox_trigger_id":   "",
		"sent_trigger_id":    "",
		"disconnected_at":    now,
		"updated_at":         now,
	})
	if err != nil {
		return nil, fmt.Errorf("recording disconnect: %w", err)
	}

	// A wedged provision lock must not survive the connection it guards.
	if err := s.provisionLock(userID).Release(ctx); err != nil {
		logger.Warn("connection: provision lock release failed during disconnect",
			"user_id", userID, "error", err)
	}

	return &DisconnectResult{Status: "disconnected", UserID: userID}, nil
}

// SyncDetail is the nested sync block of the sync-status report.
type SyncDetail struct {
	InProgress  bool   `json:"in_progress"`
	StartedAt   string `json:"started_at,omitempty"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StateDetail is the nested connection_state block of the sync-status report.
type StateDetail struct {
	IsFirstTime       bool    `json:"is_first_time"`
	FirstConnectedAt  *string `json:"first_connected_at"`
	AggregatorEnabled bool    `json:"aggregator_enabled"`
}

// SyncStatusReport is the sync-status response.
type SyncStatusReport struct {
	UserID           string      `json:"user_id"`
	GmailConnected   bool        `json:"gmail_connected"`
	ConnectionID     string      `json:"connection_id,omitempty"`
	ConnectionStatus string      `json:"connection_status,omitempty"`
	Sync             SyncDetail  `json:"sync"`
	CommitmentsFound int         `json:"commitments_found"`
	ConnectionState  StateDetail `json:"connection_state"`
}

// SyncStatus reports the stored sync state without touching the aggregator.
func (s *Service) SyncStatus(ctx context.Context, userID string) (*SyncStatusReport, error) {
	state, err := s.getState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading connection state: %w", err)
	}

	var firstConnectedAt *string
	if state.FirstConnectedAt != "" {
		firstConnectedAt = &state.FirstConnectedAt
	}
	return &SyncStatusReport{
		UserID:           userID,
		GmailConnected:   state.ConnectionID != "" && state.AggregatorEnabled,
		ConnectionID:     state.ConnectionID,
		ConnectionStatus: state.ConnectionStatus,
		Sync: SyncDetail{
			InProgress:  state.SyncInProgress,
			StartedAt:   state.SyncStartedAt,
			Completed:   state.InitialSyncCompleted,
			CompletedAt: state.InitialSyncCompletedAt,
			Error:       state.SyncError,
		},
		CommitmentsFound: state.TotalCommitmentsFound,
		ConnectionState: StateDetail{
			IsFirstTime:       state.IsFirstTime,
			FirstConnectedAt:  firstConnectedAt,
			AggregatorEnabled: state.AggregatorEnabled,
		},
	}, nil
}

// SyncUnlock clears a wedged sync_in_progress flag. Operator surface; the
// flag itself carries no TTL.
func (s *Service) SyncUnlock(ctx context.Context, userID string) error {
	err := s.store.Merge(ctx, userID, map[string]any{
		"sync_in_progress": false,
		"sync_error":       "",
		"updated_at":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("clearing sync flag: %w", err)
	}
	logger.Info("connection: sync flag cleared by operator", "user_id", userID)
	return nil
}

// Pause flips the ingest gate off. The credit meter calls this through its
// pause hook when a balance runs out.
func (s *Service) Pause(ctx context.Context, userID string) error {
	err := s.store.Merge(ctx, userID, map[string]any{
		"aggregator_enabled": false,
		"updated_at":         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("pausing ingest: %w", err)
	}
	return nil
}
