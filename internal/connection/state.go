// Package connection tracks each user's email-provider link: the aggregator
// connection record, the single-flight backfill flag, and the push/poll
// triggers that feed the live pipeline.
package connection

// State is the per-user connection record. It is persisted as a flat
// DynamoDB item and updated with field-level merges only, so concurrent
// writers (webhook, backfill, check-connection) never clobber each other.
type State struct {
	UserID                 string `json:"user_id" dynamodbav:"user_id"`
	AggregatorEnabled      bool   `json:"aggregator_enabled" dynamodbav:"aggregator_enabled"`
	ConnectionID           string `json:"connection_id" dynamodbav:"connection_id"`
	ConnectionStatus       string `json:"connection_status" dynamodbav:"connection_status"`
	IsFirstTime            bool   `json:"is_first_time" dynamodbav:"is_first_time"`
	FirstConnectedAt       string `json:"first_connected_at" dynamodbav:"first_connected_at"`
	InitialSyncCompleted   bool   `json:"initial_sync_completed" dynamodbav:"initial_sync_completed"`
	InitialSyncCompletedAt string `json:"initial_sync_completed_at" dynamodbav:"initial_sync_completed_at"`
	SyncInProgress         bool   `json:"sync_in_progress" dynamodbav:"sync_in_progress"`
	SyncStartedAt          string `json:"sync_started_at" dynamodbav:"sync_started_at"`
	SyncError              string `json:"sync_error" dynamodbav:"sync_error"`
	TriggerRegistered      bool   `json:"trigger_registered" dynamodbav:"trigger_registered"`
	InboxTriggerID         string `json:"inbox_trigger_id" dynamodbav:"inbox_trigger_id"`
	SentTriggerID          string `json:"sent_trigger_id" dynamodbav:"sent_trigger_id"`
	TotalCommitmentsFound  int    `json:"total_commitments_found" dynamodbav:"total_commitments_found"`
	ReconnectedAt          string `json:"reconnected_at" dynamodbav:"reconnected_at"`
	DisconnectedAt         string `json:"disconnected_at" dynamodbav:"disconnected_at"`
	FounderEmail           string `json:"founder_email" dynamodbav:"founder_email"`
	FounderName            string `json:"founder_name" dynamodbav:"founder_name"`
	UpdatedAt              string `json:"updated_at" dynamodbav:"updated_at"`
}
