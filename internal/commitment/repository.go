package commitment

import "context"

// Repository defines the data access contract for commitment records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new record. IDs are assigned by the service.
	Create(ctx context.Context, c *Commitment) error

	// Get returns a record by commitment_id. Returns ErrNotFound if absent.
	Get(ctx context.Context, userID, commitmentID string) (*Commitment, error)

	// Put overwrites an existing record in full.
	Put(ctx context.Context, c *Commitment) error

	// Delete removes a record. Returns ErrNotFound if absent.
	Delete(ctx context.Context, userID, commitmentID string) error

	// List returns the user's records. A non-nil completed constraint is
	// pushed down to storage; limit <= 0 means no cap.
	List(ctx context.Context, userID string, completed *bool, limit int) ([]Commitment, error)

	// FindByMessageID returns the first record extracted from the given
	// provider message, or ErrNotFound. Used for live-ingest dedupe.
	FindByMessageID(ctx context.Context, userID, messageID string) (*Commitment, error)
}

// ShadowStore keeps restorable copies of deleted records for the 24-hour
// restore window. Implementations expire entries on their own.
type ShadowStore interface {
	// Save stores a shadow copy with the store's TTL.
	Save(ctx context.Context, shadow *DeletedShadow) error

	// Get returns a shadow copy. Returns ErrShadowNotFound when the copy
	// is absent or already expired.
	Get(ctx context.Context, userID, commitmentID string) (*DeletedShadow, error)

	// Delete drops a shadow copy after a successful restore.
	Delete(ctx context.Context, userID, commitmentID string) error

	// List returns up to limit shadow copies for the user, newest first.
	List(ctx context.Context, userID string, limit int) ([]DeletedShadow, error)
}
