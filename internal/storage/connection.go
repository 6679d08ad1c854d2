package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/foundercrm/commitment-engine/internal/connection"
)

const connectionSK = "CONNECTION#gmail"

// ConnectionStore persists per-user connection state as a flat item at
// USER#<uid> / CONNECTION#gmail. Writes are field-level merges only.
type ConnectionStore struct {
	store *Store
}

// Connections returns the connection state store backed by this store.
func (s *Store) Connections() *ConnectionStore {
	return &ConnectionStore{store: s}
}

// Get returns the user's connection state, or ErrNotFound when the user has
// never connected.
func (c *ConnectionStore) Get(ctx context.Context, userID string) (*connection.State, error) {
	raw, err := c.store.getItem(ctx, userPK(userID), connectionSK)
	if err != nil {
		return nil, err
	}
	var state connection.State
	if err := attributevalue.UnmarshalMap(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling connection state: %w", err)
	}
	state.UserID = userID
	return &state, nil
}

// Merge updates only the given fields on the user's connection record,
// creating the record if it does not exist yet. Keys are the snake_case
// attribute names from connection.State.
func (c *ConnectionStore) Merge(ctx context.Context, userID string, fields map[string]any) error {
	if err := c.store.mergeFields(ctx, userPK(userID), connectionSK, fields); err != nil {
		return fmt.Errorf("merging connection state: %w", err)
	}
	return nil
}
