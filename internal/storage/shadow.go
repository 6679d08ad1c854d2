package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foundercrm/commitment-engine/internal/commitment"
)

// ShadowTTL is how long deleted commitments stay restorable.
const ShadowTTL = 24 * time.Hour

// ErrShadowUnavailable reports that no Redis backs the shadow store.
// Writes fail with it so callers can log and proceed; reads degrade to
// not-found / empty instead.
var ErrShadowUnavailable = errors.New("shadow store unavailable")

// ShadowStore keeps restorable copies of deleted commitments in Redis under
// deleted_commitment:<uid>:<id> with a 24-hour TTL. Redis expiry is the
// restore window; nothing else cleans these keys up.
type ShadowStore struct {
	client *redis.Client
}

// NewShadowStore wraps an existing Redis client.
func NewShadowStore(client *redis.Client) *ShadowStore {
	return &ShadowStore{client: client}
}

// Available reports whether the backing Redis answers a ping. Delete flows
// treat an unavailable shadow store as best-effort and proceed without it.
func (s *ShadowStore) Available(ctx context.Context) bool {
	return s.client != nil && s.client.Ping(ctx).Err() == nil
}

func shadowKey(userID, commitmentID string) string {
	return fmt.Sprintf("deleted_commitment:%s:%s", userID, commitmentID)
}

// Save stores a shadow copy with the 24-hour TTL.
func (s *ShadowStore) Save(ctx context.Context, shadow *commitment.DeletedShadow) error {
	if s.client == nil {
		return ErrShadowUnavailable
	}
	data, err := json.Marshal(shadow)
	if err != nil {
		return fmt.Errorf("marshaling shadow: %w", err)
	}
	if err := s.client.Set(ctx, shadowKey(shadow.UserID, shadow.CommitmentID), data, ShadowTTL).Err(); err != nil {
		return fmt.Errorf("saving shadow to redis: %w", err)
	}
	return nil
}

// Get returns a shadow copy, or ErrShadowNotFound once it has expired.
func (s *ShadowStore) Get(ctx context.Context, userID, commitmentID string) (*commitment.DeletedShadow, error) {
	if s.client == nil {
		return nil, commitment.ErrShadowNotFound
	}
	data, err := s.client.Get(ctx, shadowKey(userID, commitmentID)).Bytes()
	if err == redis.Nil {
		return nil, commitment.ErrShadowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading shadow from redis: %w", err)
	}
	var shadow commitment.DeletedShadow
	if err := json.Unmarshal(data, &shadow); err != nil {
		return nil, fmt.Errorf("unmarshaling shadow: %w", err)
	}
	return &shadow, nil
}

// Delete drops a shadow copy after a successful restore.
func (s *ShadowStore) Delete(ctx context.Context, userID, commitmentID string) error {
	if s.client == nil {
		return ErrShadowUnavailable
	}
	if err := s.client.Del(ctx, shadowKey(userID, commitmentID)).Err(); err != nil {
		return fmt.Errorf("deleting shadow from redis: %w", err)
	}
	return nil
}

// List returns up to limit shadow copies for the user, newest first. The
// keyspace per user is tiny (bounded by the 24-hour window), so a SCAN over
// the user's prefix is fine.
func (s *ShadowStore) List(ctx context.Context, userID string, limit int) ([]commitment.DeletedShadow, error) {
	if s.client == nil {
		return nil, nil
	}
	var shadows []commitment.DeletedShadow
	iter := s.client.Scan(ctx, 0, shadowKey(userID, "*"), 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // expired between scan and read
		}
		var shadow commitment.DeletedShadow
		if err := json.Unmarshal(data, &shadow); err != nil {
			continue
		}
		shadows = append(shadows, shadow)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning shadows: %w", err)
	}

	sort.Slice(shadows, func(i, j int) bool {
		return shadows[i].DeletedAt > shadows[j].DeletedAt
	})
	if limit > 0 && len(shadows) > limit {
		shadows = shadows[:limit]
	}
	return shadows, nil
}
