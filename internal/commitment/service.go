package commitment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// Options holds the tunable query defaults.
type Options struct {
	// UpcomingDays is the size of the "upcoming" deadline bucket.
	UpcomingDays int
	// DefaultLimit caps query results when the caller sets none.
	DefaultLimit int
}

// Service implements the commitment lifecycle. The deletion shadow write is
// best-effort: a delete proceeds even when the shadow store is down, it is
// just not restorable afterwards.
type Service struct {
	repo         Repository
	shadow       ShadowStore
	upcomingDays int
	defaultLimit int
}

// NewService creates a commitment service backed by the given stores.
func NewService(repo Repository, shadow ShadowStore, opts Options) *Service {
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = 7
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	return &Service{
		repo:         repo,
		shadow:       shadow,
		upcomingDays: opts.UpcomingDays,
		defaultLimit: opts.DefaultLimit,
	}
}

// NewID returns a fresh commitment id ("commitment_" + 16 hex chars).
func NewID() string {
	return "commitment_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// Create persists a newly extracted commitment and returns its id.
// Records are always new; the same message extracting twice produces two
// records, which is why live ingest dedupes by message id first.
func (s *Service) Create(ctx context.Context, c *Commitment) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	c.CommitmentID = NewID()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ExtractedAt == "" {
		c.ExtractedAt = now
	}
	c.ApplyDefaults()
	if err := s.repo.Create(ctx, c); err != nil {
		return "", err
	}
	return c.CommitmentID, nil
}

// Get returns one commitment with its status freshly recomputed.
func (s *Service) Get(ctx context.Context, userID, commitmentID string) (*Commitment, error) {
	c, err := s.repo.Get(ctx, userID, commitmentID)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	c.Recompute(time.Now().UTC())
	return c, nil
}

// SetCompleted marks a commitment done or reopens it.
func (s *Service) SetCompleted(ctx context.Context, userID, commitmentID string, completed bool) (*Commitment, error) {
	c, err := s.repo.Get(ctx, userID, commitmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.Completed = completed
	if completed {
		c.Status = StatusCompleted
		c.CompletedAt = now.Format(time.RFC3339)
	} else {
		c.Status = StatusActive
		c.CompletedAt = ""
	}
	c.UpdatedAt = now.Format(time.RFC3339)

	if err := s.repo.Put(ctx, c); err != nil {
		return nil, err
	}
	c.Recompute(now)
	return c, nil
}

// Delete soft-deletes a commitment: a shadow copy goes to the shadow store
// (24h TTL) before the record is removed.
func (s *Service) Delete(ctx context.Context, userID, commitmentID string) error {
	c, err := s.repo.Get(ctx, userID, commitmentID)
	if err != nil {
		return err
	}

	shadow := &DeletedShadow{
		CommitmentID: commitmentID,
		UserID:       userID,
		Data:         *c,
		DeletedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.shadow.Save(ctx, shadow); err != nil {
		logger.Warn("commitment: shadow save failed, delete is not restorable",
			"user_id", userID, "commitment_id", commitmentID, "error", err)
	}

	return s.repo.Delete(ctx, userID, commitmentID)
}

// Restore brings a deleted commitment back within its 24-hour window.
// The restored record is always reopened: completed=false, status active.
func (s *Service) Restore(ctx context.Context, userID, commitmentID string) (*Commitment, error) {
	shadow, err := s.shadow.Get(ctx, userID, commitmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	c := shadow.Data
	c.Completed = false
	c.Status = StatusActive
	c.CompletedAt = ""
	c.RestoredAt = now
	c.UpdatedAt = now

	if err := s.repo.Put(ctx, &c); err != nil {
		return nil, err
	}
	if err := s.shadow.Delete(ctx, userID, commitmentID); err != nil {
		logger.Warn("commitment: shadow cleanup after restore failed",
			"user_id", userID, "commitment_id", commitmentID, "error", err)
	}
	return &c, nil
}

// ListDeleted returns shadow copies still inside their restore window,
// newest first.
func (s *Service) ListDeleted(ctx context.Context, userID string, limit int) ([]DeletedShadow, error) {
	return s.shadow.List(ctx, userID, limit)
}

// ListCompleted returns completed commitments, optionally narrowed to the
// ones completed today (UTC).
func (s *Service) ListCompleted(ctx context.Context, userID string, limit int, todayOnly bool) ([]Commitment, error) {
	completed := true
	items, err := s.repo.List(ctx, userID, &completed, limit)
	if err != nil {
		return nil, err
	}
	if !todayOnly {
		return items, nil
	}

	today := time.Now().UTC().Format("2006-01-02")
	out := make([]Commitment, 0, len(items))
	for _, c := range items {
		if strings.HasPrefix(c.CompletedAt, today) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CountOpen returns how many of the user's commitments are still open.
// The backfill records this on the connection state when it finishes.
func (s *Service) CountOpen(ctx context.Context, userID string) (int, error) {
	open := false
	items, err := s.repo.List(ctx, userID, &open, 0)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
