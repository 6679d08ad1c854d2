package pipeline

import (
	"context"

	"github.com/foundercrm/commitment-engine/internal/aggregator"
	"github.com/foundercrm/commitment-engine/internal/commitment"
	"github.com/foundercrm/commitment-engine/internal/config"
	"github.com/foundercrm/commitment-engine/internal/connection"
	"github.com/foundercrm/commitment-engine/internal/credits"
	"github.com/foundercrm/commitment-engine/internal/email"
	"github.com/foundercrm/commitment-engine/internal/extraction"
)

// MessageSource is the slice of the aggregator client the pipeline reads
// mail through.
type MessageSource interface {
	SearchMessages(ctx context.Context, params aggregator.SearchParams) (*aggregator.SearchResult, error)
	GetMessage(ctx context.Context, connectionID, messageID string) (*aggregator.Message, error)
}

// Extractor runs one parsed email through the extraction contract.
type Extractor interface {
	Extract(ctx context.Context, parsed *email.ParsedEmail, user extraction.UserContext) (*extraction.Result, error)
}

// Crediter is the slice of the credit meter the pipeline consults.
type Crediter interface {
	InitializeIfMissing(ctx context.Context, userID string) (*credits.Record, error)
	HasCredits(ctx context.Context, userID string) (bool, error)
}

// Archiver stores raw message payloads. Best-effort.
type Archiver interface {
	ArchiveMessage(ctx context.Context, userID, messageID string, raw any) error
}

// Pipeline ingests messages: Run covers the first-connect backfill
// (implementing the connection state machine's backfill contract) and
// HandleJob covers one live webhook message.
type Pipeline struct {
	source      MessageSource
	engine      Extractor
	commitments *commitment.Service
	repo        commitment.Repository
	meter       Crediter
	archive     Archiver
	states      connection.Store
	sync        config.SyncConfig
	ingest      keyedMutex
}

// New wires the pipeline.
func New(
	source MessageSource,
	engine Extractor,
	commitments *commitment.Service,
	repo commitment.Repository,
	meter Crediter,
	archive Archiver,
	states connection.Store,
	sync config.SyncConfig,
) *Pipeline {
	if sync.MaxInbox <= 0 {
		sync.MaxInbox = 100
	}
	if sync.MaxSent <= 0 {
		sync.MaxSent = 100
	}
	if sync.Batch <= 0 {
		sync.Batch = 50
	}
	return &Pipeline{
		source:      source,
		engine:      engine,
		commitments: commitments,
		repo:        repo,
		meter:       meter,
		archive:     archive,
		states:      states,
		sync:        sync,
		ingest:      keyedMutex{locks: make(map[string]*lockEntry)},
	}
}

func userContext(state *connection.State) extraction.UserContext {
	return extraction.UserContext{
		UserID: state.UserID,
		Email:  state.FounderEmail,
		Name:   state.FounderName,
	}
}
