// Package warehouse streams credit usage events into Snowflake for
// billing analytics. Events are buffered in memory and flushed on a
// ticker; a lost batch costs analytics rows, never billing state, since
// DynamoDB remains the system of record.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	appconfig "github.com/foundercrm/commitment-engine/internal/config"
	"github.com/foundercrm/commitment-engine/internal/credits"
	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

const (
	defaultTable    = "USAGE_EVENTS"
	defaultInterval = time.Minute
	maxBuffered     = 10000
)

type row struct {
	userID string
	ev     credits.UsageEvent
}

// Exporter buffers usage events and writes them to Snowflake in batches.
// It implements the credit meter's event sink.
type Exporter struct {
	db       *sql.DB
	table    string
	interval time.Duration

	mu     sync.Mutex
	buf    []row
	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the Snowflake connection and returns an exporter. Returns
// (nil, nil) when the warehouse is disabled so callers can pass the nil
// sink straight to the meter.
func New(cfg appconfig.WarehouseConfig) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// DSN format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB, cfg appconfig.WarehouseConfig) *Exporter {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	interval := cfg.FlushInterval()
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Exporter{
		db:       db,
		table:    table,
		interval: interval,
	}
}

// Emit queues one usage event. Never blocks the debit path; when the
// buffer is full the oldest events are dropped.
func (e *Exporter) Emit(userID string, ev credits.UsageEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buf) >= maxBuffered {
		drop := len(e.buf) - maxBuffered + 1
		e.buf = e.buf[drop:]
		logger.Warn("warehouse: buffer full, dropping oldest events", "dropped", drop)
	}
	e.buf = append(e.buf, row{userID: userID, ev: ev})
}

// Start launches the periodic flusher.
func (e *Exporter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.Flush(ctx); err != nil {
					logger.Error("warehouse: flush failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the flusher and drains what is buffered.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		logger.Error("warehouse: final flush failed", "error", err)
	}
	if err := e.db.Close(); err != nil {
		logger.Error("warehouse: close failed", "error", err)
	}
}

// Flush writes all buffered events in one multi-row INSERT. Failed
// batches are requeued ahead of newer events.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.buf
	e.buf = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*6)
	for _, r := range batch {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.userID,
			r.ev.Timestamp,
			r.ev.InputTokens,
			r.ev.OutputTokens,
			r.ev.Credits,
			r.ev.Reason,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (USER_ID, EVENT_AT, INPUT_TOKENS, OUTPUT_TOKENS, CREDITS, REASON) VALUES %s",
		e.table, strings.Join(placeholders, ", "),
	)

	if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
		e.mu.Lock()
		e.buf = append(batch, e.buf...)
		e.mu.Unlock()
		return fmt.Errorf("inserting %d usage events: %w", len(batch), err)
	}

	logger.Info("warehouse: usage events exported", "count", len(batch))
	return nil
}

// Pending returns the number of buffered events. Used by tests and the
// health endpoint.
func (e *Exporter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buf)
}
