// Package pipeline moves messages into commitments: the first-connect
// historical backfill and the webhook-driven live ingest behind an
// in-process job queue.
package pipeline

import (
	"context"
	"sync"

	"github.com/foundercrm/commitment-engine/internal/pkg/logger"
)

// Job is one webhook-delivered message to ingest.
type Job struct {
	UserID       string
	ConnectionID string
	MessageID    string
}

// Handler processes one job. Errors stay inside the handler; a failed job is
// logged and dropped, never retried into a poison loop.
type Handler func(ctx context.Context, job Job)

// Queue is a buffered in-process job queue with a fixed worker pool.
type Queue struct {
	jobs    chan Job
	handler Handler
	workers int

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewQueue builds a queue with the given worker count and buffer size.
func NewQueue(workers, size int, handler Handler) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if size <= 0 {
		size = 256
	}
	return &Queue{
		jobs:    make(chan Job, size),
		handler: handler,
		workers: workers,
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	logger.Info("pipeline: queue started", "workers", q.workers, "buffer", cap(q.jobs))
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handler(ctx, job)
		case <-ctx.Done():
			// Drain what is already buffered before exiting.
			for {
				select {
				case job, ok := <-q.jobs:
					if !ok {
						return
					}
					q.handler(context.Background(), job)
				default:
					return
				}
			}
		}
	}
}

// Enqueue adds a job without blocking. A full queue drops the job; the
// webhook was already acknowledged, and the aggregator's next trigger for
// the thread covers the gap.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		logger.Warn("pipeline: queue full, dropping job",
			"user_id", job.UserID, "message_id", job.MessageID)
		return false
	}
}

// Stop closes the queue and waits for the workers to finish.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.jobs)
		if q.cancel != nil {
			q.cancel()
		}
	})
	q.wg.Wait()
}
