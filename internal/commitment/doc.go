// Package commitment implements the commitment lifecycle: status
// recalculation, completion, soft deletion with a 24-hour restore window,
// and the filtered query surface with deadline buckets.
//
// The service layer depends on the small repository interfaces defined in
// this package; the DynamoDB and Redis implementations live in
// internal/storage. Statuses are recomputed on every read — the stored
// status is a cache, never the source of truth.
package commitment
