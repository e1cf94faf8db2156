// Package recorder is the durable price ledger. Rows are keyed by
// (symbol, recorded_at); writing the same key again updates it in place.
package recorder

import (
	"context"
	"time"

	"MarketShard/internal/model"
)

// Recorder persists ledger rows.
type Recorder interface {
	// UpsertPrices writes rows and returns how many were written. Rows must
	// not repeat a key within one call.
	UpsertPrices(ctx context.Context, rows []model.LedgerRow) (int, error)
	// PruneBefore deletes rows recorded before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

var (
	_ Recorder = (*SQLiteRecorder)(nil)
	_ Recorder = (*PostgresRecorder)(nil)
	_ Recorder = (*NoopRecorder)(nil)
)
