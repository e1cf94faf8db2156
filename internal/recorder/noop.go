package recorder

import (
	"context"
	"time"

	"MarketShard/internal/model"
)

// NoopRecorder accepts and discards every row. Used for dry runs.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) UpsertPrices(_ context.Context, rows []model.LedgerRow) (int, error) {
	return len(rows), nil
}
func (n *NoopRecorder) PruneBefore(_ context.Context, _ time.Time) (int64, error) { return 0, nil }
func (n *NoopRecorder) Close() error                                            { return nil }
