// Package persist writes a run's results to the ledger and the cache
// artifacts.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"MarketShard/internal/artifact"
	"MarketShard/internal/model"
	"MarketShard/internal/recorder"
	"MarketShard/internal/shard"
)

// Defaults applied when the corresponding Writer field is zero.
const (
	DefaultBatchSize    = 500
	DefaultRetention    = 7 * 24 * time.Hour
	DefaultSnapshotName = "market_data"
)

// Writer is the run's sink: ledger first, then artifacts, then retention.
type Writer struct {
	Ledger       recorder.Recorder
	Artifacts    artifact.Store
	BatchSize    int
	Retention    time.Duration // negative disables pruning
	SnapshotName string
	Now          func() time.Time
	Log          logrus.FieldLogger
}

// Persist upserts the snapshots into the ledger and publishes the snapshot and
// shard artifacts. Only a ledger failure is returned; artifact and prune
// failures are logged. The count covers rows written before any failure.
func (w *Writer) Persist(ctx context.Context, snapshots []model.PriceSnapshot, charts map[string]model.ChartPayload) (int, error) {
	log := w.logger()

	rows := dedupe(snapshots)
	upserted, ledgerErr := w.upsert(ctx, rows)
	if ledgerErr != nil {
		log.WithError(ledgerErr).WithField("upserted", upserted).Error("ledger upsert failed")
	} else {
		log.WithField("upserted", upserted).Info("ledger updated")
	}

	w.writeArtifacts(ctx, log, snapshots, charts)

	if w.Retention >= 0 {
		cutoff := w.now().Add(-w.retention())
		if n, err := w.Ledger.PruneBefore(ctx, cutoff); err != nil {
			log.WithError(err).Warn("ledger prune failed")
		} else if n > 0 {
			log.WithField("rows", n).Info("ledger pruned")
		}
	}

	return upserted, ledgerErr
}

// dedupe projects snapshots to ledger rows, keeping the last row per key.
func dedupe(snapshots []model.PriceSnapshot) []model.LedgerRow {
	index := make(map[model.LedgerKey]int, len(snapshots))
	rows := make([]model.LedgerRow, 0, len(snapshots))
	for _, s := range snapshots {
		row := s.ToLedgerRow()
		if i, ok := index[row.Key()]; ok {
			rows[i] = row
			continue
		}
		index[row.Key()] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

func (w *Writer) upsert(ctx context.Context, rows []model.LedgerRow) (int, error) {
	size := w.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	total := 0
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		n, err := w.Ledger.UpsertPrices(ctx, rows[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("upsert rows %d-%d: %w", start, end-1, err)
		}
	}
	return total, nil
}

func (w *Writer) writeArtifacts(ctx context.Context, log logrus.FieldLogger, snapshots []model.PriceSnapshot, charts map[string]model.ChartPayload) {
	if w.Artifacts == nil {
		return
	}
	name := w.SnapshotName
	if name == "" {
		name = DefaultSnapshotName
	}
	if snapshots == nil {
		snapshots = []model.PriceSnapshot{}
	}
	if err := w.Artifacts.Put(ctx, name, snapshots); err != nil {
		log.WithError(err).WithField("artifact", name).Warn("snapshot artifact write failed")
	}

	for bucket, payloads := range shard.Shard(charts) {
		if err := w.Artifacts.Put(ctx, bucket, payloads); err != nil {
			log.WithError(err).WithField("artifact", bucket).Warn("shard artifact write failed")
		}
	}
}

func (w *Writer) retention() time.Duration {
	if w.Retention == 0 {
		return DefaultRetention
	}
	return w.Retention
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Writer) logger() logrus.FieldLogger {
	if w.Log != nil {
		return w.Log.WithField("component", "persist")
	}
	return logrus.StandardLogger().WithField("component", "persist")
}
