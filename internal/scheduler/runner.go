package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"MarketShard/internal/catalog"
	"MarketShard/internal/collector"
	"MarketShard/internal/model"
	"MarketShard/internal/notifier"
)

// Notifier delivers run summaries.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Runner performs one complete scrape: catalog, collect, persist, report.
type Runner struct {
	Catalog   catalog.Catalog
	PageSize  int
	Collector *collector.Collector
	Timeout   time.Duration
	Notifier  Notifier // optional
	Log       logrus.FieldLogger

	mu sync.Mutex
}

// RunOnce runs a scrape. Overlapping calls are serialized. A catalog failure
// aborts before any fetch; otherwise the report is returned even when the
// run or its persistence failed.
func (r *Runner) RunOnce(ctx context.Context) (*model.RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := r.logger()

	profiles, err := catalog.LoadAll(ctx, r.Catalog, r.PageSize)
	if err != nil {
		log.WithError(err).Error("catalog load failed")
		r.notify(ctx, fmt.Sprintf("❌ <b>MarketShard</b> catalog load failed: %v", err))
		return nil, err
	}
	log.WithField("symbols", len(profiles)).Info("catalog loaded")

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res, runErr := r.Collector.Run(runCtx, profiles)
	report := &res.Report
	r.logReport(log, report)
	r.notify(ctx, notifier.FormatRunReport(report))
	return report, runErr
}

// logReport is the one place pipeline failures are logged.
func (r *Runner) logReport(log logrus.FieldLogger, rep *model.RunReport) {
	log = log.WithField("run_id", rep.RunID.String())
	for _, c := range rep.FailedChunks() {
		log.WithFields(logrus.Fields{"chunk": c.Index, "symbols": c.Symbols}).WithError(c.Err).Warn("chunk failed")
	}
	for _, s := range rep.Symbols {
		entry := log.WithFields(logrus.Fields{"symbol": s.Symbol, "chunk": s.Chunk, "reason": s.Reason})
		switch s.Status {
		case model.StatusFailed:
			entry.WithError(s.Err).Error("symbol failed")
		case model.StatusSkipped:
			entry.Debug("symbol skipped")
		}
	}

	counts := rep.Counts()
	fields := logrus.Fields{
		"ok":       counts.OK,
		"skipped":  counts.Skipped,
		"failed":   counts.Failed,
		"chunks":   len(rep.Chunks),
		"upserted": rep.Upserted,
		"duration": rep.Duration().Round(time.Millisecond).String(),
	}
	switch {
	case rep.PersistErr != nil:
		log.WithFields(fields).WithError(rep.PersistErr).Error("run finished, persistence failed")
	case rep.RunErr != nil:
		log.WithFields(fields).WithError(rep.RunErr).Warn("run interrupted")
	default:
		log.WithFields(fields).Info("run finished")
	}
}

func (r *Runner) notify(ctx context.Context, text string) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.SendWithRetry(context.WithoutCancel(ctx), text, 3); err != nil {
		r.logger().WithError(err).Error("send notification")
	}
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log.WithField("component", "runner")
	}
	return logrus.StandardLogger().WithField("component", "runner")
}
