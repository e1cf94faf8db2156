package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler triggers the runner on a cron schedule.
type Scheduler struct {
	Cron   *cron.Cron
	Runner *Runner
	Ctx    context.Context
	log    logrus.FieldLogger
}

// NewScheduler creates a seconds-enabled scheduler. A run still in progress
// when the next tick fires makes that tick a no-op.
func NewScheduler(ctx context.Context, runner *Runner, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")
	cronLog := cron.PrintfLogger(log)
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		Runner: runner,
		Ctx:    ctx,
		log:    log,
	}
}

// Register adds the scrape job.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.scrapeTask); err != nil {
		return fmt.Errorf("register scrape task: %w", err)
	}
	s.log.WithField("cron", spec).Info("scrape task registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the scheduler and waits for a running scrape to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes the scrape immediately (RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.scrapeTask()
}

func (s *Scheduler) scrapeTask() {
	if s.Ctx.Err() != nil {
		return
	}
	s.log.Info("running scrape task")
	if _, err := s.Runner.RunOnce(s.Ctx); err != nil {
		s.log.WithError(err).Error("scrape task")
	}
}
