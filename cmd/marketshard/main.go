package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"MarketShard/internal/artifact"
	"MarketShard/internal/catalog"
	"MarketShard/internal/collector"
	"MarketShard/internal/config"
	"MarketShard/internal/notifier"
	"MarketShard/internal/persist"
	"MarketShard/internal/recorder"
	"MarketShard/internal/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotenv(); err != nil {
		logrus.Errorf("load dotenv: %v", err)
		return 1
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Errorf("load config: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logrus.Errorf("config validation: %v", err)
		return 1
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Errorf("init logger: %v", err)
		return 1
	}
	logger.Info("MarketShard starting...")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init catalog
	var cat catalog.Catalog
	switch cfg.Catalog.Kind {
	case config.KindFile:
		fc, err := catalog.NewFileCatalog(cfg.Catalog.Path)
		if err != nil {
			logger.Errorf("open file catalog: %v", err)
			return 1
		}
		cat = fc
	default:
		store, err := catalog.OpenStore(cfg.Catalog.DSN, logger)
		if err != nil {
			logger.Errorf("open catalog: %v", err)
			return 1
		}
		defer store.Close()
		cat = store
	}

	// Init ledger
	var ledger recorder.Recorder
	switch cfg.Ledger.Kind {
	case config.KindPostgres:
		ledger, err = recorder.NewPostgresRecorder(ctx, cfg.Ledger.DSN, logger)
	default:
		ledger, err = recorder.NewSQLiteRecorder(cfg.Ledger.SQLitePath, logger)
	}
	if err != nil {
		logger.Errorf("open ledger: %v", err)
		return 1
	}
	defer ledger.Close()

	// Init cache artifact sinks
	var sinks artifact.MultiStore
	if cfg.Cache.Dir != "" {
		dir, err := artifact.NewDirStore(cfg.Cache.Dir)
		if err != nil {
			logger.Errorf("open cache dir: %v", err)
			return 1
		}
		sinks = append(sinks, dir)
	}
	if cfg.Cache.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			logger.Errorf("connect redis: %v", err)
			return 1
		}
		defer client.Close()
		sinks = append(sinks, artifact.NewRedisStore(client, cfg.Cache.Redis.Prefix, cfg.Cache.Redis.TTL))
	}

	// Init quote source
	var source collector.QuoteSource
	switch cfg.Quote.Kind {
	case config.KindBars:
		source = collector.NewBarsSource(cfg.Quote.BaseURL, cfg.Quote.APIKey, cfg.Proxy)
	default:
		source = collector.NewYahooSource(cfg.Proxy, cfg.Quote.Concurrency)
	}
	logger.WithField("source", source.Name()).Info("quote source ready")

	writer := &persist.Writer{
		Ledger:       ledger,
		Artifacts:    sinks,
		BatchSize:    cfg.Ledger.BatchSize,
		Retention:    cfg.Ledger.Retention,
		SnapshotName: cfg.Cache.SnapshotName,
		Log:          logger,
	}
	col := &collector.Collector{
		Source:     source,
		Step:       cfg.Pipeline.Step,
		ChartStep:  cfg.Pipeline.ChartStep,
		ChunkSize:  cfg.Pipeline.ChunkSize,
		ChunkDelay: cfg.Pipeline.ChunkDelay,
		Workers:    cfg.Pipeline.Workers,
		Window:     collector.Window{Period: cfg.Quote.Period, Interval: cfg.Quote.Interval},
		Sink:       writer,
		Log:        logger,
	}
	runner := &scheduler.Runner{
		Catalog:   cat,
		PageSize:  cfg.Catalog.PageSize,
		Collector: col,
		Timeout:   cfg.Pipeline.RunTimeout,
		Log:       logger,
	}
	if cfg.NotifyEnabled() {
		runner.Notifier = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	}

	if os.Getenv("RUN_ONCE") == "true" || cfg.Schedule.Cron == "" {
		return runOnce(ctx, logger, runner)
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, runner, logger)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		logger.Errorf("register cron task: %v", err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	// Optional: run immediately on start
	if cfg.Schedule.RunOnStart {
		logger.Info("RUN_ON_START enabled, executing scrape now")
		go sched.RunNow()
	}

	logger.Info("MarketShard is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutdown signal received, stopping...")
	return 0
}

// runOnce exits non-zero when the catalog or the ledger write failed.
func runOnce(ctx context.Context, logger *logrus.Logger, runner *scheduler.Runner) int {
	rep, err := runner.RunOnce(ctx)
	switch {
	case rep == nil:
		logger.Errorf("run aborted: %v", err)
		return 1
	case rep.PersistErr != nil:
		return 1
	}
	logger.Info("MarketShard stopped")
	return 0
}
