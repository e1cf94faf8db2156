package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"MarketShard/internal/catalog"
	"MarketShard/internal/config"
	"MarketShard/internal/model"
)

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("file", "configs/profiles.yaml", "profiles YAML to upload")
	chunk := flag.Int("chunk", catalog.DefaultUpsertChunk, "profiles per upsert batch")
	sp500 := flag.Bool("sp500", true, "merge the S&P 500 constituents list before the seed file")
	flag.Parse()

	if err := config.LoadDotenv(); err != nil {
		logrus.Errorf("load dotenv: %v", err)
		return 1
	}
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Errorf("load config: %v", err)
		return 1
	}
	if cfg.Catalog.DSN == "" {
		logrus.Error("catalog.dsn (or CATALOG_DSN) is required")
		return 1
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		logrus.Errorf("init logger: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := catalog.ReadSeedFile(*file)
	if err != nil {
		logger.Errorf("read seed file: %v", err)
		return 1
	}

	var index []model.SymbolProfile
	if *sp500 {
		url := cfg.Catalog.ConstituentsURL
		if url == "" {
			url = catalog.DefaultConstituentsURL
		}
		index, err = catalog.FetchConstituents(ctx, &http.Client{Timeout: 30 * time.Second}, url)
		if err != nil {
			logger.WithError(err).Warn("S&P 500 list unavailable, seeding from file only")
		} else {
			logger.WithField("count", len(index)).Info("fetched S&P 500 constituents")
		}
	}
	profiles := catalog.Merge(index, seed.Profiles)

	store, err := catalog.OpenStore(cfg.Catalog.DSN, logger)
	if err != nil {
		logger.Errorf("open catalog: %v", err)
		return 1
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Errorf("migrate catalog: %v", err)
		return 1
	}

	logger.WithField("profiles", len(profiles)).Info("uploading profiles")
	n, err := store.Upsert(ctx, profiles, *chunk)
	if err != nil {
		logger.WithError(err).WithField("uploaded", n).Error("some batches failed")
		return 1
	}
	logger.WithField("uploaded", n).Info("catalog seeded")
	return 0
}
