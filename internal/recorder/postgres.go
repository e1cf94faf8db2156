package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"MarketShard/internal/model"
)

// PostgresRecorder keeps the ledger in PostgreSQL.
type PostgresRecorder struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

// NewPostgresRecorder connects, pings and migrates.
func NewPostgresRecorder(ctx context.Context, dsn string, log logrus.FieldLogger) (*PostgresRecorder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := &PostgresRecorder{pool: pool, log: log.WithField("component", "recorder")}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	r.log.Info("postgres recorder opened")
	return r, nil
}

// Migrate creates the ledger table if missing.
func (r *PostgresRecorder) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			symbol         TEXT             NOT NULL,
			recorded_at    TIMESTAMPTZ      NOT NULL,
			price          DOUBLE PRECISION NOT NULL,
			change_percent DOUBLE PRECISION NOT NULL,
			change_value   DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (symbol, recorded_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_ts ON price_history(recorded_at)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *PostgresRecorder) UpsertPrices(ctx context.Context, rows []model.LedgerRow) (int, error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO price_history (symbol, recorded_at, price, change_percent, change_value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol, recorded_at) DO UPDATE
			SET price = EXCLUDED.price,
			    change_percent = EXCLUDED.change_percent,
			    change_value = EXCLUDED.change_value`,
			row.Symbol,
			row.RecordedAt.UTC(),
			row.Price,
			row.ChangePercent,
			row.ChangeValue,
		)
	}
	if err := execBatch(ctx, r.pool, batch); err != nil {
		return 0, fmt.Errorf("upsert prices: %w", err)
	}
	return batch.Len(), nil
}

func (r *PostgresRecorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM price_history WHERE recorded_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRecorder) Close() error {
	r.log.Info("closing postgres recorder")
	r.pool.Close()
	return nil
}

func execBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
