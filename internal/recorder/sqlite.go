package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"MarketShard/internal/model"
)

// SQLiteRecorder keeps the ledger in a local SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log logrus.FieldLogger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log logrus.FieldLogger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so chart readers do not block the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.WithField("component", "recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			symbol         TEXT    NOT NULL,
			recorded_at    INTEGER NOT NULL,
			price          REAL    NOT NULL,
			change_percent REAL    NOT NULL,
			change_value   REAL    NOT NULL,
			PRIMARY KEY (symbol, recorded_at)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_ts ON price_history(recorded_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

const sqliteUpsert = `INSERT INTO price_history
	(symbol, recorded_at, price, change_percent, change_value)
	VALUES (?,?,?,?,?)
	ON CONFLICT(symbol, recorded_at) DO UPDATE SET
		price = excluded.price,
		change_percent = excluded.change_percent,
		change_value = excluded.change_value`

// UpsertPrices writes rows in one transaction.
func (r *SQLiteRecorder) UpsertPrices(ctx context.Context, rows []model.LedgerRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.Symbol, row.RecordedAt.Unix(), row.Price, row.ChangePercent, row.ChangeValue,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", row.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

func (r *SQLiteRecorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM price_history WHERE recorded_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// History returns a symbol's rows in time order.
func (r *SQLiteRecorder) History(ctx context.Context, symbol string) ([]model.LedgerRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, recorded_at, price, change_percent, change_value
		FROM price_history WHERE symbol = ? ORDER BY recorded_at`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerRow
	for rows.Next() {
		var (
			row model.LedgerRow
			ts  int64
		)
		if err := rows.Scan(&row.Symbol, &ts, &row.Price, &row.ChangePercent, &row.ChangeValue); err != nil {
			return nil, err
		}
		row.RecordedAt = time.Unix(ts, 0).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
