package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"MarketShard/internal/model"
)

// DefaultUpsertChunk is the seeding batch size.
const DefaultUpsertChunk = 100

// profileRow maps the stock_profiles table.
type profileRow struct {
	Symbol      string `gorm:"column:symbol;primaryKey"`
	CompanyName string `gorm:"column:company_name"`
	Market      string `gorm:"column:market"`
}

func (profileRow) TableName() string { return "stock_profiles" }

func rowFromProfile(p model.SymbolProfile) profileRow {
	return profileRow{Symbol: p.Symbol, CompanyName: p.DisplayName, Market: string(p.Market)}
}

func (r profileRow) profile() model.SymbolProfile {
	return model.SymbolProfile{
		Symbol:      r.Symbol,
		DisplayName: r.CompanyName,
		Market:      model.ParseMarketTag(r.Market),
	}
}

// Store is the Postgres-backed catalog.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// OpenStore connects to Postgres.
func OpenStore(dsn string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &Store{db: db, log: log.WithField("component", "catalog")}, nil
}

// Migrate creates stock_profiles if missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&profileRow{})
}

func (s *Store) Page(ctx context.Context, offset, limit int) ([]model.SymbolProfile, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).
		Order("symbol").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.SymbolProfile, len(rows))
	for i, r := range rows {
		out[i] = r.profile()
	}
	return out, nil
}

// Upsert inserts profiles in chunks, updating name and market of existing
// symbols. A failed chunk is logged and skipped; the failures are returned
// joined along with the number of rows written.
func (s *Store) Upsert(ctx context.Context, profiles []model.SymbolProfile, chunk int) (int, error) {
	if chunk <= 0 {
		chunk = DefaultUpsertChunk
	}
	var (
		written int
		errs    []error
	)
	for start := 0; start < len(profiles); start += chunk {
		end := min(start+chunk, len(profiles))
		rows := make([]profileRow, 0, end-start)
		for _, p := range profiles[start:end] {
			rows = append(rows, rowFromProfile(p))
		}

		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"company_name", "market"}),
		}).Create(&rows).Error
		if err != nil {
			s.log.WithError(err).WithField("batch", fmt.Sprintf("%d-%d", start, end)).Error("profile batch failed")
			errs = append(errs, fmt.Errorf("batch %d-%d: %w", start, end, err))
			continue
		}
		written += len(rows)
		s.log.WithField("batch", fmt.Sprintf("%d-%d", start, end)).Info("profile batch uploaded")
	}
	return written, errors.Join(errs...)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
