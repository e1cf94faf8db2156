package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// PriceSnapshot is the latest computed price record for one symbol in one run.
type PriceSnapshot struct {
	Symbol         string    `json:"symbol"`
	DisplayName    string    `json:"display_name"`
	MarketTag      MarketTag `json:"market_tag"`
	Price          float64   `json:"price"`
	ReferencePrice float64   `json:"reference_price"`
	ChangeValue    float64   `json:"change_value"`
	ChangePercent  float64   `json:"change_percent"`
	ComputedAt     time.Time `json:"computed_at"`
}

// LedgerRow is the durable projection of a snapshot, keyed by (Symbol, RecordedAt).
type LedgerRow struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	ChangeValue   float64
	RecordedAt    time.Time
}

// LedgerKey is the composite identity of a ledger row.
type LedgerKey struct {
	Symbol     string
	RecordedAt int64
}

// Key returns the row's upsert key.
func (r LedgerRow) Key() LedgerKey {
	return LedgerKey{Symbol: r.Symbol, RecordedAt: r.RecordedAt.Unix()}
}

// ToLedgerRow drops display metadata.
func (s PriceSnapshot) ToLedgerRow() LedgerRow {
	return LedgerRow{
		Symbol:        s.Symbol,
		Price:         s.Price,
		ChangePercent: s.ChangePercent,
		ChangeValue:   s.ChangeValue,
		RecordedAt:    s.ComputedAt,
	}
}

// ChartPayload is the compact chart form written to history shards.
type ChartPayload struct {
	Start  int64        `json:"s"`
	Prices []null.Float `json:"p"`
}
