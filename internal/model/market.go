package model

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// MarketTag identifies the trading calendar an instrument follows.
type MarketTag string

const (
	MarketUS      MarketTag = "US"
	MarketIndex   MarketTag = "INDEX"
	MarketIndia   MarketTag = "IN"
	MarketUK      MarketTag = "UK"
	MarketGermany MarketTag = "DE"
	MarketJapan   MarketTag = "JP"
	MarketHK      MarketTag = "HK"
	MarketDefault MarketTag = "DEFAULT"
)

var knownMarkets = map[MarketTag]struct{}{
	MarketUS:      {},
	MarketIndex:   {},
	MarketIndia:   {},
	MarketUK:      {},
	MarketGermany: {},
	MarketJapan:   {},
	MarketHK:      {},
}

// ParseMarketTag maps any catalog string onto a known tag. Unknown or empty
// values become MarketDefault.
func ParseMarketTag(s string) MarketTag {
	tag := MarketTag(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownMarkets[tag]; ok {
		return tag
	}
	return MarketDefault
}

func (t MarketTag) String() string { return string(t) }

// SymbolProfile is one catalog entry.
type SymbolProfile struct {
	Symbol      string    `json:"symbol" yaml:"symbol"`
	DisplayName string    `json:"display_name" yaml:"name"`
	Market      MarketTag `json:"market_tag" yaml:"market"`
}

// RawCandle is a single bar as returned by a quote source. Any field may be
// null when the venue reported no trade for the bar.
type RawCandle struct {
	Time   time.Time
	Open   null.Float
	High   null.Float
	Low    null.Float
	Close  null.Float
	Volume null.Float
	// Naive marks timestamps that carry wall-clock time without a zone; the
	// normalizer reads them in the market's location.
	Naive bool
}
