package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"MarketShard/internal/model"
)

// BarsSource implements QuoteSource against a REST bars service that answers
// a whole chunk in one request.
type BarsSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewBarsSource creates a new source with optional proxy support.
func NewBarsSource(baseURL, apiKey, proxyURL string) *BarsSource {
	return &BarsSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *BarsSource) Name() string { return "bars" }

// restBar is the expected JSON shape from the bars API. Timestamps are unix
// seconds; a string timestamp without zone is accepted as wall-clock time.
type restBar struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Open      *float64        `json:"open"`
	High      *float64        `json:"high"`
	Low       *float64        `json:"low"`
	Close     *float64        `json:"close"`
	Volume    *float64        `json:"volume"`
}

const naiveLayout = "2006-01-02 15:04:05"

func (f *BarsSource) FetchCandles(ctx context.Context, symbols []string, window Window) (map[string][]model.RawCandle, error) {
	window = window.withDefaults()
	out := make(map[string][]model.RawCandle, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("range", window.Period)
	q.Set("interval", window.Interval)
	endpoint := fmt.Sprintf("%s/api/v1/bars?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var table map[string][]restBar
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode bars: %w: %v", ErrSchema, err)
	}

	failed := SymbolErrors{}
	for _, symbol := range symbols {
		rows, ok := table[symbol]
		if !ok || len(rows) == 0 {
			continue
		}
		bars, err := convertBars(rows)
		if err != nil {
			// one malformed table fails that symbol only
			failed[symbol] = err
			continue
		}
		if len(bars) > 0 {
			out[symbol] = bars
		}
	}
	if len(failed) > 0 {
		return out, failed
	}
	return out, nil
}

func convertBars(rows []restBar) ([]model.RawCandle, error) {
	bars := make([]model.RawCandle, 0, len(rows))
	for _, rb := range rows {
		ts, naive, err := parseTimestamp(rb.Timestamp)
		if err != nil {
			return nil, err
		}
		bar := model.RawCandle{
			Time:   ts,
			Open:   null.FloatFromPtr(rb.Open),
			High:   null.FloatFromPtr(rb.High),
			Low:    null.FloatFromPtr(rb.Low),
			Close:  null.FloatFromPtr(rb.Close),
			Volume: null.FloatFromPtr(rb.Volume),
			Naive:  naive,
		}
		if !bar.Open.Valid && !bar.Close.Valid {
			continue
		}
		bars = append(bars, bar)
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool, error) {
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(unix, 0).UTC(), false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false, fmt.Errorf("timestamp %s: %w", string(raw), ErrSchema)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(naiveLayout, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timestamp %q: %w", s, ErrSchema)
	}
	return t, true, nil
}
