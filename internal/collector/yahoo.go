package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"golang.org/x/sync/errgroup"

	"MarketShard/internal/model"
)

const (
	yahooBaseURL            = "https://query1.finance.yahoo.com"
	defaultYahooConcurrency = 8
)

// errNotFound is returned for symbols Yahoo does not know; they are omitted.
var errNotFound = errors.New("symbol not found")

// YahooSource implements QuoteSource using the Yahoo Finance chart API. The
// chart endpoint is per symbol, so a chunk fans out with bounded concurrency.
type YahooSource struct {
	BaseURL     string
	Client      *http.Client
	Concurrency int
	SymbolMap   map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooSource creates a Yahoo source with optional proxy support.
func NewYahooSource(proxyURL string, concurrency int) *YahooSource {
	if concurrency <= 0 {
		concurrency = defaultYahooConcurrency
	}
	return &YahooSource{
		BaseURL:     yahooBaseURL,
		Client:      newHTTPClient(proxyURL),
		Concurrency: concurrency,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (f *YahooSource) Name() string { return "yahoo" }

func (f *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchCandles fetches every symbol of the chunk. Unknown symbols are left
// out of the result. Symbols whose request failed or whose response failed
// schema validation are reported in a SymbolErrors next to the table. The
// call fails as a whole only when no request reached Yahoo successfully.
func (f *YahooSource) FetchCandles(ctx context.Context, symbols []string, window Window) (map[string][]model.RawCandle, error) {
	window = window.withDefaults()
	out := make(map[string][]model.RawCandle, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var (
		mu        sync.Mutex
		transport int
		lastErr   error
		failed    = SymbolErrors{}
	)
	g := new(errgroup.Group)
	g.SetLimit(f.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			bars, err := f.fetchChart(ctx, symbol, window)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if len(bars) > 0 {
					out[symbol] = bars
				}
			case errors.Is(err, errNotFound):
			case errors.Is(err, ErrSchema):
				failed[symbol] = err
			default:
				failed[symbol] = err
				transport++
				lastErr = err
			}
			return nil
		})
	}
	_ = g.Wait()

	if transport == len(symbols) {
		return nil, fmt.Errorf("yahoo: all %d requests failed: %w", len(symbols), lastErr)
	}
	if len(failed) > 0 {
		return out, failed
	}
	return out, nil
}

func (f *YahooSource) fetchChart(ctx context.Context, symbol string, window Window) ([]model.RawCandle, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), url.QueryEscape(window.Interval), url.QueryEscape(window.Period))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body %s: %w", symbol, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, errNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s: status %d, body: %s", symbol, resp.StatusCode, truncate(string(body), 200))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode %s: %w: %v", symbol, ErrSchema, err)
	}
	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("yahoo %s: %w", symbol, errNotFound)
		}
		return nil, fmt.Errorf("yahoo api error %s: %s", symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: no quote block: %w", symbol, ErrSchema)
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	for name, col := range map[string][]*float64{
		"open": quote.Open, "high": quote.High, "low": quote.Low, "close": quote.Close, "volume": quote.Volume,
	} {
		if len(col) != n {
			return nil, fmt.Errorf("yahoo %s: %s has %d values for %d timestamps: %w", symbol, name, len(col), n, ErrSchema)
		}
	}

	bars := make([]model.RawCandle, 0, n)
	for i, ts := range result.Timestamp {
		bar := model.RawCandle{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   null.FloatFromPtr(quote.Open[i]),
			High:   null.FloatFromPtr(quote.High[i]),
			Low:    null.FloatFromPtr(quote.Low[i]),
			Close:  null.FloatFromPtr(quote.Close[i]),
			Volume: null.FloatFromPtr(quote.Volume[i]),
		}
		if !bar.Open.Valid && !bar.Close.Valid {
			continue // no trade in this bar
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
