package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketShard/internal/model"
)

const constituentsCSV = "\ufeffSymbol,Security,GICS Sector\n" +
	"AAPL,Apple Inc.,Information Technology\n" +
	"BRK.B,Berkshire Hathaway,Financials\n" +
	",Blank Row,Nothing\n" +
	"MSFT,Microsoft,Information Technology\n"

func serveCSV(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchConstituents(t *testing.T) {
	srv := serveCSV(t, http.StatusOK, constituentsCSV)

	got, err := FetchConstituents(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []model.SymbolProfile{
		{Symbol: "AAPL", DisplayName: "Apple Inc.", Market: model.MarketUS},
		{Symbol: "BRK-B", DisplayName: "Berkshire Hathaway", Market: model.MarketUS},
		{Symbol: "MSFT", DisplayName: "Microsoft", Market: model.MarketUS},
	}, got)
}

func TestFetchConstituents_BadStatus(t *testing.T) {
	srv := serveCSV(t, http.StatusServiceUnavailable, "down")

	_, err := FetchConstituents(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "status 503")
}

func TestFetchConstituents_MissingColumn(t *testing.T) {
	srv := serveCSV(t, http.StatusOK, "Ticker,Sector\nAAPL,Tech\n")

	_, err := FetchConstituents(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "lacks Symbol and Security")
}

func TestFetchConstituents_Canceled(t *testing.T) {
	srv := serveCSV(t, http.StatusOK, constituentsCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchConstituents(ctx, srv.Client(), srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	downloaded := []model.SymbolProfile{
		{Symbol: "AAPL", DisplayName: "Apple", Market: model.MarketUS},
		{Symbol: "MSFT", DisplayName: "Microsoft", Market: model.MarketUS},
	}
	seed := []model.SymbolProfile{
		{Symbol: "^GSPC", DisplayName: "S&P 500 Index", Market: model.MarketIndex},
		{Symbol: " AAPL ", DisplayName: "Apple Inc.", Market: model.MarketUS},
		{Symbol: "", DisplayName: "blank"},
	}

	got := Merge(downloaded, seed)
	require.Len(t, got, 3)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "Apple Inc.", got[0].DisplayName)
	assert.Equal(t, "MSFT", got[1].Symbol)
	assert.Equal(t, "^GSPC", got[2].Symbol)
}
