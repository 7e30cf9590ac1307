package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lattice-trading/sigexec/internal/exchange"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_GetCandlesReturnsAscendingOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candles":[
			{"start":"1767229200","low":"100","high":"102","open":"101","close":"101.5","volume":"5"},
			{"start":"1767225600","low":"99","high":"101","open":"100","close":"100.5","volume":"10"}
		]}`))
	}))
	defer srv.Close()

	a := NewWithURL(srv.URL, 100, 10)
	out, err := a.GetCandles(context.Background(), "BTC-USD", "1h", 2, time.Unix(1767229200, 0))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].OpenTime.Before(out[1].OpenTime), "expected ascending order despite Coinbase returning newest-first")
}

func TestAdapter_GetCandlesMaps404ToSymbolUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewWithURL(srv.URL, 100, 10)
	_, err := a.GetCandles(context.Background(), "BOGUS-USD", "1h", 2, time.Now())
	require.Error(t, err)
	assert.True(t, exchange.IsSymbolUnknown(err))
}

func TestAdapter_GetCandlesMapsServerErrorToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewWithURL(srv.URL, 100, 10)
	_, err := a.GetCandles(context.Background(), "BTC-USD", "1h", 2, time.Now())
	require.Error(t, err)
	assert.True(t, exchange.IsUnavailable(err))
}

func TestAdapter_NameAndFormatting(t *testing.T) {
	a := New(1, 1)
	assert.Equal(t, "coinbase", a.Name())
	assert.Equal(t, "100.00", a.FormatPrice("BTC-USD", decimal.NewFromInt(100)))
	assert.Equal(t, "1.00000000", a.FormatQuantity("BTC-USD", decimal.NewFromInt(1)))
}
