package candlecache

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/exchange/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyCandles(n int) []candle.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		p := candle.NewFromFloat(100 + float64(i))
		out[i] = candle.Candle{
			Symbol: "BTC-USD", Interval: "1h", OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open: p, High: p, Low: p, Close: p, Volume: candle.NewFromFloat(1),
		}
	}
	return out
}

func TestCache_GetFetchesFromAdapterOnMiss(t *testing.T) {
	candles := hourlyCandles(5)
	adapter := simulated.New("BTC-USD", candles)
	c := New(adapter, 64)

	out, err := c.Get(context.Background(), "BTC-USD", "1h", 3, candles[4].OpenTime)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[2].Close.Equal(candles[4].Close))
	assert.Equal(t, 3, c.Len(), "the fetched window should have been cached")
}

func TestCache_GetServesFromCacheOnSecondCall(t *testing.T) {
	candles := hourlyCandles(5)
	adapter := simulated.New("BTC-USD", candles)
	c := New(adapter, 64)

	_, err := c.Get(context.Background(), "BTC-USD", "1h", 3, candles[4].OpenTime)
	require.NoError(t, err)

	out, err := c.Get(context.Background(), "BTC-USD", "1h", 3, candles[4].OpenTime)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].Close.Equal(candles[2].Close))
}

func TestCache_WindowReturnsFullOrderedFrame(t *testing.T) {
	candles := hourlyCandles(6)
	adapter := simulated.New("BTC-USD", candles)
	c := New(adapter, 64)

	out, err := c.Window(context.Background(), "BTC-USD", "1h", candles[0].OpenTime, candles[5].OpenTime, 2)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, cd := range out {
		assert.True(t, cd.OpenTime.Equal(candles[i].OpenTime), "candle %d out of order", i)
	}
}

func TestCache_LRUEvictsOldestAboveSoftCap(t *testing.T) {
	candles := hourlyCandles(5)
	adapter := simulated.New("BTC-USD", candles)
	c := New(adapter, 2)

	_, err := c.Get(context.Background(), "BTC-USD", "1h", 5, candles[4].OpenTime)
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Len(), 2)
}

func TestCache_GetRejectsInvalidInterval(t *testing.T) {
	adapter := simulated.New("BTC-USD", hourlyCandles(1))
	c := New(adapter, 64)

	_, err := c.Get(context.Background(), "BTC-USD", "bogus", 1, time.Now())
	assert.Error(t, err)
}
