package stream

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_ApplyTickAggregatesWithinSameBucket(t *testing.T) {
	a := New("test", "wss://example.invalid", DecodeJSONTicks)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a.applyTick(Tick{Symbol: "BTC-USD", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), At: base}, "1h")
	a.applyTick(Tick{Symbol: "BTC-USD", Price: decimal.NewFromInt(105), Volume: decimal.NewFromInt(2), At: base.Add(10 * time.Minute)}, "1h")
	a.applyTick(Tick{Symbol: "BTC-USD", Price: decimal.NewFromInt(95), Volume: decimal.NewFromInt(1), At: base.Add(20 * time.Minute)}, "1h")

	out, err := a.GetCandles(context.Background(), "BTC-USD", "1h", 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	c := out[0]
	assert.True(t, c.Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.High.Equal(decimal.NewFromInt(105)))
	assert.True(t, c.Low.Equal(decimal.NewFromInt(95)))
	assert.True(t, c.Close.Equal(decimal.NewFromInt(95)))
	assert.True(t, c.Volume.Equal(decimal.NewFromInt(4)))
}

func TestAdapter_ApplyTickStartsNewBucketOnBoundaryCross(t *testing.T) {
	a := New("test", "wss://example.invalid", DecodeJSONTicks)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	a.applyTick(Tick{Symbol: "BTC-USD", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), At: base}, "1h")
	a.applyTick(Tick{Symbol: "BTC-USD", Price: decimal.NewFromInt(110), Volume: decimal.NewFromInt(1), At: base.Add(time.Hour)}, "1h")

	out, err := a.GetCandles(context.Background(), "BTC-USD", "1h", 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].OpenTime.Before(out[1].OpenTime))
}

func TestAdapter_GetCandlesReturnsEmptyForUnknownKey(t *testing.T) {
	a := New("test", "wss://example.invalid", DecodeJSONTicks)
	out, err := a.GetCandles(context.Background(), "ETH-USD", "1h", 5, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecodeJSONTicks_ParsesValidFrame(t *testing.T) {
	raw := []byte(`{"product_id":"BTC-USD","price":"100.5","size":"0.25","time":"2026-01-01T00:00:00Z"}`)
	ticks, err := DecodeJSONTicks(raw)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "BTC-USD", ticks[0].Symbol)
	assert.True(t, ticks[0].Price.Equal(decimal.NewFromFloat(100.5)))
}

func TestDecodeJSONTicks_RejectsInvalidPrice(t *testing.T) {
	raw := []byte(`{"product_id":"BTC-USD","price":"not-a-number","size":"1","time":"2026-01-01T00:00:00Z"}`)
	_, err := DecodeJSONTicks(raw)
	assert.Error(t, err)
}

func TestAdapter_NameAndFormatting(t *testing.T) {
	a := New("coinbase-ws", "wss://example.invalid", DecodeJSONTicks)
	assert.Equal(t, "coinbase-ws", a.Name())
	assert.Equal(t, "100.00", a.FormatPrice("BTC-USD", decimal.NewFromInt(100)))
	assert.Equal(t, "1.00000000", a.FormatQuantity("BTC-USD", decimal.NewFromInt(1)))
}
