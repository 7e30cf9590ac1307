// Package stream implements a live exchange.Adapter that maintains its
// own rolling candle buffer from a websocket trade feed, bucketing
// ticks into OHLCV bars as they arrive instead of polling a REST
// endpoint per tick.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/lattice-trading/sigexec/internal/telemetry"
	"github.com/shopspring/decimal"
)

// Tick is one trade print the feed delivers.
type Tick struct {
	Symbol string
	Price  decimal.Decimal
	Volume decimal.Decimal
	At     time.Time
}

// Decoder turns a raw websocket frame into zero or more Ticks. Concrete
// exchanges supply their own wire format; the adapter only needs Ticks.
type Decoder func(raw []byte) ([]Tick, error)

// Adapter maintains one rolling candle buffer per (symbol, interval)
// pair from a live websocket feed, exposed through the same
// exchange.Adapter contract the backtest and REST adapters satisfy.
type Adapter struct {
	url     string
	decode  Decoder
	name    string

	mu      sync.RWMutex
	buffers map[string][]candle.Candle // key: symbol|interval

	conn *websocket.Conn
	log  *logger.Logger

	reconnectBase time.Duration
	reconnectMax  time.Duration
}

// New creates an Adapter dialing url, decoding frames with decode.
func New(name, url string, decode Decoder) *Adapter {
	return &Adapter{
		name:          name,
		url:           url,
		decode:        decode,
		buffers:       make(map[string][]candle.Candle),
		log:           logger.Component("exchange").WithField("adapter", name),
		reconnectBase: 500 * time.Millisecond,
		reconnectMax:  30 * time.Second,
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FormatPrice(_ string, price decimal.Decimal) string {
	return price.StringFixed(2)
}

func (a *Adapter) FormatQuantity(_ string, qty decimal.Decimal) string {
	return qty.StringFixed(8)
}

// Run dials the feed and buckets ticks into candles until ctx is
// cancelled, reconnecting with exponential backoff on any read error.
func (a *Adapter) Run(ctx context.Context, interval string) error {
	delay := a.reconnectBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := a.runOnce(ctx, interval)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.log.Warn("stream disconnected, reconnecting", "error", err, "delay", delay)
		telemetry.RecordWebSocketReconnect(a.name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > a.reconnectMax {
			delay = a.reconnectMax
		}
	}
}

func (a *Adapter) runOnce(ctx context.Context, interval string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close()

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}
		ticks, err := a.decode(raw)
		if err != nil {
			a.log.Warn("failed to decode frame", "error", err)
			continue
		}
		for _, t := range ticks {
			a.applyTick(t, interval)
		}
	}
}

func (a *Adapter) applyTick(t Tick, interval string) {
	bucket, err := candle.BucketStart(t.At, interval)
	if err != nil {
		return
	}

	key := t.Symbol + "|" + interval
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.buffers[key]
	if n := len(buf); n > 0 && buf[n-1].OpenTime.Equal(bucket) {
		c := &buf[n-1]
		c.Close = t.Price
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		c.Volume = c.Volume.Add(t.Volume)
		return
	}

	buf = append(buf, candle.Candle{
		Symbol:   t.Symbol,
		Interval: interval,
		OpenTime: bucket,
		Open:     t.Price,
		High:     t.Price,
		Low:      t.Price,
		Close:    t.Price,
		Volume:   t.Volume,
	})

	const maxBuffered = 1000
	if len(buf) > maxBuffered {
		buf = buf[len(buf)-maxBuffered:]
	}
	a.buffers[key] = buf
}

// GetCandles returns up to limit buffered candles for symbol at
// interval, ascending by OpenTime. It never blocks on the network: the
// buffer is whatever Run has bucketed so far.
func (a *Adapter) GetCandles(_ context.Context, symbol, interval string, limit int, endingAt time.Time) ([]candle.Candle, error) {
	key := symbol + "|" + interval

	a.mu.RLock()
	defer a.mu.RUnlock()

	buf := a.buffers[key]
	if len(buf) == 0 {
		return nil, nil
	}

	end := len(buf)
	if !endingAt.IsZero() {
		for end > 0 && buf[end-1].OpenTime.After(endingAt) {
			end--
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]candle.Candle, end-start)
	copy(out, buf[start:end])
	return out, nil
}

// DecodeJSONTicks is a Decoder for feeds that emit one JSON object per
// frame with symbol/price/size/time fields.
func DecodeJSONTicks(raw []byte) ([]Tick, error) {
	var msg struct {
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
		Size      string `json:"size"`
		Time      string `json:"time"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return nil, err
	}
	size, err := decimal.NewFromString(msg.Size)
	if err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339, msg.Time)
	if err != nil {
		at = time.Now()
	}
	return []Tick{{Symbol: msg.ProductID, Price: price, Volume: size, At: at}}, nil
}
