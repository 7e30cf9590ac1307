// Package candlecache caches OHLCV candles keyed by (symbol, interval,
// bucket-start), with LRU eviction above a soft cap. Each interval is
// cached separately: coarser candles are not synthesized from cached
// finer ones.
package candlecache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/exchange"
)

type key struct {
	symbol      string
	interval    string
	bucketStart time.Time
}

func (k key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.symbol, k.interval, k.bucketStart.Unix())
}

type entry struct {
	key        key
	candle     candle.Candle
	lastAccess time.Time
	elem       *list.Element
}

// Cache is a bounded, LRU-evicted store of candles. Safe for concurrent
// use.
type Cache struct {
	mu      sync.Mutex
	adapter exchange.Adapter
	softCap int

	entries map[string]*entry
	order   *list.List // front = most recently used
}

// New creates a Cache backed by adapter, holding up to softCap entries
// before the least-recently-used ones are evicted.
func New(adapter exchange.Adapter, softCap int) *Cache {
	if softCap <= 0 {
		softCap = 4096
	}
	return &Cache{
		adapter: adapter,
		softCap: softCap,
		entries: make(map[string]*entry),
		order:   list.New(),
	}
}

// Get returns up to limit candles for (symbol, interval) ending at
// endingAt, filling cache misses from the adapter and caching the
// result. It answers from the cache only when all limit buckets are
// cached at this interval; on any miss it fetches the whole window from
// the adapter again. It does not synthesize a coarser interval from
// cached finer candles.
func (c *Cache) Get(ctx context.Context, symbol, interval string, limit int, endingAt time.Time) ([]candle.Candle, error) {
	d, err := candle.ParseInterval(interval)
	if err != nil {
		return nil, err
	}

	end, err := candle.BucketStart(endingAt, interval)
	if err != nil {
		return nil, err
	}
	if endingAt.IsZero() {
		end, err = candle.BucketStart(time.Now(), interval)
		if err != nil {
			return nil, err
		}
	}

	out := make([]candle.Candle, 0, limit)
	bucket := end.Add(-time.Duration(limit-1) * d)
	for i := 0; i < limit; i++ {
		k := key{symbol: symbol, interval: interval, bucketStart: bucket}
		if cd, ok := c.lookup(k); ok {
			out = append(out, cd)
			bucket = bucket.Add(d)
			continue
		}
		break
	}

	if len(out) == limit {
		return out, nil
	}

	// Partial or total miss: fetch the whole window from the adapter in
	// one call and backfill the cache.
	fetched, err := c.adapter.GetCandles(ctx, symbol, interval, limit, endingAt)
	if err != nil {
		return nil, err
	}
	for _, cd := range fetched {
		bs, err := candle.BucketStart(cd.OpenTime, interval)
		if err != nil {
			continue
		}
		c.store(key{symbol: symbol, interval: interval, bucketStart: bs}, cd)
	}
	return fetched, nil
}

// PrefetchFrame pages the entire [start, end) window for a backtest run
// into the cache, interval-aligned, so replay never blocks on the
// adapter mid-run.
func (c *Cache) PrefetchFrame(ctx context.Context, symbol, interval string, start, end time.Time, pageSize int) error {
	d, err := candle.ParseInterval(interval)
	if err != nil {
		return err
	}
	cursor := start
	for cursor.Before(end) {
		pageEnd := cursor.Add(time.Duration(pageSize) * d)
		if pageEnd.After(end) {
			pageEnd = end
		}
		// The adapter's endingAt is inclusive, so ask for the page's last
		// bucket rather than the exclusive pageEnd.
		candles, err := c.adapter.GetCandles(ctx, symbol, interval, pageSize, pageEnd.Add(-d))
		if err != nil {
			return err
		}
		for _, cd := range candles {
			bs, err := candle.BucketStart(cd.OpenTime, interval)
			if err != nil {
				continue
			}
			c.store(key{symbol: symbol, interval: interval, bucketStart: bs}, cd)
		}
		cursor = pageEnd
	}
	return nil
}

// Window returns every candle in [start, end) for (symbol, interval),
// ascending by OpenTime. It prefetches the range first via
// PrefetchFrame, then reads it back bucket-by-bucket from the cache, so
// a backtest driver never touches the adapter directly.
func (c *Cache) Window(ctx context.Context, symbol, interval string, start, end time.Time, pageSize int) ([]candle.Candle, error) {
	if err := c.PrefetchFrame(ctx, symbol, interval, start, end, pageSize); err != nil {
		return nil, err
	}

	d, err := candle.ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	bucket, err := candle.BucketStart(start, interval)
	if err != nil {
		return nil, err
	}

	var out []candle.Candle
	for bucket.Before(end) {
		if cd, ok := c.lookup(key{symbol: symbol, interval: interval, bucketStart: bucket}); ok {
			out = append(out, cd)
		}
		bucket = bucket.Add(d)
	}
	return out, nil
}

func (c *Cache) lookup(k key) (candle.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k.String()]
	if !ok {
		return candle.Candle{}, false
	}
	e.lastAccess = time.Now()
	c.order.MoveToFront(e.elem)
	return e.candle, true
}

func (c *Cache) store(k key, cd candle.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ks := k.String()
	if e, ok := c.entries[ks]; ok {
		e.candle = cd
		e.lastAccess = time.Now()
		c.order.MoveToFront(e.elem)
		return
	}

	e := &entry{key: k, candle: cd, lastAccess: time.Now()}
	e.elem = c.order.PushFront(e)
	c.entries[ks] = e

	for len(c.entries) > c.softCap {
		back := c.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*entry)
		c.order.Remove(back)
		delete(c.entries, victim.key.String())
	}
}

// Len reports how many candles are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
