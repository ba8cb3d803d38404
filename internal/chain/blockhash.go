package chain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// cachedBlockhash holds a fetched blockhash with the metadata needed to
// tell whether it is still usable.
type cachedBlockhash struct {
	hash                 string
	lastValidBlockHeight uint64
	fetchedAt            time.Time
}

// BlockhashCache double-buffers the recent-blockhash lookup a signer
// needs on every transaction, prefetching on an interval so signing
// never blocks on an RPC round trip.
type BlockhashCache struct {
	current atomic.Pointer[cachedBlockhash]
	next    atomic.Pointer[cachedBlockhash]

	client   *Client
	ttl      time.Duration
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	hits   atomic.Int64
	misses atomic.Int64
}

// NewBlockhashCache creates a blockhash cache backed by client, prefetching
// every refreshInterval and treating a cached hash as usable for ttl.
func NewBlockhashCache(client *Client, refreshInterval, ttl time.Duration) *BlockhashCache {
	return &BlockhashCache{
		client:   client,
		interval: refreshInterval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// Start performs the initial synchronous fetch and begins the background
// prefetch loop.
func (c *BlockhashCache) Start() error {
	if err := c.fetchAndRotate(); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.prefetchLoop()

	log.Info().Dur("interval", c.interval).Dur("ttl", c.ttl).Msg("blockhash cache started")
	return nil
}

// Stop ends the background prefetch loop.
func (c *BlockhashCache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Get returns the cached blockhash. Never blocks unless both buffers have
// gone stale, which only happens if prefetching has stalled.
func (c *BlockhashCache) Get() (string, error) {
	hash, _, err := c.GetWithHeight()
	return hash, err
}

// GetWithHeight returns the cached blockhash and its last valid height.
func (c *BlockhashCache) GetWithHeight() (string, uint64, error) {
	if cached := c.current.Load(); cached != nil && time.Since(cached.fetchedAt) < c.ttl {
		c.hits.Add(1)
		return cached.hash, cached.lastValidBlockHeight, nil
	}
	if next := c.next.Load(); next != nil && time.Since(next.fetchedAt) < c.ttl {
		c.hits.Add(1)
		return next.hash, next.lastValidBlockHeight, nil
	}

	c.misses.Add(1)
	log.Warn().Msg("blockhash cache miss, forcing sync refresh")
	if err := c.fetchAndRotate(); err != nil {
		return "", 0, err
	}
	cached := c.current.Load()
	return cached.hash, cached.lastValidBlockHeight, nil
}

// Age reports how long ago the current blockhash was fetched.
func (c *BlockhashCache) Age() time.Duration {
	cached := c.current.Load()
	if cached == nil {
		return 0
	}
	return time.Since(cached.fetchedAt)
}

// HitRate returns the cache hit rate as a percentage.
func (c *BlockhashCache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 100.0
	}
	return float64(hits) / float64(total) * 100
}

func (c *BlockhashCache) prefetchLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.fetchAndRotate(); err != nil {
				log.Warn().Err(err).Msg("blockhash prefetch failed")
			}
		}
	}
}

func (c *BlockhashCache) fetchAndRotate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hash, height, err := c.client.GetLatestBlockhash(ctx)
	if err != nil {
		return err
	}

	fresh := &cachedBlockhash{hash: hash, lastValidBlockHeight: height, fetchedAt: time.Now()}

	current := c.current.Load()
	c.current.Store(c.next.Load())
	c.next.Store(fresh)
	if current == nil {
		c.current.Store(fresh)
	}

	log.Debug().Str("hash", hash).Uint64("height", height).Float64("hitRate", c.HitRate()).Msg("blockhash prefetched")
	return nil
}
