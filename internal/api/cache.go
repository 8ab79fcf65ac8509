package api

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/feed"
)

const streamsKey = "streams"

// CachedStore serves ListStreams from memory until the TTL passes or a
// stream is upserted through it. Other calls pass through.
type CachedStore struct {
	datastore.Interface
	cache *cache.Cache

	mu         sync.Mutex
	generation uint64 // bumped on every upsert; a load that spans one is not cached
}

var _ datastore.Interface = (*CachedStore)(nil)

// NewCachedStore wraps store. A ttl <= 0 uses DefaultStreamsCacheTTL.
func NewCachedStore(store datastore.Interface, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultStreamsCacheTTL
	}
	// No janitor: a single key is checked for expiry on read.
	return &CachedStore{Interface: store, cache: cache.New(ttl, 0)}
}

// UpsertStream writes through and drops the cached list.
func (c *CachedStore) UpsertStream(ctx context.Context, def feed.Definition) error {
	err := c.Interface.UpsertStream(ctx, def)
	c.mu.Lock()
	c.generation++
	c.cache.Delete(streamsKey)
	c.mu.Unlock()
	return err
}

// ListStreams returns the cached list or loads and caches it.
func (c *CachedStore) ListStreams(ctx context.Context) ([]datastore.Stream, error) {
	if v, ok := c.cache.Get(streamsKey); ok {
		return v.([]datastore.Stream), nil
	}
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	streams, err := c.Interface.ListStreams(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.cache.SetDefault(streamsKey, streams)
	}
	c.mu.Unlock()
	return streams, nil
}
