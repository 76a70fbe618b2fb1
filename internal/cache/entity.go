package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
)

// DefaultTTL is how long a fetched chat list is served without refetching.
const DefaultTTL = 5 * time.Minute

// Fetcher loads the full chat list from the backend.
type Fetcher interface {
	ListChats(ctx context.Context, refresh bool) ([]backend.Chat, error)
}

// Store is a read-through chat list cache.
type Store interface {
	// Get returns the cached list, fetching when the entry is missing,
	// expired, invalidated, or force is set. On fetch failure the previous
	// list (possibly nil) is returned together with the error.
	Get(ctx context.Context, force bool) ([]backend.Chat, error)
	// Invalidate forces the next Get to fetch. The current list stays
	// readable until it is replaced.
	Invalidate()
}

// Snapshot is one fetched chat list. Chats is never mutated after the
// snapshot is published.
type Snapshot struct {
	Chats     []backend.Chat
	FetchedAt time.Time
}

// EntityCache is the process-wide chat list cache. Concurrent misses share a
// single backend call.
type EntityCache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	bus     *bus.Bus
	log     *zap.Logger

	group singleflight.Group

	mu          sync.RWMutex
	snap        *Snapshot
	invalidated bool
	// gen is bumped by Invalidate; a fetch started under an older gen never
	// publishes. seq orders fetches so a slow one cannot replace a newer list.
	gen     uint64
	seq     uint64
	snapSeq uint64
}

var _ Store = (*EntityCache)(nil)

// New creates an empty cache. ttl <= 0 selects DefaultTTL. b and logger may be nil.
func New(f Fetcher, ttl time.Duration, b *bus.Bus, logger *zap.Logger) *EntityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityCache{
		fetcher: f,
		ttl:     ttl,
		now:     time.Now,
		bus:     b,
		log:     logger.Named("cache"),
	}
}

// Get implements Store.
func (c *EntityCache) Get(ctx context.Context, force bool) ([]backend.Chat, error) {
	if !force {
		if snap, ok := c.fresh(); ok {
			return snap.Chats, nil
		}
	}

	// The fetch outlives any single caller: a waiter that gives up must not
	// cancel the request the other waiters are sharing.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.flightKey(force), func() (any, error) {
		return c.refresh(fetchCtx, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.current(), res.Err
		}
		return res.Val.([]backend.Chat), nil
	case <-ctx.Done():
		return c.current(), ctx.Err()
	}
}

// flightKey scopes sharing to one generation, and keeps forced reads from
// joining a plain fetch that would not pass refresh to the backend.
func (c *EntityCache) flightKey(force bool) string {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()
	if force {
		return fmt.Sprintf("chats/%d/refresh", gen)
	}
	return fmt.Sprintf("chats/%d", gen)
}

func (c *EntityCache) refresh(ctx context.Context, force bool) ([]backend.Chat, error) {
	c.mu.Lock()
	gen := c.gen
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	chats, err := c.fetcher.ListChats(ctx, force)
	if err != nil {
		c.log.Warn("chat list refresh failed, keeping previous snapshot", zap.Error(err))
		return nil, err
	}

	snap := &Snapshot{Chats: chats, FetchedAt: c.now()}
	c.mu.Lock()
	if gen != c.gen || seq < c.snapSeq {
		c.mu.Unlock()
		c.log.Debug("discarding chat list fetched before invalidation",
			zap.Uint64("generation", gen), zap.Int("count", len(chats)))
		return chats, nil
	}
	c.snap = snap
	c.snapSeq = seq
	c.invalidated = false
	c.mu.Unlock()

	c.log.Debug("chat list refreshed", zap.Int("count", len(chats)))
	if c.bus != nil {
		c.bus.Publish(bus.CacheRefreshed, *snap)
	}
	return chats, nil
}

// Invalidate implements Store. A fetch already in flight still answers its
// own waiters but is not cached, and later reads start a new fetch.
func (c *EntityCache) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.gen++
	c.mu.Unlock()
	if c.bus != nil {
		c.bus.Publish(bus.CacheInvalidated, nil)
	}
}

// Snapshot returns the last fetched list without touching the network.
func (c *EntityCache) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}

func (c *EntityCache) fresh() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || c.invalidated {
		return nil, false
	}
	if c.now().Sub(c.snap.FetchedAt) >= c.ttl {
		return nil, false
	}
	return c.snap, true
}

func (c *EntityCache) current() []backend.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil
	}
	return c.snap.Chats
}
