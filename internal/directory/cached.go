package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "chatsync:user:"

	// flightTimeout bounds a shared backend lookup once it no longer follows
	// any single caller's context.
	flightTimeout = 10 * time.Second
)

// Cached is a read-through Redis cache in front of another registry.
// Concurrent misses for the same uid share one backend lookup. A nil Redis
// client turns the cache off. Redis failures are logged and fall through to
// the backend.
type Cached struct {
	next   Registry
	rdb    *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger

	// gen counts Puts per uid. A flight only fills the cache if no Put
	// happened while it was loading.
	mu  sync.Mutex
	gen map[string]uint64
}

var _ Registry = (*Cached)(nil)

// NewCached wraps next with a cache entry lifetime of ttl.
func NewCached(next Registry, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, logger: logger, gen: make(map[string]uint64)}
}

// Lookup returns the cached user or loads it from the backend. A caller
// whose context ends stops waiting without failing the others sharing the
// load.
func (c *Cached) Lookup(ctx context.Context, uid string) (chat.User, error) {
	if u, ok := c.get(ctx, uid); ok {
		return u, nil
	}

	ch := c.group.DoChan(uid, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		gen := c.generation(uid)
		u, err := c.next.Lookup(fctx, uid)
		if err != nil {
			return chat.User{}, err
		}
		c.mu.Lock()
		if c.gen[uid] == gen {
			c.set(fctx, u)
		}
		c.mu.Unlock()
		return u, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return chat.User{}, res.Err
		}
		return res.Val.(chat.User), nil
	case <-ctx.Done():
		return chat.User{}, ctx.Err()
	}
}

// Put writes through to the backend and evicts the cached entry. A lookup
// still loading the old record does not write it back.
func (c *Cached) Put(ctx context.Context, u chat.User) error {
	if err := c.next.Put(ctx, u); err != nil {
		return err
	}
	c.mu.Lock()
	c.gen[u.UID]++
	c.mu.Unlock()
	c.group.Forget(u.UID)

	if c.rdb != nil {
		if err := c.rdb.Del(ctx, keyPrefix+u.UID).Err(); err != nil {
			c.logger.Warn("directory cache evict failed", zap.String("uid", u.UID), zap.Error(err))
		}
	}
	return nil
}

func (c *Cached) generation(uid string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[uid]
}

func (c *Cached) get(ctx context.Context, uid string) (chat.User, bool) {
	if c.rdb == nil {
		return chat.User{}, false
	}
	raw, err := c.rdb.Get(ctx, keyPrefix+uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return chat.User{}, false
	}
	if err != nil {
		c.logger.Warn("directory cache read failed", zap.String("uid", uid), zap.Error(err))
		return chat.User{}, false
	}
	var u chat.User
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.Warn("directory cache entry corrupt", zap.String("uid", uid), zap.Error(err))
		return chat.User{}, false
	}
	return u, true
}

func (c *Cached) set(ctx context.Context, u chat.User) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+u.UID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", zap.String("uid", u.UID), zap.Error(err))
	}
}

// Ping checks the cache connection. It is a no-op without Redis.
func (c *Cached) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
