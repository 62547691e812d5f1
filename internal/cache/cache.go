package cache

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/bebop/internal/keylock"
	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

// Default limits.
const (
	DefaultMaxEntries       = 64
	DefaultMaxBytes   int64 = 32 << 20
	DefaultTTL              = 24 * time.Hour
)

// Entry is a cached response.
type Entry struct {
	Response   *protocol.Response
	InsertedAt time.Time

	// Size is the body length in bytes.
	Size int64

	// Digest is the hex SHA3-256 of the body.
	Digest string
}

// Stats are cache counters since creation.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

// Cache is a size-bounded LRU of success responses keyed by URL.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *Entry]
	bytes int64
	stats Stats

	locks keylock.Map

	maxEntries int
	maxBytes   int64
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached responses.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithMaxBytes bounds the total size of cached bodies.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithTTL sets how long an entry stays fresh. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source. It is meant for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		maxEntries: DefaultMaxEntries,
		maxBytes:   DefaultMaxBytes,
		ttl:        DefaultTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", c.maxEntries)
	}
	if c.maxBytes <= 0 {
		return nil, fmt.Errorf("cache byte limit must be positive, got %d", c.maxBytes)
	}

	l, err := lru.NewWithEvict[string, *Entry](c.maxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = l
	return c, nil
}

// onEvict keeps the byte count in step with every removal. It runs
// inside LRU calls made with c.mu held.
func (c *Cache) onEvict(_ string, e *Entry) {
	c.bytes -= e.Size
}

// Get returns the cached response for u. A missing or expired entry is a
// miss; an expired entry is removed.
func (c *Cache) Get(u *uri.URL) (*protocol.Response, bool) {
	e, ok := c.Lookup(u)
	if !ok {
		return nil, false
	}
	return e.Response, true
}

// Lookup is Get returning the whole entry.
func (c *Cache) Lookup(u *uri.URL) (Entry, bool) {
	key := u.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		c.stats.Misses++
		return Entry{}, false
	}
	c.stats.Hits++
	return *e, true
}

func (c *Cache) expired(e *Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.InsertedAt) >= c.ttl
}

// Put stores resp under u. It reports whether the response was stored:
// only success responses whose body fits in the byte limit are.
// Concurrent puts of the same URL are serialized.
func (c *Cache) Put(u *uri.URL, resp *protocol.Response) bool {
	if resp == nil || resp.Status != protocol.StatusSuccess {
		return false
	}
	size := int64(len(resp.Body))
	if size > c.maxBytes {
		c.logger.Debug("response too large to cache", "url", u.String(), "bytes", size)
		return false
	}

	key := u.Key()
	unlock := c.locks.Lock(key)
	defer unlock()

	sum := sha3.Sum256(resp.Body)
	e := &Entry{
		Response:   resp,
		InsertedAt: c.now(),
		Size:       size,
		Digest:     hex.EncodeToString(sum[:]),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	if c.lru.Add(key, e) {
		c.stats.Evictions++
	}
	c.bytes += size

	for c.bytes > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.stats.Evictions++
	}
	return true
}

// Invalidate removes the entry for u, if any.
func (c *Cache) Invalidate(u *uri.URL) {
	key := u.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.bytes = 0
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the total size of the cached bodies in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = c.lru.Len()
	s.Bytes = c.bytes
	return s
}
