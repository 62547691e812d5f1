package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/bebop/internal/protocol"
	"github.com/nao1215/bebop/internal/uri"
)

func mustURL(t *testing.T, raw string) *uri.URL {
	t.Helper()

	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", raw, err)
	}
	return u
}

func success(t *testing.T, u *uri.URL, body string) *protocol.Response {
	t.Helper()

	resp, err := protocol.NewResponse(u, protocol.CodeSuccess, "text/gemini", []byte(body))
	if err != nil {
		t.Fatalf("failed to build response: %v", err)
	}
	return resp
}

func setupTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()

	c, err := New(opts...)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	t.Run("stores success responses", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		u := mustURL(t, "gemini://example.org/")
		if !c.Put(u, success(t, u, "hello")) {
			t.Fatal("expected response to be stored")
		}

		resp, ok := c.Get(mustURL(t, "GEMINI://Example.org:1965/"))
		if !ok {
			t.Fatal("expected hit for equivalent URL")
		}
		if string(resp.Body) != "hello" {
			t.Errorf("unexpected body %q", resp.Body)
		}
		if c.Len() != 1 || c.Size() != 5 {
			t.Errorf("expected 1 entry of 5 bytes, got %d entries, %d bytes", c.Len(), c.Size())
		}
	})

	t.Run("fragment does not change the key", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		u := mustURL(t, "gemini://example.org/page")
		c.Put(u, success(t, u, "x"))

		if _, ok := c.Get(mustURL(t, "gemini://example.org/page#part")); !ok {
			t.Error("expected hit regardless of fragment")
		}
		if _, ok := c.Get(mustURL(t, "gemini://example.org/page?q")); ok {
			t.Error("query must be part of the key")
		}
	})

	t.Run("ignores non-success responses", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		u := mustURL(t, "gemini://example.org/")
		for _, code := range []int{10, 31, 44, 51, 60} {
			resp, err := protocol.NewResponse(u, code, "meta", nil)
			if err != nil {
				t.Fatalf("failed to build response: %v", err)
			}
			if c.Put(u, resp) {
				t.Errorf("code %d must not be cached", code)
			}
		}
		if c.Put(u, nil) {
			t.Error("nil response must not be cached")
		}
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", c.Len())
		}
	})

	t.Run("entry carries digest and insertion time", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := setupTestCache(t, WithClock(func() time.Time { return now }))
		u := mustURL(t, "gemini://example.org/")
		c.Put(u, success(t, u, ""))

		e, ok := c.Lookup(u)
		if !ok {
			t.Fatal("expected hit")
		}
		// SHA3-256 of the empty string.
		if e.Digest != "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a" {
			t.Errorf("unexpected digest %s", e.Digest)
		}
		if !e.InsertedAt.Equal(now) {
			t.Errorf("unexpected insertion time %v", e.InsertedAt)
		}
	})
}

func TestCache_Eviction(t *testing.T) {
	t.Parallel()

	t.Run("least recently used entry goes first", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, WithMaxEntries(2))
		a := mustURL(t, "gemini://example.org/a")
		b := mustURL(t, "gemini://example.org/b")
		d := mustURL(t, "gemini://example.org/d")

		c.Put(a, success(t, a, "a"))
		c.Put(b, success(t, b, "b"))
		if _, ok := c.Get(a); !ok {
			t.Fatal("expected hit for a")
		}
		c.Put(d, success(t, d, "d"))

		if _, ok := c.Get(b); ok {
			t.Error("b should have been evicted")
		}
		if _, ok := c.Get(a); !ok {
			t.Error("a should still be cached")
		}
		if _, ok := c.Get(d); !ok {
			t.Error("d should be cached")
		}
		if c.Size() != 2 {
			t.Errorf("expected 2 bytes, got %d", c.Size())
		}
		if c.Stats().Evictions != 1 {
			t.Errorf("expected 1 eviction, got %d", c.Stats().Evictions)
		}
	})

	t.Run("byte limit evicts oldest entries", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, WithMaxEntries(10), WithMaxBytes(10))
		for i := range 3 {
			u := mustURL(t, fmt.Sprintf("gemini://example.org/%d", i))
			c.Put(u, success(t, u, strings.Repeat("x", 4)))
		}

		if c.Len() != 2 || c.Size() != 8 {
			t.Errorf("expected 2 entries of 8 bytes, got %d entries, %d bytes", c.Len(), c.Size())
		}
		if _, ok := c.Get(mustURL(t, "gemini://example.org/0")); ok {
			t.Error("oldest entry should have been evicted")
		}
	})

	t.Run("body larger than the limit is not stored", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t, WithMaxBytes(3))
		u := mustURL(t, "gemini://example.org/")
		if c.Put(u, success(t, u, "toolarge")) {
			t.Error("expected oversized body to be refused")
		}
	})

	t.Run("replacing an entry keeps the byte count", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		u := mustURL(t, "gemini://example.org/")
		c.Put(u, success(t, u, "12345"))
		c.Put(u, success(t, u, "12"))

		if c.Len() != 1 || c.Size() != 2 {
			t.Errorf("expected 1 entry of 2 bytes, got %d entries, %d bytes", c.Len(), c.Size())
		}
	})
}

func TestCache_InvalidateAndExpire(t *testing.T) {
	t.Parallel()

	t.Run("invalidate then get is a miss", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		u := mustURL(t, "gemini://example.org/")
		c.Put(u, success(t, u, "body"))
		c.Invalidate(u)

		if _, ok := c.Get(u); ok {
			t.Error("expected miss after invalidate")
		}
		if c.Size() != 0 {
			t.Errorf("expected 0 bytes, got %d", c.Size())
		}
		c.Invalidate(u)
	})

	t.Run("expired entries are misses and removed", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		var mu sync.Mutex
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		c := setupTestCache(t, WithTTL(time.Hour), WithClock(clock))
		u := mustURL(t, "gemini://example.org/")
		c.Put(u, success(t, u, "body"))

		mu.Lock()
		now = now.Add(59 * time.Minute)
		mu.Unlock()
		if _, ok := c.Get(u); !ok {
			t.Fatal("expected hit before TTL")
		}

		mu.Lock()
		now = now.Add(time.Minute)
		mu.Unlock()
		if _, ok := c.Get(u); ok {
			t.Error("expected miss after TTL")
		}
		if c.Len() != 0 {
			t.Errorf("expected expired entry to be removed, got %d entries", c.Len())
		}
	})

	t.Run("purge", func(t *testing.T) {
		t.Parallel()

		c := setupTestCache(t)
		for i := range 5 {
			u := mustURL(t, fmt.Sprintf("gemini://example.org/%d", i))
			c.Put(u, success(t, u, "body"))
		}
		c.Purge()

		if c.Len() != 0 || c.Size() != 0 {
			t.Errorf("expected empty cache, got %d entries, %d bytes", c.Len(), c.Size())
		}
	})
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := setupTestCache(t, WithMaxEntries(8))
	urls := make([]*uri.URL, 10)
	responses := make([]*protocol.Response, 10)
	for i := range urls {
		urls[i] = mustURL(t, fmt.Sprintf("gemini://example.org/%d", i))
		responses[i] = success(t, urls[i], "body")
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put(urls[i%10], responses[i%10])
			c.Get(urls[i%10])
		}(i)
	}
	wg.Wait()

	if c.Len() > 8 {
		t.Errorf("expected at most 8 entries, got %d", c.Len())
	}
	if c.Size() != int64(c.Len()*4) {
		t.Errorf("byte count %d does not match %d entries", c.Size(), c.Len())
	}
}

func TestNew_InvalidLimits(t *testing.T) {
	t.Parallel()

	if _, err := New(WithMaxEntries(0)); err == nil {
		t.Error("expected error for zero entries")
	}
	if _, err := New(WithMaxBytes(-1)); err == nil {
		t.Error("expected error for negative byte limit")
	}
}
