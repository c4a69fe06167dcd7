package api

import (
	"context"
	"errors"
	"time"
)

var (
	errCacheStopped = errors.New("cache stopped")
	errNoLoader     = errors.New("no loader")
)

// defaultMaxEntries caps the keys a cache holds. Keys come from client
// input (search terms, Host headers), so the map must not grow with them.
const defaultMaxEntries = 512

// Loader renders a response on a cache miss. keep reports whether the bytes
// may be stored; a degraded render is returned to the caller but not kept.
type Loader func(context.Context) (data []byte, keep bool, err error)

// cacheRequest is the one message the cache goroutine accepts. A nil reply
// with a non-nil size asks for the entry count.
type cacheRequest struct {
	ctx    context.Context
	key    string
	loader Loader
	reply  chan cacheResponse
	size   chan int
}

type cacheResponse struct {
	data []byte
	err  error
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// ResponseCache keeps rendered GeoJSON and QR images for ttl. A single
// goroutine owns the map; handlers talk to it over a channel. Expired entries
// are swept every ttl and whenever the cache is full; a full cache without
// expired entries drops the one closest to expiry.
//
// A nil *ResponseCache is valid and calls the loader every time.
type ResponseCache struct {
	ttl        time.Duration
	maxEntries int
	requests   chan cacheRequest
	quit       chan struct{}
	now        func() time.Time
}

// NewResponseCache starts the cache. A non-positive ttl disables caching and
// returns nil.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return newResponseCache(ttl, defaultMaxEntries, time.Now)
}

func newResponseCache(ttl time.Duration, maxEntries int, now func() time.Time) *ResponseCache {
	if ttl <= 0 {
		return nil
	}
	c := &ResponseCache{
		ttl:        ttl,
		maxEntries: max(1, maxEntries),
		requests:   make(chan cacheRequest),
		quit:       make(chan struct{}),
		now:        now,
	}
	go c.loop()
	return c
}

// Close stops the cache goroutine. Calling it twice is harmless.
func (c *ResponseCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// Get returns the bytes stored under key, calling loader on a miss. Failed
// loads are not stored. The returned slice is the caller's to keep.
func (c *ResponseCache) Get(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if c == nil {
		if loader == nil {
			return nil, errNoLoader
		}
		data, _, err := loader(ctx)
		return data, err
	}
	req := cacheRequest{ctx: ctx, key: key, loader: loader, reply: make(chan cacheResponse, 1)}
	if err := c.send(ctx, req); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case resp := <-req.reply:
		if resp.err != nil || resp.data == nil {
			return nil, resp.err
		}
		return append([]byte(nil), resp.data...), nil
	}
}

// Len reports how many entries are stored, expired ones included.
func (c *ResponseCache) Len(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	req := cacheRequest{size: make(chan int, 1)}
	if err := c.send(ctx, req); err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.quit:
		return 0, errCacheStopped
	case n := <-req.size:
		return n, nil
	}
}

func (c *ResponseCache) send(ctx context.Context, req cacheRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return errCacheStopped
	case c.requests <- req:
		return nil
	}
}

func (c *ResponseCache) loop() {
	store := make(map[string]cacheEntry)
	sweep := time.NewTicker(c.ttl)
	defer sweep.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-sweep.C:
			dropExpired(store, c.now())
		case req := <-c.requests:
			if req.size != nil {
				req.size <- len(store)
				continue
			}
			now := c.now()
			if e, ok := store[req.key]; ok && now.Before(e.expires) {
				req.reply <- cacheResponse{data: e.data}
				continue
			}
			delete(store, req.key)
			if req.loader == nil {
				req.reply <- cacheResponse{err: errNoLoader}
				continue
			}
			// Loaders only render in-memory data, so running them here
			// keeps concurrent misses for one key from rendering twice.
			data, keep, err := req.loader(req.ctx)
			if err == nil && keep && data != nil {
				if len(store) >= c.maxEntries {
					c.makeRoom(store, now)
				}
				store[req.key] = cacheEntry{data: append([]byte(nil), data...), expires: now.Add(c.ttl)}
			}
			req.reply <- cacheResponse{data: data, err: err}
		}
	}
}

// makeRoom frees at least one slot: expired entries first, otherwise the
// entry that would expire soonest.
func (c *ResponseCache) makeRoom(store map[string]cacheEntry, now time.Time) {
	if dropExpired(store, now) > 0 && len(store) < c.maxEntries {
		return
	}
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, e := range store {
		if !found || e.expires.Before(at) {
			oldest, at, found = k, e.expires, true
		}
	}
	if found {
		delete(store, oldest)
	}
}

func dropExpired(store map[string]cacheEntry, now time.Time) int {
	n := 0
	for k, e := range store {
		if !now.Before(e.expires) {
			delete(store, k)
			n++
		}
	}
	return n
}
