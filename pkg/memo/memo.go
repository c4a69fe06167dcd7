// Package memo caches the result of a one-shot load until it succeeds.
//
// Fixture loads are shared by every live session. Instead of a mutex the
// cache hands a single token around on a buffered channel: whoever holds the
// token may load or read, everybody else waits (or gives up when their
// context ends).
package memo

import "context"

// Value lazily loads a T once and keeps it after the first success.
// Failures are not remembered, so the next Get tries again.
type Value[T any] struct {
	token  chan struct{}
	load   func(context.Context) (T, error)
	loaded bool
	value  T
}

// New returns a Value backed by load.
func New[T any](load func(context.Context) (T, error)) *Value[T] {
	v := &Value[T]{
		token: make(chan struct{}, 1),
		load:  load,
	}
	v.token <- struct{}{}
	return v
}

// Get returns the cached value or runs the loader. The boolean reports
// whether the returned value came from the cache.
func (v *Value[T]) Get(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-v.token:
	}
	defer func() { v.token <- struct{}{} }()

	if v.loaded {
		return v.value, true, nil
	}
	val, err := v.load(ctx)
	if err != nil {
		return zero, false, err
	}
	v.value = val
	v.loaded = true
	return val, false, nil
}

// Reset drops the cached value so the next Get reloads.
func (v *Value[T]) Reset() {
	<-v.token
	var zero T
	v.value = zero
	v.loaded = false
	v.token <- struct{}{}
}
