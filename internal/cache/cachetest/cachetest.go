// Package cachetest provides cache backends that simulate an unhealthy cache.
package cachetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"muster/api/internal/cache"
)

var ErrUnavailable = errors.New("cache backend unavailable")

// FlakyBackend wraps a Backend and fails the selected commands.
type FlakyBackend struct {
	cache.Backend

	mu       sync.Mutex
	failSet  bool
	failGet  bool
	failDel  bool
	// failSetPrefix fails Set only for keys with this prefix.
	failSetPrefix string
	setCalls      int
}

func NewFlakyBackend(inner cache.Backend) *FlakyBackend {
	return &FlakyBackend{Backend: inner}
}

// Down returns a backend on which every command fails.
func Down() *FlakyBackend {
	return NewFlakyBackend(cache.NewMemoryBackend()).FailSet(true).FailGet(true).FailDel(true)
}

func (f *FlakyBackend) FailSet(v bool) *FlakyBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSet = v
	return f
}

// FailSetPrefix fails Set for keys starting with prefix. An empty prefix
// turns it off.
func (f *FlakyBackend) FailSetPrefix(prefix string) *FlakyBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSetPrefix = prefix
	return f
}

func (f *FlakyBackend) FailGet(v bool) *FlakyBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = v
	return f
}

func (f *FlakyBackend) FailDel(v bool) *FlakyBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDel = v
	return f
}

// SetCalls counts Set attempts, successful or not.
func (f *FlakyBackend) SetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

func (f *FlakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	f.setCalls++
	fail := f.failSet || (f.failSetPrefix != "" && strings.HasPrefix(key, f.failSetPrefix))
	f.mu.Unlock()
	if fail {
		return ErrUnavailable
	}
	return f.Backend.Set(ctx, key, value, ttl)
}

func (f *FlakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, ErrUnavailable
	}
	return f.Backend.Get(ctx, key)
}

func (f *FlakyBackend) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	fail := f.failDel
	f.mu.Unlock()
	if fail {
		return ErrUnavailable
	}
	return f.Backend.Del(ctx, keys...)
}
