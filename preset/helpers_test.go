package preset_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mosaic-keeper/kv"
	"mosaic-keeper/logging"
	"mosaic-keeper/preset"
)

var errDiskGone = errors.New("disk gone")

// countingStore wraps a real store, counting writes and optionally failing.
type countingStore struct {
	kv.Store
	mu       sync.Mutex
	sets     int
	failGet  bool
	failSet  bool
	failKeys bool
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	fail := c.failGet
	c.mu.Unlock()
	if fail {
		return nil, false, errDiskGone
	}
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	fail := c.failSet
	if !fail {
		c.sets++
	}
	c.mu.Unlock()
	if fail {
		return errDiskGone
	}
	return c.Store.Set(ctx, key, value)
}

func (c *countingStore) Keys(ctx context.Context) ([]string, error) {
	if c.failKeys {
		return nil, errDiskGone
	}
	return c.Store.Keys(ctx)
}

func (c *countingStore) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *countingStore) raw(t *testing.T, key string) string {
	t.Helper()
	v, ok, err := c.Store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if !ok {
		return ""
	}
	return string(v)
}

func newTestManager(t *testing.T) (*preset.Manager, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: kv.NewMemory()}
	return preset.NewManager(cs, preset.WithLogger(logging.Discard())), cs
}

func seed(t *testing.T, cs *countingStore, key, value string) {
	t.Helper()
	if err := cs.Store.Set(context.Background(), key, []byte(value)); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
