package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mosaic-keeper/geometry"
	"mosaic-keeper/kv"
	"mosaic-keeper/metrics"
)

// Manager owns the record format under every storage key. It holds no
// record between calls: each operation re-reads, mutates and re-writes.
type Manager struct {
	kv      kv.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	locks   keyLocks
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store kv.Store, opts ...Option) *Manager {
	m := &Manager{kv: store, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(slog.String("component", "preset"))
	return m
}

// LoadRecord returns the validated record for key, migrating or repairing
// the stored value first when needed. A second call on a valid record
// performs no writes. Corrective writes are best-effort: on failure the
// returned record still satisfies the invariants.
func (m *Manager) LoadRecord(ctx context.Context, key string) (Record, error) {
	unlock := m.locks.lock(key)
	defer unlock()

	rec, dirty, err := m.read(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if dirty {
		if err := m.write(ctx, key, rec); err != nil {
			m.log.Warn("corrective write failed", slog.String("key", key), slog.Any("err", err))
		}
	}
	return rec, nil
}

// SaveActivePreset overwrites the active preset's rectangles. There is no
// merge: the last save to complete wins.
func (m *Manager) SaveActivePreset(ctx context.Context, key string, rects []geometry.Rectangle) (Record, error) {
	return m.mutate(ctx, key, func(rec *Record) error {
		rec.Presets.Set(rec.ActivePreset, rects)
		return nil
	})
}

// SwitchActivePreset makes name the active preset. An unknown name fails with
// ErrPresetNotFound and nothing is written.
func (m *Manager) SwitchActivePreset(ctx context.Context, key, name string) (Record, error) {
	return m.mutate(ctx, key, func(rec *Record) error {
		if !rec.Presets.Has(name) {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		rec.ActivePreset = name
		return nil
	})
}

// CreateOrOverwritePreset stores rects under name and activates it. existed
// reports whether an existing preset was overwritten; asking the user is the
// caller's job.
func (m *Manager) CreateOrOverwritePreset(ctx context.Context, key, name string, rects []geometry.Rectangle) (rec Record, existed bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, false, ErrInvalidPresetName
	}
	rec, err = m.mutate(ctx, key, func(r *Record) error {
		existed = r.Presets.Has(name)
		r.Presets.Set(name, rects)
		r.ActivePreset = name
		return nil
	})
	return rec, existed, err
}

// DeletePreset removes name. If it was active the first remaining preset
// becomes active; if none remain a fresh empty Default is created.
func (m *Manager) DeletePreset(ctx context.Context, key, name string) (newActive string, rec Record, err error) {
	rec, err = m.mutate(ctx, key, func(r *Record) error {
		if !r.Presets.Delete(name) {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		r.normalize()
		return nil
	})
	if err != nil {
		return "", Record{}, err
	}
	return rec.ActivePreset, rec, nil
}

// DeleteRecord removes everything stored under key.
func (m *Manager) DeleteRecord(ctx context.Context, key string) error {
	unlock := m.locks.lock(key)
	defer unlock()
	if err := m.kv.Remove(ctx, key); err != nil {
		m.metrics.StorageError("remove")
		return fmt.Errorf("%w: remove %q: %w", ErrStorageUnavailable, key, err)
	}
	m.log.Info("record deleted", slog.String("key", key))
	return nil
}

// mutate runs the read-modify-write for key under its lock. If fn fails the
// stored value is left exactly as it was, pending corrections included.
func (m *Manager) mutate(ctx context.Context, key string, fn func(*Record) error) (Record, error) {
	unlock := m.locks.lock(key)
	defer unlock()

	rec, _, err := m.read(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	if err := m.write(ctx, key, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// read loads and classifies the stored value. dirty reports whether the
// returned record differs from what is stored and should be persisted.
func (m *Manager) read(ctx context.Context, key string) (rec Record, dirty bool, err error) {
	raw, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		m.metrics.StorageError("get")
		return Record{}, false, fmt.Errorf("%w: get %q: %w", ErrStorageUnavailable, key, err)
	}
	st, err := Decode(raw, ok)
	if err != nil {
		return Record{}, false, err
	}

	switch st.Shape {
	case Absent:
		m.metrics.Migration("absent")
		return NewRecord(), true, nil
	case Unrecognized:
		m.log.Warn("unrecognized record replaced with default",
			slog.String("key", key), slog.Any("problems", st.Problems))
		m.metrics.Migration("unrecognized")
		return NewRecord(), true, nil
	case LegacyList:
		m.log.Info("migrating legacy record", slog.String("key", key),
			slog.Int("rects", len(st.Legacy)), slog.Any("problems", st.Problems))
		m.metrics.Migration("legacy")
		var r Record
		r.ActivePreset = DefaultPresetName
		r.Presets.Set(DefaultPresetName, st.Legacy)
		return r, true, nil
	case Current:
		r := st.Record
		stale := r.ActivePreset
		if r.normalize() || len(st.Problems) > 0 {
			m.log.Warn("repaired record", slog.String("key", key),
				slog.String("stale_active", stale), slog.String("active", r.ActivePreset),
				slog.Any("problems", st.Problems))
			m.metrics.Migration("repair")
			return r, true, nil
		}
		return r, false, nil
	}
	return Record{}, false, fmt.Errorf("unhandled record shape %v", st.Shape)
}

func (m *Manager) write(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := m.kv.Set(ctx, key, data); err != nil {
		m.metrics.StorageError("set")
		return fmt.Errorf("%w: set %q: %w", ErrStorageUnavailable, key, err)
	}
	m.metrics.Write()
	return nil
}

// keyLocks hands out one mutex per key, dropped again once unused.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*keyLock)
	}
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
