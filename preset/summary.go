package preset

import (
	"context"
	"fmt"
	"log/slog"
)

// PresetInfo is one preset's name and overlay count.
type PresetInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary describes one stored key for the saved-pages list.
type Summary struct {
	Key          string       `json:"key"`
	ActivePreset string       `json:"activePreset"`
	ActiveCount  int          `json:"activeCount"`
	Presets      []PresetInfo `json:"presets"`
	Legacy       bool         `json:"legacy,omitempty"`
}

// ListSummaries reports every stored key accepted by include that has at
// least one overlay in any preset. It only reads; nothing is migrated.
func (m *Manager) ListSummaries(ctx context.Context, include func(key string) bool) ([]Summary, error) {
	keys, err := m.kv.Keys(ctx)
	if err != nil {
		m.metrics.StorageError("keys")
		return nil, fmt.Errorf("%w: keys: %w", ErrStorageUnavailable, err)
	}
	out := []Summary{}
	for _, key := range keys {
		if include != nil && !include(key) {
			continue
		}
		raw, ok, err := m.kv.Get(ctx, key)
		if err != nil {
			m.metrics.StorageError("get")
			return nil, fmt.Errorf("%w: get %q: %w", ErrStorageUnavailable, key, err)
		}
		st, err := Decode(raw, ok)
		if err != nil {
			return nil, err
		}
		s, populated := summarize(key, st)
		if !populated {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func summarize(key string, st Stored) (Summary, bool) {
	switch st.Shape {
	case LegacyList:
		n := len(st.Legacy)
		return Summary{
			Key:          key,
			ActivePreset: DefaultPresetName,
			ActiveCount:  n,
			Presets:      []PresetInfo{{Name: DefaultPresetName, Count: n}},
			Legacy:       true,
		}, n > 0
	case Current:
		rec := st.Record
		rec.normalize()
		s := Summary{Key: key, ActivePreset: rec.ActivePreset}
		populated := false
		for _, name := range rec.Presets.Names() {
			rects, _ := rec.Presets.Get(name)
			s.Presets = append(s.Presets, PresetInfo{Name: name, Count: len(rects)})
			if len(rects) > 0 {
				populated = true
			}
		}
		s.ActiveCount = len(rec.Active())
		return s, populated
	}
	return Summary{}, false
}

// PresetNames returns the preset names and active preset for key, applying
// the same migration as LoadRecord.
func (m *Manager) PresetNames(ctx context.Context, key string) (names []string, active string, err error) {
	rec, err := m.LoadRecord(ctx, key)
	if err != nil {
		return nil, "", err
	}
	m.log.Debug("preset names", slog.String("key", key), slog.Int("count", rec.Presets.Len()))
	return rec.Presets.Names(), rec.ActivePreset, nil
}
