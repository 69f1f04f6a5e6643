package kv

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// File keeps every key in one JSON object on disk, rewritten atomically on
// each change.
type File struct {
	mu       sync.RWMutex
	filePath string
	entries  map[string]json.RawMessage
}

// NewFile loads filePath, or starts empty if the file does not exist.
// Returns an error only on unexpected I/O or decode failures.
func NewFile(filePath string) (*File, error) {
	f := &File{filePath: filePath, entries: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.entries); err != nil {
		return nil, err
	}
	if f.entries == nil {
		f.entries = make(map[string]json.RawMessage)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// Set stores value under key. value must be valid JSON.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return errors.New("kv: value is not valid JSON")
	}
	cp := make(json.RawMessage, len(value))
	copy(cp, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.cloneLocked()
	next[key] = cp
	if err := f.writeAtomic(next); err != nil {
		return err
	}
	f.entries = next
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[key]; !ok {
		return nil
	}
	next := f.cloneLocked()
	delete(next, key)
	if err := f.writeAtomic(next); err != nil {
		return err
	}
	f.entries = next
	return nil
}

func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Close() error { return nil }

func (f *File) cloneLocked() map[string]json.RawMessage {
	next := make(map[string]json.RawMessage, len(f.entries)+1)
	for k, v := range f.entries {
		next[k] = v
	}
	return next
}

// writeAtomic writes to a temp file then renames it over filePath.
// Caller must hold f.mu.
func (f *File) writeAtomic(entries map[string]json.RawMessage) error {
	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := f.filePath + ".tmp"
	// Marshal, not MarshalIndent: indenting would rewrite the raw values.
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.filePath)
}
