package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"mosaic-keeper/geometry"
)

// DefaultPresetName is synthesised whenever a record would otherwise have no
// presets, and is the name legacy lists are migrated under.
const DefaultPresetName = "Default"

var (
	ErrPresetNotFound     = errors.New("preset not found")
	ErrPresetExists       = errors.New("preset already exists")
	ErrInvalidPresetName  = errors.New("preset name is required")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Presets is an insertion-ordered mapping of preset name to rectangles.
// The order is the order names appear in the stored JSON object, which makes
// "first remaining preset" deterministic.
type Presets struct {
	names []string
	sets  map[string][]geometry.Rectangle
}

func (p *Presets) Len() int { return len(p.names) }

// Names returns the preset names in order.
func (p *Presets) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Presets) Has(name string) bool {
	_, ok := p.sets[name]
	return ok
}

// Get returns a copy of the rectangles stored under name.
func (p *Presets) Get(name string) ([]geometry.Rectangle, bool) {
	rects, ok := p.sets[name]
	if !ok {
		return nil, false
	}
	return append([]geometry.Rectangle{}, rects...), true
}

// Set stores rects under name. A new name is appended at the end; an
// existing one keeps its position.
func (p *Presets) Set(name string, rects []geometry.Rectangle) {
	if p.sets == nil {
		p.sets = make(map[string][]geometry.Rectangle)
	}
	if _, ok := p.sets[name]; !ok {
		p.names = append(p.names, name)
	}
	p.sets[name] = append([]geometry.Rectangle{}, rects...)
}

func (p *Presets) Delete(name string) bool {
	if _, ok := p.sets[name]; !ok {
		return false
	}
	delete(p.sets, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i:i], p.names[i+1:]...)
			break
		}
	}
	return true
}

// First returns the first preset name, or "" when empty.
func (p *Presets) First() string {
	if len(p.names) == 0 {
		return ""
	}
	return p.names[0]
}

func (p Presets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		rects := p.sets[name]
		if rects == nil {
			rects = []geometry.Rectangle{}
		}
		v, err := json.Marshal(rects)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object token by token to keep key order. A
// repeated key keeps its first position and its last value.
func (p *Presets) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("presets: expected object, got %v", tok)
	}
	*p = Presets{sets: make(map[string][]geometry.Rectangle)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("presets: expected name, got %v", tok)
		}
		var rects []geometry.Rectangle
		if err := dec.Decode(&rects); err != nil {
			return fmt.Errorf("presets: %q: %w", name, err)
		}
		p.Set(name, rects)
	}
	_, err = dec.Token()
	return err
}

// Record is everything stored under one storage key.
type Record struct {
	ActivePreset string  `json:"activePreset"`
	Presets      Presets `json:"presets"`
}

// NewRecord returns the empty Default-only record.
func NewRecord() Record {
	var r Record
	r.ActivePreset = DefaultPresetName
	r.Presets.Set(DefaultPresetName, nil)
	return r
}

// Active returns a copy of the active preset's rectangles.
func (r Record) Active() []geometry.Rectangle {
	rects, _ := r.Presets.Get(r.ActivePreset)
	if rects == nil {
		return []geometry.Rectangle{}
	}
	return rects
}

// normalize enforces the record invariants: presets is never empty and
// activePreset names a present preset. It reports whether anything changed.
func (r *Record) normalize() bool {
	changed := false
	if r.Presets.Len() == 0 {
		r.Presets.Set(DefaultPresetName, nil)
		r.ActivePreset = DefaultPresetName
		changed = true
	}
	if !r.Presets.Has(r.ActivePreset) {
		r.ActivePreset = r.Presets.First()
		changed = true
	}
	return changed
}
