package preset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"mosaic-keeper/geometry"
)

// Shape classifies a raw stored value.
type Shape int

const (
	// Absent: no value stored under the key (or JSON null).
	Absent Shape = iota
	// LegacyList: a bare array of rectangles from before presets existed.
	LegacyList
	// Current: the {activePreset, presets} record.
	Current
	// Unrecognized: a value matching neither layout.
	Unrecognized
)

func (s Shape) String() string {
	switch s {
	case Absent:
		return "absent"
	case LegacyList:
		return "legacy"
	case Current:
		return "current"
	case Unrecognized:
		return "unrecognized"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// Stored is the tagged result of decoding a raw value. Exactly one of
// Legacy or Record is meaningful, selected by Shape.
type Stored struct {
	Shape  Shape
	Legacy []geometry.Rectangle
	Record Record
	// Problems lists schema violations when Shape is Unrecognized, and the
	// entries dropped or repaired for the other shapes.
	Problems []string
}

const rectangleSchemaSource = `{
	"type": "object",
	"properties": {
		"id":     {"type": "string"},
		"left":   {"type": "number"},
		"top":    {"type": "number"},
		"width":  {"type": "number"},
		"height": {"type": "number"}
	}
}`

// The shape schemas only decide which layout a value uses. Entries inside a
// recognised layout are checked one by one against rectangleSchemaSource, so
// a single bad rectangle or preset never costs the rest of the record.
const legacySchemaSource = `{"type": "array"}`

const currentSchemaSource = `{
	"type": "object",
	"required": ["presets"],
	"properties": {
		"presets": {"type": "object"}
	}
}`

var (
	schemasOnce   sync.Once
	legacySchema  *gojsonschema.Schema
	currentSchema *gojsonschema.Schema
	rectSchema    *gojsonschema.Schema
	schemaErr     error
)

func loadSchemas() error {
	schemasOnce.Do(func() {
		compile := func(src string) *gojsonschema.Schema {
			if schemaErr != nil {
				return nil
			}
			var sc *gojsonschema.Schema
			sc, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			return sc
		}
		legacySchema = compile(legacySchemaSource)
		currentSchema = compile(currentSchemaSource)
		rectSchema = compile(rectangleSchemaSource)
	})
	return schemaErr
}

// Decode classifies raw. ok=false means the key had no value. Decode only
// returns an error for failures of the decoder itself; a value in neither
// layout is reported as Unrecognized. Inside a recognised layout, entries
// that cannot be read are dropped and listed in Problems, and everything
// else is kept.
func Decode(raw []byte, ok bool) (Stored, error) {
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Stored{Shape: Absent}, nil
	}
	if !json.Valid(raw) {
		return Stored{Shape: Unrecognized, Problems: []string{"value is not valid JSON"}}, nil
	}
	if err := loadSchemas(); err != nil {
		return Stored{}, fmt.Errorf("compile record schemas: %w", err)
	}
	doc := gojsonschema.NewBytesLoader(raw)

	res, err := legacySchema.Validate(doc)
	if err != nil {
		return Stored{}, fmt.Errorf("validate legacy shape: %w", err)
	}
	if res.Valid() {
		list, problems, err := salvageRects(raw, "legacy list")
		if err != nil {
			return Stored{}, err
		}
		return Stored{Shape: LegacyList, Legacy: list, Problems: problems}, nil
	}

	res, err = currentSchema.Validate(doc)
	if err != nil {
		return Stored{}, fmt.Errorf("validate record shape: %w", err)
	}
	if res.Valid() {
		rec, problems, err := salvageRecord(raw)
		if err != nil {
			return Stored{}, err
		}
		return Stored{Shape: Current, Record: rec, Problems: problems}, nil
	}

	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return Stored{Shape: Unrecognized, Problems: problems}, nil
}

// salvageRecord reads an object already known to carry a presets object,
// keeping preset order.
func salvageRecord(raw []byte) (Record, []string, error) {
	var top struct {
		ActivePreset json.RawMessage `json:"activePreset"`
		Presets      json.RawMessage `json:"presets"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return Record{}, nil, fmt.Errorf("decode record: %w", err)
	}

	var rec Record
	var problems []string
	if len(top.ActivePreset) > 0 {
		if err := json.Unmarshal(top.ActivePreset, &rec.ActivePreset); err != nil {
			problems = append(problems, fmt.Sprintf("activePreset is not a string: %s", top.ActivePreset))
		}
	}

	dec := json.NewDecoder(bytes.NewReader(top.Presets))
	if _, err := dec.Token(); err != nil {
		return Record{}, nil, fmt.Errorf("decode presets: %w", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, nil, fmt.Errorf("decode presets: %w", err)
		}
		name, _ := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return Record{}, nil, fmt.Errorf("decode preset %q: %w", name, err)
		}
		if trimmed := bytes.TrimSpace(val); len(trimmed) == 0 || trimmed[0] != '[' {
			problems = append(problems, fmt.Sprintf("preset %q dropped: not a list", name))
			continue
		}
		rects, bad, err := salvageRects(val, fmt.Sprintf("preset %q", name))
		if err != nil {
			return Record{}, nil, err
		}
		problems = append(problems, bad...)
		rec.Presets.Set(name, rects)
	}
	return rec, problems, nil
}

// salvageRects reads a JSON array of rectangles, repairing numeric ids and
// dropping elements that still do not fit the rectangle schema.
func salvageRects(raw []byte, where string) ([]geometry.Rectangle, []string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", where, err)
	}
	rects := make([]geometry.Rectangle, 0, len(items))
	var problems []string
	for i, item := range items {
		item = repairRectID(item)
		res, err := rectSchema.Validate(gojsonschema.NewBytesLoader(item))
		if err != nil {
			return nil, nil, fmt.Errorf("validate %s[%d]: %w", where, i, err)
		}
		if !res.Valid() {
			problems = append(problems, fmt.Sprintf("%s[%d] dropped: %s", where, i, res.Errors()[0]))
			continue
		}
		var r geometry.Rectangle
		if err := json.Unmarshal(item, &r); err != nil {
			return nil, nil, fmt.Errorf("decode %s[%d]: %w", where, i, err)
		}
		rects = append(rects, r)
	}
	return rects, problems, nil
}

// repairRectID turns a numeric id into its string form. Anything else is
// returned untouched.
func repairRectID(item json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil {
		return item
	}
	id, ok := obj["id"]
	if !ok {
		return item
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return item
	}
	quoted, _ := json.Marshal(n.String())
	obj["id"] = quoted
	fixed, err := json.Marshal(obj)
	if err != nil {
		return item
	}
	return fixed
}
