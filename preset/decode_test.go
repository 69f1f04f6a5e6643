package preset_test

import (
	"encoding/json"
	"testing"

	"mosaic-keeper/preset"
)

func TestDecodeShapes(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		ok    bool
		shape preset.Shape
	}{
		{"missing key", "", false, preset.Absent},
		{"json null", "null", true, preset.Absent},
		{"empty legacy", "[]", true, preset.LegacyList},
		{"legacy", `[{"id":"a","left":1,"top":2,"width":3,"height":4}]`, true, preset.LegacyList},
		{"current", `{"activePreset":"A","presets":{"A":[]}}`, true, preset.Current},
		{"current without active", `{"presets":{}}`, true, preset.Current},
		{"object without presets", `{"activePreset":"A"}`, true, preset.Unrecognized},
		{"presets not an object", `{"presets":[]}`, true, preset.Unrecognized},
		{"legacy with bad rectangle", `[{"id":"a","left":"far"}]`, true, preset.LegacyList},
		{"current with null preset", `{"presets":{"A":null}}`, true, preset.Current},
		{"current with numeric active", `{"activePreset":3,"presets":{}}`, true, preset.Current},
		{"scalar", `42`, true, preset.Unrecognized},
		{"garbage", `{nope`, true, preset.Unrecognized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st, err := preset.Decode([]byte(c.raw), c.ok)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if st.Shape != c.shape {
				t.Fatalf("got %v, want %v (problems %v)", st.Shape, c.shape, st.Problems)
			}
		})
	}
}

func TestDecodeUnrecognizedReportsProblems(t *testing.T) {
	st, _ := preset.Decode([]byte(`{"presets":"x"}`), true)
	if st.Shape != preset.Unrecognized || len(st.Problems) == 0 {
		t.Fatalf("expected problems, got %+v", st)
	}
}

func TestDecodeSalvagesEntries(t *testing.T) {
	raw := `{"activePreset":"Work","presets":{` +
		`"Work":[{"id":"w","left":1,"top":2,"width":3,"height":4},{"id":"bad","width":"wide"},{"id":7,"left":0,"top":0,"width":9,"height":9}],` +
		`"Old":null,` +
		`"Empty":[]}}`
	st, err := preset.Decode([]byte(raw), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if st.Shape != preset.Current {
		t.Fatalf("shape = %v, problems %v", st.Shape, st.Problems)
	}
	if names := st.Record.Presets.Names(); len(names) != 2 || names[0] != "Work" || names[1] != "Empty" {
		t.Fatalf("names = %v", names)
	}
	work, _ := st.Record.Presets.Get("Work")
	if len(work) != 2 || work[0].ID != "w" || work[1].ID != "7" {
		t.Fatalf("work = %+v", work)
	}
	if len(st.Problems) != 2 {
		t.Fatalf("problems = %v", st.Problems)
	}
}

func TestDecodeLegacyKeepsGoodRectangles(t *testing.T) {
	st, err := preset.Decode([]byte(`[{"id":"a","left":1,"top":1,"width":5,"height":5},"junk"]`), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if st.Shape != preset.LegacyList || len(st.Legacy) != 1 || st.Legacy[0].ID != "a" || len(st.Problems) != 1 {
		t.Fatalf("unexpected %+v", st)
	}
}

func TestPresetsKeepStoredOrder(t *testing.T) {
	var rec preset.Record
	raw := `{"activePreset":"m","presets":{"z":[],"a":[],"m":[{"id":"r","left":0,"top":0,"width":1,"height":1}]}}`
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	names := rec.Presets.Names()
	if len(names) != 3 || names[0] != "z" || names[1] != "a" || names[2] != "m" {
		t.Fatalf("unexpected order %v", names)
	}
	out, _ := json.Marshal(rec)
	if string(out) != raw {
		t.Fatalf("re-encode changed order:\n%s\n%s", out, raw)
	}
}

func TestPresetsDuplicateKeyKeepsFirstPosition(t *testing.T) {
	var p preset.Presets
	if err := json.Unmarshal([]byte(`{"a":[],"b":[],"a":[{"id":"x"}]}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if names := p.Names(); len(names) != 2 || names[0] != "a" {
		t.Fatalf("unexpected names %v", names)
	}
	if rects, _ := p.Get("a"); len(rects) != 1 {
		t.Fatalf("expected last value to win, got %+v", rects)
	}
}

func TestPresetsDelete(t *testing.T) {
	var p preset.Presets
	p.Set("a", nil)
	p.Set("b", nil)
	if !p.Delete("a") || p.First() != "b" {
		t.Fatalf("after delete: %v", p.Names())
	}
	if p.Delete("a") {
		t.Fatal("second delete reported true")
	}
}
