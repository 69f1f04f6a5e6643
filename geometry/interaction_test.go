package geometry_test

import (
	"encoding/json"
	"testing"

	"mosaic-keeper/geometry"
)

func TestInteractionJSON(t *testing.T) {
	in := geometry.Interaction{Mode: geometry.Resizing, ID: "r1", Direction: geometry.SouthEast}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"mode":"resizing","id":"r1","direction":"se"}` {
		t.Fatalf("unexpected json %s", data)
	}
	var back geometry.Interaction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != in {
		t.Fatalf("got %+v, want %+v", back, in)
	}
}

func TestInteractionUnknownMode(t *testing.T) {
	var in geometry.Interaction
	if err := json.Unmarshal([]byte(`{"mode":"flying"}`), &in); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestInteractionValidate(t *testing.T) {
	cases := []struct {
		in geometry.Interaction
		ok bool
	}{
		{geometry.Interaction{}, true},
		{geometry.Interaction{Mode: geometry.Drawing}, true},
		{geometry.Interaction{Mode: geometry.Dragging}, false},
		{geometry.Interaction{Mode: geometry.Dragging, ID: "a"}, true},
		{geometry.Interaction{Mode: geometry.Resizing, ID: "a"}, false},
		{geometry.Interaction{Mode: geometry.Resizing, ID: "a", Direction: geometry.North}, true},
	}
	for _, c := range cases {
		err := c.in.Validate()
		if (err == nil) != c.ok {
			t.Fatalf("%+v: Validate() = %v, want ok=%v", c.in, err, c.ok)
		}
	}
}
