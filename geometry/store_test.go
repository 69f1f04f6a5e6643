package geometry_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"mosaic-keeper/geometry"
)

func TestDrawRejectsClick(t *testing.T) {
	s := geometry.NewStore()
	if _, err := s.Draw(10, 10, 12, 80); !errors.Is(err, geometry.ErrTooSmall) {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestDrawNormalisesCorners(t *testing.T) {
	s := geometry.NewStore()
	r, err := s.Draw(60, 70, 10, 20)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Left != 10 || r.Top != 20 || r.Width != 50 || r.Height != 50 {
		t.Fatalf("unexpected rect %+v", r)
	}
	if got, ok := s.Get(r.ID); !ok || got != r {
		t.Fatalf("Get: got %+v ok=%v", got, ok)
	}
}

func TestListKeepsCreationOrder(t *testing.T) {
	s := geometry.NewStore()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.Add(geometry.Rectangle{ID: id, Width: 20, Height: 20}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	// replacing in place keeps the slot
	s.Add(geometry.Rectangle{ID: "a", Left: 5, Width: 20, Height: 20})

	got := s.List()
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rects, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}
	if got[1].Left != 5 {
		t.Fatalf("expected replaced rect, got %+v", got[1])
	}
}

func TestAddRequiresID(t *testing.T) {
	s := geometry.NewStore()
	if err := s.Add(geometry.Rectangle{}); !errors.Is(err, geometry.ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestUpdateMoveRemoveUnknown(t *testing.T) {
	s := geometry.NewStore()
	if err := s.Update(geometry.Rectangle{ID: "ghost"}); !errors.Is(err, geometry.ErrNotFound) {
		t.Fatalf("Update: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Move("ghost", 1, 1); !errors.Is(err, geometry.ErrNotFound) {
		t.Fatalf("Move: expected ErrNotFound, got %v", err)
	}
	if s.Remove("ghost") {
		t.Fatal("Remove of unknown id reported true")
	}
}

func TestMoveKeepsSize(t *testing.T) {
	s := geometry.NewStore()
	s.Add(geometry.Rectangle{ID: "m", Left: 1, Top: 2, Width: 30, Height: 40})
	r, err := s.Move("m", 100, 200)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if r.Left != 100 || r.Top != 200 || r.Width != 30 || r.Height != 40 {
		t.Fatalf("unexpected rect %+v", r)
	}
}

func TestRemove(t *testing.T) {
	s := geometry.NewStore()
	s.Add(geometry.Rectangle{ID: "a"})
	s.Add(geometry.Rectangle{ID: "b"})
	if !s.Remove("a") {
		t.Fatal("expected Remove to report true")
	}
	got := s.List()
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected list %+v", got)
	}
}

func TestResetReplacesAll(t *testing.T) {
	s := geometry.NewStore()
	s.Add(geometry.Rectangle{ID: "old"})
	s.Reset([]geometry.Rectangle{{ID: "x"}, {ID: "y"}, {ID: "x", Left: 3}})
	got := s.List()
	if len(got) != 2 || got[0].ID != "x" || got[1].ID != "y" {
		t.Fatalf("unexpected list %+v", got)
	}
	if got[0].Left != 3 {
		t.Fatalf("expected last duplicate to win, got %+v", got[0])
	}
	if _, ok := s.Get("old"); ok {
		t.Fatal("stale overlay survived Reset")
	}
}

func TestListNeverNil(t *testing.T) {
	s := geometry.NewStore()
	data, _ := json.Marshal(s.List())
	if string(data) != "[]" {
		t.Fatalf("expected [], got %s", data)
	}
}

func TestResize(t *testing.T) {
	base := geometry.Rectangle{ID: "r", Left: 100, Top: 100, Width: 50, Height: 50}
	tests := []struct {
		name string
		dir  geometry.Direction
		dx   float64
		dy   float64
		want geometry.Rectangle
	}{
		{"east grows", geometry.East, 10, 0, geometry.Rectangle{ID: "r", Left: 100, Top: 100, Width: 60, Height: 50}},
		{"west moves left edge", geometry.West, -10, 0, geometry.Rectangle{ID: "r", Left: 90, Top: 100, Width: 60, Height: 50}},
		{"north-west", geometry.NorthWest, 5, 5, geometry.Rectangle{ID: "r", Left: 105, Top: 105, Width: 45, Height: 45}},
		{"south ignores dx", geometry.South, 99, 20, geometry.Rectangle{ID: "r", Left: 100, Top: 100, Width: 50, Height: 70}},
		{"east clamps", geometry.East, -100, 0, geometry.Rectangle{ID: "r", Left: 100, Top: 100, Width: 10, Height: 50}},
		{"west clamps and pins right edge", geometry.West, 100, 0, geometry.Rectangle{ID: "r", Left: 140, Top: 100, Width: 10, Height: 50}},
		{"north clamps and pins bottom edge", geometry.North, 0, 60, geometry.Rectangle{ID: "r", Left: 100, Top: 140, Width: 50, Height: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Resized(tt.dir, tt.dx, tt.dy)
			if err != nil {
				t.Fatalf("Resized: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResizeInvalidDirection(t *testing.T) {
	s := geometry.NewStore()
	s.Add(geometry.Rectangle{ID: "r", Width: 20, Height: 20})
	if _, err := s.Resize("r", "up", 1, 1); !errors.Is(err, geometry.ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := geometry.NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Draw(0, 0, 50, 50)
			if err != nil {
				return
			}
			s.Move(r.ID, 10, 10)
			_ = s.List()
		}()
	}
	wg.Wait()
	if s.Len() != 10 {
		t.Fatalf("expected 10 overlays, got %d", s.Len())
	}
}
