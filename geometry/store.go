package geometry

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds the live overlays of one page, in creation order.
type Store struct {
	mu    sync.RWMutex
	order []string
	rects map[string]Rectangle
}

func NewStore() *Store {
	return &Store{rects: make(map[string]Rectangle)}
}

// Reset replaces the whole set. Used on every render so a reload never
// leaves stale or duplicate overlays behind.
func (s *Store) Reset(rects []Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.rects = make(map[string]Rectangle, len(rects))
	for _, r := range rects {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if _, dup := s.rects[r.ID]; !dup {
			s.order = append(s.order, r.ID)
		}
		s.rects[r.ID] = r
	}
}

// Add inserts r, or replaces the rectangle with the same id in place.
func (s *Store) Add(r Rectangle) error {
	if r.ID == "" {
		return ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rects[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.rects[r.ID] = r
	return nil
}

// Draw creates a new overlay with a fresh id from two drag points.
func (s *Store) Draw(x1, y1, x2, y2 float64) (Rectangle, error) {
	r, err := FromCorners(uuid.New().String(), x1, y1, x2, y2)
	if err != nil {
		return Rectangle{}, err
	}
	return r, s.Add(r)
}

// Update overwrites an existing overlay; the id must already be present.
func (s *Store) Update(r Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rects[r.ID]; !ok {
		return ErrNotFound
	}
	s.rects[r.ID] = r
	return nil
}

// Move repositions an overlay, keeping its size.
func (s *Store) Move(id string, left, top float64) (Rectangle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rects[id]
	if !ok {
		return Rectangle{}, ErrNotFound
	}
	r.Left, r.Top = left, top
	s.rects[id] = r
	return r, nil
}

// Resize applies a handle drag to an overlay.
func (s *Store) Resize(id string, d Direction, dx, dy float64) (Rectangle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rects[id]
	if !ok {
		return Rectangle{}, ErrNotFound
	}
	out, err := r.Resized(d, dx, dy)
	if err != nil {
		return Rectangle{}, err
	}
	s.rects[id] = out
	return out, nil
}

// Remove deletes an overlay. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rects[id]; !ok {
		return false
	}
	delete(s.rects, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Get(id string) (Rectangle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rects[id]
	return r, ok
}

// List returns a copy of all overlays in creation order. Never nil.
func (s *Store) List() []Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rectangle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rects[id])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
