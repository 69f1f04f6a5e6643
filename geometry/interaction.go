package geometry

import "fmt"

// Mode is the kind of pointer interaction in progress on a page.
type Mode int

const (
	Idle Mode = iota
	Drawing
	Dragging
	Resizing
)

var modeNames = [...]string{"idle", "drawing", "dragging", "resizing"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	for i, n := range modeNames {
		if n == string(b) {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown interaction mode %q", b)
}

// Interaction is the explicit interaction state of one page:
// Idle | Drawing | Dragging(id) | Resizing(id, direction).
type Interaction struct {
	Mode      Mode      `json:"mode"`
	ID        string    `json:"id,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Validate checks that the fields required by the mode are present.
func (in Interaction) Validate() error {
	switch in.Mode {
	case Idle, Drawing:
		return nil
	case Dragging:
		if in.ID == "" {
			return ErrMissingID
		}
		return nil
	case Resizing:
		if in.ID == "" {
			return ErrMissingID
		}
		if !in.Direction.Valid() {
			return ErrInvalidDirection
		}
		return nil
	}
	return fmt.Errorf("unknown interaction mode %d", in.Mode)
}
