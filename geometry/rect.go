package geometry

import (
	"errors"
	"math"
	"strings"
)

// Rectangle is one overlay in page-absolute pixels.
type Rectangle struct {
	ID     string  `json:"id"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const (
	// MinDrawSize is the smallest width or height a freshly drawn overlay may have.
	MinDrawSize = 5
	// MinResizeSize is the floor a resize clamps width and height to.
	MinResizeSize = 10
)

var (
	ErrNotFound         = errors.New("overlay not found")
	ErrTooSmall         = errors.New("overlay too small")
	ErrInvalidDirection = errors.New("invalid resize direction")
	ErrMissingID        = errors.New("overlay id is required")
)

// Direction names the handle a resize is dragged from.
type Direction string

const (
	North     Direction = "n"
	South     Direction = "s"
	East      Direction = "e"
	West      Direction = "w"
	NorthEast Direction = "ne"
	NorthWest Direction = "nw"
	SouthEast Direction = "se"
	SouthWest Direction = "sw"
)

// Valid reports whether d is one of the eight handle directions.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest:
		return true
	}
	return false
}

// FromCorners builds the rectangle spanned by two drag points. It fails with
// ErrTooSmall when either side is under MinDrawSize, which is how a plain
// click is told apart from a draw.
func FromCorners(id string, x1, y1, x2, y2 float64) (Rectangle, error) {
	w := math.Abs(x2 - x1)
	h := math.Abs(y2 - y1)
	if w < MinDrawSize || h < MinDrawSize {
		return Rectangle{}, ErrTooSmall
	}
	return Rectangle{
		ID:     id,
		Left:   math.Min(x1, x2),
		Top:    math.Min(y1, y2),
		Width:  w,
		Height: h,
	}, nil
}

// Resized returns r dragged by (dx, dy) from handle d. Width and height are
// clamped to MinResizeSize; when a west or north edge hits the floor the
// opposite edge stays put.
func (r Rectangle) Resized(d Direction, dx, dy float64) (Rectangle, error) {
	if !d.Valid() {
		return r, ErrInvalidDirection
	}
	out := r
	dir := string(d)
	if strings.Contains(dir, "w") {
		out.Width -= dx
		out.Left += dx
	}
	if strings.Contains(dir, "e") {
		out.Width += dx
	}
	if strings.Contains(dir, "n") {
		out.Height -= dy
		out.Top += dy
	}
	if strings.Contains(dir, "s") {
		out.Height += dy
	}

	if out.Width < MinResizeSize {
		if strings.Contains(dir, "w") {
			out.Left = out.Left + out.Width - MinResizeSize
		}
		out.Width = MinResizeSize
	}
	if out.Height < MinResizeSize {
		if strings.Contains(dir, "n") {
			out.Top = out.Top + out.Height - MinResizeSize
		}
		out.Height = MinResizeSize
	}
	return out, nil
}
