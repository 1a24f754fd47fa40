// Package wheel drives the prize carousel: slot rendering, the perpetual
// scroll loop, slot recycling and focus scaling. It knows nothing about
// spins; a spin controller steers it through speed, Hold and Move.
package wheel

import (
	"errors"
	"fmt"
	"math"
)

// Focus scaling constants.
const (
	MaxScale       = 1.5
	MinScale       = 0.6
	ScaleFalloff   = 0.9
	HighlightScale = 1.3
)

// ErrBadLayout is returned for layouts with non-positive geometry or too
// few slots to put one under the marker.
var ErrBadLayout = errors.New("invalid wheel layout")

// Layout is the carousel geometry in pixels.
type Layout struct {
	CellWidth      float64
	Gap            float64
	ContainerWidth float64
	Slots          int
}

// DefaultLayout matches the mobile web app: 120px cells, 48px gaps in a
// 390px wide container.
func DefaultLayout() Layout {
	return Layout{CellWidth: 120, Gap: 48, ContainerWidth: 390, Slots: 9}
}

// Validate checks the geometry. Zero slots is allowed; otherwise the deque
// must reach the position AlignedOffset centres.
func (l Layout) Validate() error {
	if l.CellWidth <= 0 || l.Gap < 0 || l.ContainerWidth <= 0 || l.Slots < 0 {
		return ErrBadLayout
	}
	if _, pos := l.AlignedOffset(); l.Slots > 0 && l.Slots <= pos {
		return fmt.Errorf("%w: %d slots, marker needs at least %d", ErrBadLayout, l.Slots, pos+1)
	}
	return nil
}

// Pitch is the distance between neighbouring slot centres.
func (l Layout) Pitch() float64 {
	return l.CellWidth + l.Gap
}

// Center is the x coordinate of the selection marker.
func (l Layout) Center() float64 {
	return l.ContainerWidth / 2
}

// SlotCenter returns the on-screen centre of the slot at deque position pos
// for a given scroll offset.
func (l Layout) SlotCenter(pos int, offset float64) float64 {
	return float64(pos)*l.Pitch() + l.CellWidth/2 - offset
}

// FocusScale maps the distance from the marker to a scale factor with a
// linear falloff clamped at MinScale.
func (l Layout) FocusScale(distance float64) float64 {
	half := l.Center()
	if half <= 0 {
		return MinScale
	}
	return math.Max(MinScale, MaxScale-math.Abs(distance)/half*ScaleFalloff)
}

// AlignedOffset returns the offset in [0, pitch) at which some slot sits
// exactly under the marker, and the deque position of that slot.
func (l Layout) AlignedOffset() (offset float64, pos int) {
	p := l.Pitch()
	offset = math.Mod(l.CellWidth/2-l.Center(), p)
	if offset < 0 {
		offset += p
	}
	pos = int(math.Round((l.Center() - l.CellWidth/2 + offset) / p))
	return offset, pos
}
