package wheel

import (
	"math"
	"time"

	"telegram-daily-spin/internal/prize"
)

// Loop is the single scroll driver for the carousel. It serves both idle
// scrolling and spin deceleration; speed is the only control variable.
//
// slots is a deque: index 0 is the leading (leftmost) slot. The track is
// translated left by offset, which is kept in [0, pitch).
//
// Loop is not safe for concurrent use; its owner serializes access.
type Loop struct {
	layout   Layout
	renderer *Renderer
	selector prize.Selector

	slots    []*Slot
	offset   float64
	speed    float64
	held     bool
	recycled int
}

// NewLoop creates a loop with layout.Slots slots, each rendered with a
// fresh draw. speed is in pixels per second.
func NewLoop(layout Layout, renderer *Renderer, selector prize.Selector, speed float64) (*Loop, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	l := &Loop{
		layout:   layout,
		renderer: renderer,
		selector: selector,
		slots:    make([]*Slot, layout.Slots),
		speed:    speed,
	}
	for i := range l.slots {
		l.slots[i] = newSlot(i)
		l.renderer.Render(l.slots[i], selector.Select())
	}
	l.updateScales()
	return l, nil
}

// Tick advances the loop by dt at the current speed.
func (l *Loop) Tick(dt time.Duration) {
	l.Move(l.speed * dt.Seconds())
}

// Move shifts the track by delta pixels. Slots that scroll past the leading
// edge are recycled to the tail; while the loop is held they keep their
// content, otherwise they get a fresh draw. Negative deltas rotate slots
// back to the head without re-rendering.
func (l *Loop) Move(delta float64) {
	l.offset += delta
	pitch := l.layout.Pitch()

	if len(l.slots) == 0 {
		l.offset = math.Mod(l.offset, pitch)
		if l.offset < 0 {
			l.offset += pitch
		}
		return
	}

	for l.offset >= pitch {
		head := l.slots[0]
		copy(l.slots, l.slots[1:])
		l.slots[len(l.slots)-1] = head
		l.offset -= pitch
		l.recycled++

		if !l.held {
			l.renderer.Render(head, l.selector.Select())
		}
	}
	for l.offset < 0 {
		tail := l.slots[len(l.slots)-1]
		copy(l.slots[1:], l.slots[:len(l.slots)-1])
		l.slots[0] = tail
		l.offset += pitch
	}

	l.updateScales()
}

func (l *Loop) updateScales() {
	c := l.layout.Center()
	for pos, s := range l.slots {
		d := l.layout.SlotCenter(pos, l.offset) - c
		s.scale = l.layout.FocusScale(d)
		s.highlighted = s.scale > HighlightScale
	}
}

// Nearest returns the deque position of the slot closest to the marker and
// its signed distance (slot centre minus marker). ok is false without slots.
func (l *Loop) Nearest() (pos int, distance float64, ok bool) {
	if len(l.slots) == 0 {
		return 0, 0, false
	}
	c := l.layout.Center()
	best := math.Inf(1)
	for i := range l.slots {
		d := l.layout.SlotCenter(i, l.offset) - c
		if math.Abs(d) < math.Abs(best) {
			best = d
			pos = i
		}
	}
	return pos, best, true
}

// Repopulate releases every slot and renders a fresh draw into each.
func (l *Loop) Repopulate() {
	for _, s := range l.slots {
		l.renderer.Render(s, l.selector.Select())
	}
}

// RenderAt renders p into the slot at deque position pos.
func (l *Loop) RenderAt(pos int, p prize.Prize) *Slot {
	s := l.slots[pos]
	l.renderer.Render(s, p)
	return s
}

// Close releases every animation handle. The loop must not be used after.
func (l *Loop) Close() {
	for _, s := range l.slots {
		l.renderer.Release(s)
	}
}

// Hold suppresses (true) or restores (false) re-rendering of recycled
// slots.
func (l *Loop) Hold(held bool) { l.held = held }

// Held reports whether recycling re-render is suppressed.
func (l *Loop) Held() bool { return l.held }

// SetSpeed sets the scroll speed in pixels per second.
func (l *Loop) SetSpeed(v float64) { l.speed = v }

// Speed returns the scroll speed in pixels per second.
func (l *Loop) Speed() float64 { return l.speed }

// Offset returns the current track offset in [0, pitch).
func (l *Loop) Offset() float64 { return l.offset }

// Layout returns the carousel geometry.
func (l *Loop) Layout() Layout { return l.layout }

// Len returns the number of slots.
func (l *Loop) Len() int { return len(l.slots) }

// SlotAt returns the slot at deque position pos.
func (l *Loop) SlotAt(pos int) *Slot { return l.slots[pos] }

// Recycled returns how many slots have been recycled so far.
func (l *Loop) Recycled() int { return l.recycled }

// SlotView is a read-only picture of one slot for clients.
type SlotView struct {
	ID          int     `json:"id"`
	PrizeID     string  `json:"prize_id"`
	Kind        string  `json:"kind"`
	Label       string  `json:"label"`
	X           float64 `json:"x"`
	Scale       float64 `json:"scale"`
	Highlighted bool    `json:"highlighted"`
	Animated    bool    `json:"animated"`
}

// Frame is what a client needs to draw the carousel: the track transform
// and each slot in deque order.
type Frame struct {
	Offset float64    `json:"offset"`
	Speed  float64    `json:"speed"`
	Slots  []SlotView `json:"slots"`
}

// Frame snapshots the loop.
func (l *Loop) Frame() Frame {
	f := Frame{
		Offset: l.offset,
		Speed:  l.speed,
		Slots:  make([]SlotView, len(l.slots)),
	}
	for pos, s := range l.slots {
		v := SlotView{
			ID:          s.id,
			X:           l.layout.SlotCenter(pos, l.offset),
			Scale:       s.scale,
			Highlighted: s.highlighted,
			Animated:    s.Animated(),
		}
		if s.prize != nil {
			v.PrizeID = s.prize.ID()
			v.Kind = string(s.prize.Kind())
			v.Label = s.prize.Label()
		}
		f.Slots[pos] = v
	}
	return f
}
