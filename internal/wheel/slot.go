package wheel

import (
	"fmt"

	"telegram-daily-spin/internal/prize"
)

// Handle is a bound animation instance. Release must be called exactly
// once per handle; implementations tolerate repeated calls.
type Handle interface {
	Release()
}

// AnimationLoader binds an animation asset into a named container.
type AnimationLoader interface {
	Bind(container, assetPath string) (Handle, error)
}

// binding owns at most one handle and releases it on replacement.
type binding struct {
	h Handle
}

func (b *binding) replace(h Handle) {
	if b.h != nil {
		b.h.Release()
	}
	b.h = h
}

func (b *binding) release() {
	b.replace(nil)
}

// Slot is one carousel cell. Its id is its physical identity and survives
// recycling; the prize it shows changes.
type Slot struct {
	id          int
	prize       prize.Prize
	bound       binding
	scale       float64
	highlighted bool
}

func newSlot(id int) *Slot {
	return &Slot{id: id, scale: MinScale}
}

// ID returns the physical slot id.
func (s *Slot) ID() int { return s.id }

// Prize returns the prize currently rendered in the slot.
func (s *Slot) Prize() prize.Prize { return s.prize }

// Scale returns the focus scale from the last tick.
func (s *Slot) Scale() float64 { return s.scale }

// Highlighted reports whether the slot is in focus.
func (s *Slot) Highlighted() bool { return s.highlighted }

// Animated reports whether the slot currently holds an animation handle.
func (s *Slot) Animated() bool { return s.bound.h != nil }

// Container is the name the slot's content is bound under.
func (s *Slot) Container() string {
	return fmt.Sprintf("slot-%d", s.id)
}
