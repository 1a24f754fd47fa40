package wheel

import (
	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/prize"
)

// Renderer binds prizes to slots.
type Renderer struct {
	loader AnimationLoader
}

// NewRenderer creates a renderer. A nil loader renders every prize
// statically.
func NewRenderer(loader AnimationLoader) *Renderer {
	return &Renderer{loader: loader}
}

// Render replaces the slot content with p. The previous animation handle is
// released before the new one is bound, so repeated calls never leak.
// A failed bind leaves the slot with static content.
func (r *Renderer) Render(s *Slot, p prize.Prize) {
	s.bound.release()
	s.prize = p

	c, ok := p.(prize.CollectiblePrize)
	if !ok || c.Animation == "" || r.loader == nil {
		return
	}

	h, err := r.loader.Bind(s.Container(), c.Animation)
	if err != nil {
		log.Warn().
			Err(err).
			Int("slot", s.id).
			Str("asset", c.Animation).
			Msg("Failed to bind slot animation, rendering static")
		return
	}
	s.bound.replace(h)
}

// Release drops the slot's animation handle, if any.
func (r *Renderer) Release(s *Slot) {
	s.bound.release()
}
