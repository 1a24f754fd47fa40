// Package spin runs the spin state machine on top of the wheel loop:
// the winner is drawn first, planted in the slot the deceleration will stop
// on, and revealed once the wheel settles.
package spin

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-daily-spin/internal/pkg/easing"
	"telegram-daily-spin/internal/prize"
	"telegram-daily-spin/internal/wheel"
)

// Spin errors.
var (
	ErrSpinInFlight    = errors.New("spin already in progress")
	ErrNoSlots         = errors.New("wheel has no slots")
	ErrNothingRevealed = errors.New("no revealed prize to claim")
)

// Phase is the current step of the state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSpinning
	PhaseDecelerating
	PhaseSnapping
	PhaseRevealed
)

var phaseNames = [...]string{"idle", "spinning", "decelerating", "snapping", "revealed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Config holds spin timing and distance.
type Config struct {
	BaseDistance  float64       // pixels
	Jitter        float64       // extra pixels drawn from [0, Jitter)
	Deceleration  time.Duration // speed falls from max to zero over this
	SettleDelay   time.Duration // pause between stop and snap
	Snap          time.Duration
	RevealDelay   time.Duration // pause between snap and reveal
	RevealTimeout time.Duration // auto-claim after this; zero disables
	IdleSpeed     float64       // pixels per second
}

// DefaultConfig mirrors the web app's timings.
func DefaultConfig() Config {
	return Config{
		BaseDistance:  5000,
		Jitter:        600,
		Deceleration:  4500 * time.Millisecond,
		SettleDelay:   100 * time.Millisecond,
		Snap:          400 * time.Millisecond,
		RevealDelay:   200 * time.Millisecond,
		RevealTimeout: time.Minute,
		IdleSpeed:     60,
	}
}

// Rewarder applies a claimed prize.
type Rewarder interface {
	Award(p prize.Prize) error
}

// RewarderFunc adapts a function to Rewarder.
type RewarderFunc func(p prize.Prize) error

// Award calls f.
func (f RewarderFunc) Award(p prize.Prize) error { return f(p) }

// State is a read-only snapshot of the controller.
type State struct {
	Phase    Phase
	Spinning bool
	Winner   prize.Prize // set from spin start until claim
	Revealed prize.Prize // set only in PhaseRevealed
	Offset   float64
	Speed    float64
}

// Controller sequences Idle → Spinning → Decelerating → Snapping →
// Revealed → Idle over a wheel.Loop. It is driven by Tick with a virtual
// clock and is not safe for concurrent use.
type Controller struct {
	loop     *wheel.Loop
	selector prize.Selector
	rewarder Rewarder
	cfg      Config
	jitter   func() float64
	onReveal func(prize.Prize)

	phase    Phase
	elapsed  time.Duration
	winner   prize.Prize
	revealed prize.Prize

	targetSlot int // physical id of the slot holding the winner
	travel     float64
	traveled   float64
	snapDelta  float64
	snapped    float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithJitterSource replaces the [0, 1) source for the distance jitter.
func WithJitterSource(fn func() float64) Option {
	return func(c *Controller) { c.jitter = fn }
}

// WithRevealHook is called once per spin when the prize is revealed.
func WithRevealHook(fn func(prize.Prize)) Option {
	return func(c *Controller) { c.onReveal = fn }
}

// NewController creates a controller. The loop is switched to the idle
// speed.
func NewController(loop *wheel.Loop, selector prize.Selector, rewarder Rewarder, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		loop:     loop,
		selector: selector,
		rewarder: rewarder,
		cfg:      cfg,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	loop.SetSpeed(cfg.IdleSpeed)
	return c
}

// WinningSlotIndex is the ring index the wheel stops on after travelling
// distance d. Ring index 0 is the first slot to reach the marker.
func WinningSlotIndex(d, pitch float64, slots int) int {
	if slots <= 0 {
		return 0
	}
	steps := int(math.Floor(d / pitch))
	i := steps % slots
	if i < 0 {
		i += slots
	}
	return i
}

// Spin starts a spin. It is rejected while another spin is in flight and
// aborted without side effects when the wheel has no slots.
func (c *Controller) Spin() error {
	if c.phase != PhaseIdle {
		return ErrSpinInFlight
	}
	n := c.loop.Len()
	if n == 0 {
		return ErrNoSlots
	}

	winner := c.selector.Select()
	layout := c.loop.Layout()
	pitch := layout.Pitch()

	c.loop.Hold(true)
	c.loop.Repopulate()

	// Distance to the first alignment; if the aligned offset is already
	// behind us the next slot along gets there first.
	alignedOffset, alignedPos := layout.AlignedOffset()
	align := alignedOffset - c.loop.Offset()
	first := alignedPos
	if align < 0 {
		align += pitch
		first++
	}

	d := c.cfg.BaseDistance + c.jitter()*c.cfg.Jitter
	steps := math.Floor(d / pitch)
	w := WinningSlotIndex(d, pitch, n)

	slot := c.loop.RenderAt((first+w)%n, winner)

	c.winner = winner
	c.targetSlot = slot.ID()
	c.travel = align + steps*pitch
	c.traveled = 0
	c.elapsed = 0
	c.phase = PhaseSpinning

	log.Debug().
		Str("winner", winner.ID()).
		Float64("distance", d).
		Int("ring_index", w).
		Int("slot", slot.ID()).
		Msg("Spin started")
	return nil
}

// Tick advances the state machine and the loop by dt.
func (c *Controller) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}

	switch c.phase {
	case PhaseIdle, PhaseRevealed:
		c.loop.Tick(dt)
		if c.phase == PhaseRevealed {
			c.elapsed += dt
			if c.cfg.RevealTimeout > 0 && c.elapsed >= c.cfg.RevealTimeout {
				log.Info().Str("prize", c.revealed.ID()).Msg("Reveal timed out, auto-claiming")
				if _, err := c.Claim(); err != nil {
					log.Warn().Err(err).Msg("Auto-claim failed, wheel is idle again")
				}
			}
		}

	case PhaseSpinning:
		c.phase = PhaseDecelerating
		fallthrough

	case PhaseDecelerating:
		c.decelerate(dt)

	case PhaseSnapping:
		c.snap(dt)
	}
}

// decelerate moves the wheel so the travelled distance follows
// travel*OutQuint(p); the resulting speed falls off as (1-p)^4.
func (c *Controller) decelerate(dt time.Duration) {
	c.elapsed += dt
	p := easing.Progress(c.elapsed.Seconds(), c.cfg.Deceleration.Seconds())

	target := c.travel * easing.OutQuint(p)
	delta := target - c.traveled
	c.traveled = target

	c.loop.SetSpeed(delta / dt.Seconds())
	c.loop.Tick(dt)

	if c.elapsed >= c.cfg.Deceleration+c.cfg.SettleDelay {
		c.loop.SetSpeed(0)
		c.startSnap()
	}
}

func (c *Controller) startSnap() {
	_, d, _ := c.loop.Nearest()
	c.snapDelta = d
	c.snapped = 0
	c.elapsed = 0
	c.phase = PhaseSnapping
}

// snap eases the nearest slot onto the marker, outside the loop's own
// speed.
func (c *Controller) snap(dt time.Duration) {
	c.elapsed += dt
	p := easing.Progress(c.elapsed.Seconds(), c.cfg.Snap.Seconds())

	target := c.snapDelta * easing.OutCubic(p)
	c.loop.Move(target - c.snapped)
	c.snapped = target

	if c.elapsed >= c.cfg.Snap+c.cfg.RevealDelay {
		c.reveal()
	}
}

func (c *Controller) reveal() {
	pos, _, _ := c.loop.Nearest()
	slot := c.loop.SlotAt(pos)

	shown := slot.Prize()
	if slot.ID() != c.targetSlot || !prize.Same(shown, c.winner) {
		// Logic defect: the wheel stopped on the wrong slot. The drawn
		// winner is what the user gets.
		log.Error().
			Int("stopped_slot", slot.ID()).
			Int("target_slot", c.targetSlot).
			Str("winner", c.winner.ID()).
			Msg("Spin stopped on a slot other than the winner")
		shown = c.winner
	}

	c.revealed = shown
	c.elapsed = 0
	c.phase = PhaseRevealed

	if c.onReveal != nil {
		c.onReveal(shown)
	}
}

// Claim commits the revealed prize through the rewarder and returns the
// wheel to idle. The wheel returns to idle even when the rewarder fails.
func (c *Controller) Claim() (prize.Prize, error) {
	if c.phase != PhaseRevealed {
		return nil, ErrNothingRevealed
	}

	p := c.revealed
	err := c.rewarder.Award(p)
	if err != nil {
		log.Error().Err(err).Str("prize", p.ID()).Msg("Failed to award claimed prize")
	}

	c.reset()
	return p, err
}

// Dismiss closes the reveal without an explicit claim. The prize was
// decided before the animation, so it is awarded all the same.
func (c *Controller) Dismiss() error {
	_, err := c.Claim()
	return err
}

func (c *Controller) reset() {
	c.winner = nil
	c.revealed = nil
	c.loop.Repopulate()
	c.loop.SetSpeed(c.cfg.IdleSpeed)
	c.loop.Hold(false)
	c.elapsed = 0
	c.phase = PhaseIdle
}

// State snapshots the controller.
func (c *Controller) State() State {
	return State{
		Phase:    c.phase,
		Spinning: c.phase != PhaseIdle,
		Winner:   c.winner,
		Revealed: c.revealed,
		Offset:   c.loop.Offset(),
		Speed:    c.loop.Speed(),
	}
}

// Loop exposes the wheel for rendering.
func (c *Controller) Loop() *wheel.Loop {
	return c.loop
}

// Close releases every slot's animation handle. A spin in flight is
// abandoned without award.
func (c *Controller) Close() {
	c.loop.Close()
	c.winner = nil
	c.revealed = nil
	c.phase = PhaseIdle
}
