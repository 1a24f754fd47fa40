package wheel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-daily-spin/internal/prize"
)

// countingLoader tracks live handles so tests can detect leaks.
type countingLoader struct {
	mu    sync.Mutex
	binds int
	live  int
	fail  bool
}

type countingHandle struct {
	l    *countingLoader
	once sync.Once
}

func (h *countingHandle) Release() {
	h.once.Do(func() {
		h.l.mu.Lock()
		h.l.live--
		h.l.mu.Unlock()
	})
}

func (l *countingLoader) Bind(container, path string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("no such asset")
	}
	l.binds++
	l.live++
	return &countingHandle{l: l}, nil
}

func (l *countingLoader) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

var (
	coin  = prize.CurrencyPrize{Key: "coin1", Amount: 1, Odds: 1}
	heart = prize.CollectiblePrize{Key: "giftHeart", Name: "Heart", Odds: 1, Animation: "assets/giftHeart.json"}
)

// sequence returns prizes from ps in order, cycling.
func sequence(ps ...prize.Prize) prize.Selector {
	i := 0
	return prize.SelectorFunc(func() prize.Prize {
		p := ps[i%len(ps)]
		i++
		return p
	})
}

func TestLayout_AlignedOffset(t *testing.T) {
	l := DefaultLayout()
	off, pos := l.AlignedOffset()
	assert.InDelta(t, 33.0, off, 1e-9)
	assert.Equal(t, 1, pos)
	assert.InDelta(t, l.Center(), l.SlotCenter(pos, off), 1e-9)
}

func TestLayout_FocusScale(t *testing.T) {
	l := DefaultLayout()
	assert.InDelta(t, MaxScale, l.FocusScale(0), 1e-12)
	assert.InDelta(t, MinScale, l.FocusScale(l.Center()), 1e-12)
	assert.InDelta(t, MinScale, l.FocusScale(-10*l.Center()), 1e-12)
	assert.Greater(t, l.FocusScale(20), HighlightScale)
	assert.Less(t, l.FocusScale(100), HighlightScale)
}

func TestLoop_RecyclesAndRerendersWhenIdle(t *testing.T) {
	loader := &countingLoader{}
	loop, err := NewLoop(DefaultLayout(), NewRenderer(loader), sequence(coin), 0)
	require.NoError(t, err)

	head := loop.SlotAt(0)
	loop.Move(loop.Layout().Pitch() + 5)

	assert.Equal(t, 1, loop.Recycled())
	assert.InDelta(t, 5.0, loop.Offset(), 1e-9)
	assert.Same(t, head, loop.SlotAt(loop.Len()-1))
}

func TestLoop_HoldSuppressesRerender(t *testing.T) {
	loop, err := NewLoop(DefaultLayout(), NewRenderer(nil), sequence(coin), 0)
	require.NoError(t, err)

	loop.RenderAt(0, heart)
	loop.Hold(true)
	loop.Move(loop.Layout().Pitch())

	tail := loop.SlotAt(loop.Len() - 1)
	assert.Equal(t, heart.ID(), tail.Prize().ID(), "held loop must keep recycled content")

	loop.Hold(false)
	loop.RenderAt(0, heart)
	loop.Move(loop.Layout().Pitch())
	assert.Equal(t, coin.ID(), loop.SlotAt(loop.Len()-1).Prize().ID())
}

func TestLoop_NegativeMoveRotatesBack(t *testing.T) {
	loop, err := NewLoop(DefaultLayout(), NewRenderer(nil), sequence(coin), 0)
	require.NoError(t, err)

	tail := loop.SlotAt(loop.Len() - 1)
	loop.Move(-1)

	assert.Same(t, tail, loop.SlotAt(0))
	assert.InDelta(t, loop.Layout().Pitch()-1, loop.Offset(), 1e-9)
}

func TestLoop_TickUsesSpeed(t *testing.T) {
	loop, err := NewLoop(DefaultLayout(), NewRenderer(nil), sequence(coin), 60)
	require.NoError(t, err)

	loop.Tick(500 * time.Millisecond)
	assert.InDelta(t, 30.0, loop.Offset(), 1e-9)
}

func TestLoop_ExactlyOneHighlightWhenAligned(t *testing.T) {
	loop, err := NewLoop(DefaultLayout(), NewRenderer(nil), sequence(coin), 0)
	require.NoError(t, err)

	off, pos := loop.Layout().AlignedOffset()
	loop.Move(off)

	count := 0
	for i := 0; i < loop.Len(); i++ {
		if loop.SlotAt(i).Highlighted() {
			count++
			assert.Equal(t, pos, i)
		}
	}
	assert.Equal(t, 1, count)

	near, d, ok := loop.Nearest()
	require.True(t, ok)
	assert.Equal(t, pos, near)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestLoop_ZeroSlots(t *testing.T) {
	layout := DefaultLayout()
	layout.Slots = 0
	loop, err := NewLoop(layout, NewRenderer(nil), sequence(coin), 60)
	require.NoError(t, err)

	loop.Tick(10 * time.Second)
	_, _, ok := loop.Nearest()
	assert.False(t, ok)
	assert.Empty(t, loop.Frame().Slots)
}

func TestLoop_BadLayout(t *testing.T) {
	_, err := NewLoop(Layout{CellWidth: 0, ContainerWidth: 10}, NewRenderer(nil), sequence(coin), 0)
	assert.ErrorIs(t, err, ErrBadLayout)
}

func TestLayout_ValidateNeedsCentredSlot(t *testing.T) {
	l := DefaultLayout()
	_, pos := l.AlignedOffset()
	require.Equal(t, 1, pos)

	l.Slots = pos
	assert.ErrorIs(t, l.Validate(), ErrBadLayout)
	_, err := NewLoop(l, NewRenderer(nil), sequence(coin), 60)
	assert.ErrorIs(t, err, ErrBadLayout)

	l.Slots = pos + 1
	require.NoError(t, l.Validate())
	loop, err := NewLoop(l, NewRenderer(nil), sequence(coin), 0)
	require.NoError(t, err)
	off, _ := l.AlignedOffset()
	loop.Move(off)
	near, d, ok := loop.Nearest()
	require.True(t, ok)
	assert.Equal(t, pos, near)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestRenderer_FailedBindRendersStatic(t *testing.T) {
	loader := &countingLoader{fail: true}
	r := NewRenderer(loader)
	s := newSlot(0)

	r.Render(s, heart)
	assert.Equal(t, heart.ID(), s.Prize().ID())
	assert.False(t, s.Animated())
}

func TestFrame_ReportsSlots(t *testing.T) {
	loader := &countingLoader{}
	loop, err := NewLoop(DefaultLayout(), NewRenderer(loader), sequence(heart, coin), 0)
	require.NoError(t, err)

	f := loop.Frame()
	require.Len(t, f.Slots, 9)
	assert.Equal(t, "giftHeart", f.Slots[0].PrizeID)
	assert.True(t, f.Slots[0].Animated)
	assert.Equal(t, "collectible", f.Slots[0].Kind)
	assert.Equal(t, "1", f.Slots[1].Label)
	assert.False(t, f.Slots[1].Animated)
}

// TestHandleLifecycleProperty checks that any mix of idle scrolling and
// repopulation keeps exactly one live handle per animated slot, and that
// Close releases them all.
func TestHandleLifecycleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		loader := &countingLoader{}
		loop, err := NewLoop(DefaultLayout(), NewRenderer(loader), sequence(heart, coin, heart), 200)
		if err != nil {
			t.Fatal(err)
		}

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				loop.Tick(time.Duration(rapid.IntRange(1, 500).Draw(t, "ms")) * time.Millisecond)
			case 1:
				loop.Repopulate()
			case 2:
				loop.Hold(!loop.Held())
			case 3:
				loop.RenderAt(rapid.IntRange(0, loop.Len()-1).Draw(t, "pos"), heart)
			}

			animated := 0
			for j := 0; j < loop.Len(); j++ {
				if loop.SlotAt(j).Animated() {
					animated++
				}
			}
			if loader.Live() != animated {
				t.Fatalf("live handles %d, animated slots %d", loader.Live(), animated)
			}
		}

		loop.Close()
		if loader.Live() != 0 {
			t.Fatalf("leaked %d handles after close", loader.Live())
		}
	})
}
