package prize

import (
	"math/rand/v2"
	"sync"
)

// Selector draws one prize per call.
type Selector interface {
	Select() Prize
}

// SelectorFunc adapts a plain function to Selector.
type SelectorFunc func() Prize

// Select calls f.
func (f SelectorFunc) Select() Prize { return f() }

// WeightedSelector draws prizes with probability weight/total.
//
// Weights are trusted: zero or negative weights are a caller error and
// their effect on the draw is undefined. The prize list is copied at
// construction and never mutated, so one selector can be shared across
// goroutines.
type WeightedSelector struct {
	prizes []Prize
	total  float64
	float  func() float64
}

// Option configures a WeightedSelector.
type Option func(*WeightedSelector)

// WithSource draws from a seeded generator. The generator is guarded by a
// mutex since *rand.Rand is not safe for concurrent use.
func WithSource(r *rand.Rand) Option {
	var mu sync.Mutex
	return func(s *WeightedSelector) {
		s.float = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return r.Float64()
		}
	}
}

// WithFloat replaces the uniform [0, 1) source.
func WithFloat(fn func() float64) Option {
	return func(s *WeightedSelector) {
		s.float = fn
	}
}

// NewWeightedSelector creates a selector over the prizes of t.
func NewWeightedSelector(t *Table, opts ...Option) *WeightedSelector {
	s := &WeightedSelector{
		prizes: t.All(),
		total:  t.TotalWeight(),
		float:  rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the first prize whose cumulative weight exceeds a uniform
// draw from [0, total). Falls back to the first prize when rounding leaves
// the draw unmatched.
func (s *WeightedSelector) Select() Prize {
	if len(s.prizes) == 0 {
		return nil
	}

	r := s.float() * s.total
	var cum float64
	for _, p := range s.prizes {
		cum += p.Weight()
		if r < cum {
			return p
		}
	}
	return s.prizes[0]
}

// Total returns the weight mass the selector draws from.
func (s *WeightedSelector) Total() float64 {
	return s.total
}
