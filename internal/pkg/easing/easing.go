// Package easing provides progress curves for wheel motion and counters.
// Every function takes a progress value t in [0, 1] and returns the eased
// value in [0, 1].
package easing

import "math"

// Clamp01 limits t to [0, 1].
func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Progress returns elapsed/total clamped to [0, 1]. A non-positive total
// counts as finished.
func Progress(elapsed, total float64) float64 {
	if total <= 0 {
		return 1
	}
	return Clamp01(elapsed / total)
}

// Linear returns t unchanged.
func Linear(t float64) float64 {
	return t
}

// OutCubic starts fast and settles slowly.
// f(t) = 1 - (1-t)^3
func OutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// OutQuart is f(t) = 1 - (1-t)^4.
func OutQuart(t float64) float64 {
	return 1 - math.Pow(1-t, 4)
}

// OutQuint is f(t) = 1 - (1-t)^5. Its derivative is 5(1-t)^4, so a
// position driven by OutQuint moves at a speed that falls off as (1-t)^4.
func OutQuint(t float64) float64 {
	return 1 - math.Pow(1-t, 5)
}

// QuarticSpeed is the normalized speed curve (1-t)^4.
func QuarticSpeed(t float64) float64 {
	return math.Pow(1-Clamp01(t), 4)
}
