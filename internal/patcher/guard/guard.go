// Package guard decides whether an image transform would exceed a memory
// ceiling.
//
// The decision runs inline on render and zoom-gesture paths, so it is O(1),
// allocation-free, and never panics past its own boundary: any failure in the
// primary canvas estimate is resolved by a coarser scale-factor heuristic.
package guard

import (
	"math"
)

// Decision reasons. They are constants so a Decision never allocates.
const (
	ReasonWithinLimit    = "canvas estimate within limit"
	ReasonCanvasTooLarge = "canvas estimate exceeds limit"
	ReasonFallbackBlock  = "estimate failed; scale above fallback threshold"
	ReasonFallbackAllow  = "estimate failed; scale within fallback threshold"
)

// Limits are the constants of the canvas estimate.
type Limits struct {
	// BaseWidth and BaseHeight are the unscaled canvas dimensions in pixels.
	BaseWidth  float64
	BaseHeight float64

	// BytesPerPixel is the pixel size of the decoded canvas.
	BytesPerPixel float64

	// MaxBytes is the ceiling; estimates above it are blocked.
	MaxBytes int64

	// FallbackMaxScale is the largest absolute scale factor the fallback
	// heuristic allows on either axis.
	FallbackMaxScale float64
}

// DefaultLimits returns a 2048x2048 RGBA canvas capped at 150,000,000 bytes,
// with a fallback scale threshold of 10.
func DefaultLimits() Limits {
	return Limits{
		BaseWidth:        2048,
		BaseHeight:       2048,
		BytesPerPixel:    4,
		MaxBytes:         150_000_000,
		FallbackMaxScale: 10,
	}
}

// withDefaults fills unset fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.BaseWidth <= 0 {
		l.BaseWidth = d.BaseWidth
	}
	if l.BaseHeight <= 0 {
		l.BaseHeight = d.BaseHeight
	}
	if l.BytesPerPixel <= 0 {
		l.BytesPerPixel = d.BytesPerPixel
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = d.MaxBytes
	}
	if l.FallbackMaxScale <= 0 {
		l.FallbackMaxScale = d.FallbackMaxScale
	}
	return l
}

// Decision is the outcome of one evaluation. It is recomputed per call.
type Decision struct {
	// Block is true when the transform should be refused.
	Block bool

	// Reason explains the decision for diagnostics.
	Reason string

	// Estimate is the projected canvas size in bytes; zero on fallback.
	Estimate int64

	// Fallback is true when the coarse heuristic decided.
	Fallback bool
}

// estimator computes the projected canvas bytes for the given scale factors.
// ok is false when the value cannot be represented.
type estimator func(l Limits, scaleX, scaleY float64) (bytes int64, ok bool)

// Guard evaluates transforms against a fixed set of limits.
// A Guard is immutable and safe for concurrent use.
type Guard struct {
	limits   Limits
	estimate estimator
}

// New creates a guard. Unset limit fields take their default values.
func New(limits Limits) *Guard {
	return &Guard{
		limits:   limits.withDefaults(),
		estimate: canvasBytes,
	}
}

// Default is a guard with DefaultLimits.
var Default = New(DefaultLimits())

// Limits returns the guard's limits.
func (g *Guard) Limits() Limits {
	return g.limits
}

// ShouldBlock reports whether scaling a canvas currently at
// (currentScaleX, currentScaleY) by requestedScale should be refused.
func (g *Guard) ShouldBlock(currentScaleX, currentScaleY, requestedScale float32) bool {
	return g.Evaluate(currentScaleX, currentScaleY, requestedScale).Block
}

// Evaluate is ShouldBlock with a reason and the estimate attached.
func (g *Guard) Evaluate(currentScaleX, currentScaleY, requestedScale float32) (d Decision) {
	newX := float64(currentScaleX) * float64(requestedScale)
	newY := float64(currentScaleY) * float64(requestedScale)

	defer func() {
		if r := recover(); r != nil {
			d = g.fallback(newX, newY)
		}
	}()

	bytes, ok := g.estimate(g.limits, newX, newY)
	if !ok {
		return g.fallback(newX, newY)
	}
	if bytes > g.limits.MaxBytes {
		return Decision{Block: true, Reason: ReasonCanvasTooLarge, Estimate: bytes}
	}
	return Decision{Reason: ReasonWithinLimit, Estimate: bytes}
}

// fallback blocks when either axis is scaled past FallbackMaxScale.
func (g *Guard) fallback(scaleX, scaleY float64) Decision {
	if math.Abs(scaleX) > g.limits.FallbackMaxScale || math.Abs(scaleY) > g.limits.FallbackMaxScale {
		return Decision{Block: true, Reason: ReasonFallbackBlock, Fallback: true}
	}
	return Decision{Reason: ReasonFallbackAllow, Fallback: true}
}

// maxInt64Float is the smallest float64 that no longer fits in an int64.
const maxInt64Float = float64(math.MaxInt64)

// canvasBytes is width x |scaleX| x height x |scaleY| x bytesPerPixel.
func canvasBytes(l Limits, scaleX, scaleY float64) (int64, bool) {
	v := l.BaseWidth * math.Abs(scaleX) * l.BaseHeight * math.Abs(scaleY) * l.BytesPerPixel
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= maxInt64Float {
		return 0, false
	}
	return int64(v), true
}

// ShouldBlock evaluates against DefaultLimits.
func ShouldBlock(currentScaleX, currentScaleY, requestedScale float32) bool {
	return Default.ShouldBlock(currentScaleX, currentScaleY, requestedScale)
}
