package hostapp

import (
	"sync"

	"github.com/dshills/patchwork/internal/patcher/host"
)

// ZoomClass identifies the pinch-zoom controller.
const ZoomClass = "b.f.l.b.c"

// Limit flags passed to the scale limiter.
const (
	LimitTranslateX = 1 << iota
	LimitTranslateY
	LimitScale

	LimitAll = LimitTranslateX | LimitTranslateY | LimitScale
)

// Matrix is the affine transform applied to the displayed image.
type Matrix struct {
	ScaleX, ScaleY float32
	TransX, TransY float32
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{ScaleX: 1, ScaleY: 1}
}

// PostScale scales the transform around the pivot (px, py).
func (m *Matrix) PostScale(s, px, py float32) {
	m.ScaleX *= s
	m.ScaleY *= s
	m.TransX = s*(m.TransX-px) + px
	m.TransY = s*(m.TransY-py) + py
}

// ZoomController applies pinch gestures to a Matrix, rejecting steps the
// scale limiter refuses.
type ZoomController struct {
	mu     sync.Mutex
	matrix Matrix

	minScale float32
	maxScale float32

	class *host.Class
	limit *host.CallSite
}

func newZoomController(minScale, maxScale float32) *ZoomController {
	z := &ZoomController{
		matrix:   Identity(),
		minScale: minScale,
		maxScale: maxScale,
	}
	z.class = host.NewClass(ZoomClass).
		Declare("a", z.reset).
		Declare("e", z.limitTranslation).
		Declare("f", z.limitScale).
		Declare("g", z.isIdentity).
		MustBuild()
	z.limit = z.class.Method("f").Site
	return z
}

// Class returns the controller's declared class.
func (z *ZoomController) Class() *host.Class {
	return z.class
}

// Matrix returns a copy of the current transform.
func (z *ZoomController) Matrix() Matrix {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.matrix
}

// Reset restores the identity transform.
func (z *ZoomController) Reset() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.reset()
}

// ZoomBy applies a pinch step of factor scale around (focusX, focusY).
// It reports whether the step was applied.
func (z *ZoomController) ZoomBy(scale, focusX, focusY float32) (bool, error) {
	z.mu.Lock()
	m := z.matrix
	z.mu.Unlock()

	res, err := z.limit.Invoke(z, &m, scale, focusX, LimitAll)
	if err != nil {
		return false, err
	}
	limited, err := resultAs[bool]("f", res)
	if err != nil {
		return false, err
	}
	if limited {
		return false, nil
	}

	z.mu.Lock()
	z.matrix.PostScale(scale, focusX, focusY)
	z.mu.Unlock()
	return true, nil
}

func (z *ZoomController) reset() {
	z.matrix = Identity()
}

// limitScale reports whether applying scale to m would leave the
// controller's allowed range.
func (z *ZoomController) limitScale(m *Matrix, scale, focusX float32, flags int) bool {
	if flags&LimitScale == 0 || m == nil {
		return false
	}
	next := m.ScaleX * scale
	return next > z.maxScale || next < z.minScale
}

func (z *ZoomController) limitTranslation(m *Matrix, flags int) bool {
	if m == nil || flags&(LimitTranslateX|LimitTranslateY) == 0 {
		return false
	}
	return m.TransX > 0 || m.TransY > 0
}

func (z *ZoomController) isIdentity(m *Matrix) bool {
	return m != nil && *m == Identity()
}
