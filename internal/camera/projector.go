package camera

import (
	"math"
	"sync"

	"github.com/udisondev/memsync/internal/vmath"
)

const (
	// NearPlane is the minimum w accepted; anything below is behind or at the camera.
	NearPlane = 0.098

	// DefaultMargin keeps near-edge targets alive past the visible boundary.
	DefaultMargin = 800

	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Viewport is the output surface size in pixels.
type Viewport struct {
	Width  int
	Height int
}

// Center returns the viewport centre.
func (v Viewport) Center() vmath.Vec2 {
	return vmath.Vec2{X: float32(v.Width) / 2, Y: float32(v.Height) / 2}
}

// ProjectOptions controls the optional on-screen test.
type ProjectOptions struct {
	BoundsCheck bool
	Margin      float32 // expands the viewport in all four directions
}

// Projector owns the current view transform and viewport.
// Update replaces the transform atomically; Project never observes a mix of
// old and new parameters.
type Projector struct {
	mu       sync.RWMutex
	view     ViewTransform
	hasView  bool
	viewport Viewport
}

// NewProjector creates a projector. A non-positive size falls back to 1920x1080.
func NewProjector(vp Viewport) *Projector {
	p := &Projector{}
	p.SetViewport(vp)
	return p
}

// SetViewport changes the output surface size.
func (p *Projector) SetViewport(vp Viewport) {
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = Viewport{Width: DefaultWidth, Height: DefaultHeight}
	}
	p.mu.Lock()
	p.viewport = vp
	p.mu.Unlock()
}

// Viewport returns the current output surface size.
func (p *Projector) Viewport() Viewport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewport
}

// Update replaces all projection parameters at once.
func (p *Projector) Update(v ViewTransform) {
	p.mu.Lock()
	p.view = v
	p.hasView = true
	p.mu.Unlock()
}

// Reset drops the view transform (session boundary). Project fails until the next Update.
func (p *Projector) Reset() {
	p.mu.Lock()
	p.view = ViewTransform{}
	p.hasView = false
	p.mu.Unlock()
}

// View returns the current transform and whether one has been set.
func (p *Projector) View() (ViewTransform, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view, p.hasView
}

// Project converts a world point into a screen point.
// It returns false for points behind the near plane, before the first Update,
// or outside the (margin-expanded) viewport when bounds checking is requested.
func (p *Projector) Project(world vmath.Vec3, opts ProjectOptions) (vmath.Vec2, bool) {
	p.mu.RLock()
	view, ok, vp := p.view, p.hasView, p.viewport
	p.mu.RUnlock()
	if !ok {
		return vmath.Vec2{}, false
	}
	return project(view, vp, world, opts)
}

func project(v ViewTransform, vp Viewport, world vmath.Vec3, opts ProjectOptions) (vmath.Vec2, bool) {
	w := vmath.V3Dot(v.Forward, world) + v.M44
	if w < NearPlane {
		return vmath.Vec2{}, false
	}

	x := vmath.V3Dot(v.Right, world) + v.TX
	y := vmath.V3Dot(v.Up, world) + v.TY

	if v.Scoped {
		if v.FOV <= 0 || v.Aspect <= 0 {
			return vmath.Vec2{}, false
		}
		half := float64(v.FOV) * math.Pi / 180 * 0.5
		ctg := float32(math.Cos(half) / math.Sin(half))
		x /= ctg * v.Aspect * 0.5
		y /= ctg * 0.5
	}

	c := vp.Center()
	scr := vmath.Vec2{
		X: c.X * (1 + x/w),
		Y: c.Y * (1 - y/w),
	}

	if opts.BoundsCheck {
		m := opts.Margin
		if scr.X < -m || scr.X > float32(vp.Width)+m || scr.Y < -m || scr.Y > float32(vp.Height)+m {
			return vmath.Vec2{}, false
		}
	}
	return scr, true
}

// FovMagnitude returns the screen distance between point and the viewport centre.
func (p *Projector) FovMagnitude(point vmath.Vec2) float32 {
	return vmath.V2Distance(p.Viewport().Center(), point)
}

// Snapshot is a diagnostic copy of the projector state.
type Snapshot struct {
	View     ViewTransform
	HasView  bool
	Viewport Viewport
}

// Snapshot returns the current state.
func (p *Projector) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{View: p.view, HasView: p.hasView, Viewport: p.viewport}
}
