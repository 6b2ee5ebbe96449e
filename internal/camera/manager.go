package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/scatter"
	"github.com/udisondev/memsync/internal/vmath"
)

// Locator finds an object by walking Path from a fixed Base.
type Locator struct {
	Base mem.Address
	Path chain.Path
}

// Configured reports whether the locator has a base address.
func (l Locator) Configured() bool {
	return l.Base != 0
}

// Layout is the foreign camera layout. All offsets are opaque constants.
//
// Cameras are found through List when it is configured, otherwise through
// the FPS and Optic locators.
type Layout struct {
	List  CameraList // list of every camera; optional
	FPS   Locator    // FPS camera object
	Optic Locator    // optic camera object; optional

	MatrixPath chain.Path // camera object → matrix holder
	ViewMatrix uint64     // matrix holder → Mat4
	FOV        uint64     // camera object → float32 degrees
	Aspect     uint64     // camera object → float32
	Zoom       uint64     // camera object → float32

	// The view is scoped only while aiming down sights, with the optic
	// camera active and a sight zoom above 1.
	ADS             Locator // object holding the aiming flag; optional
	ADSOffset       uint64  // → bool
	OpticActive     uint64  // optic camera object → bool; 0 skips the check
	ScopeZoom       Locator // object holding the sight zoom; optional, else the optic camera zoom
	ScopeZoomOffset uint64  // → float32
}

// Configured reports whether the FPS camera can be found.
func (l Layout) Configured() bool {
	return l.List.Configured() || l.FPS.Configured()
}

// camera tracks one located camera and its matrix holder.
type camera struct {
	locate objectLocator // → camera object
	matrix *chain.Cache   // camera object → matrix holder
}

func newCamera(acc *mem.Accessor, loc objectLocator, matrixPath chain.Path) *camera {
	return &camera{locate: loc, matrix: chain.New(acc, matrixPath)}
}

// resolve returns the camera object and matrix holder addresses.
// fresh is true when the camera was located or its matrix walked this call.
func (c *camera) resolve(ctx context.Context) (obj, matrix mem.Address, fresh bool, err error) {
	obj, fresh, err = c.locate.locate(ctx)
	if err != nil {
		return 0, 0, false, fmt.Errorf("locating camera: %w", err)
	}

	walks := c.matrix.Walks()
	mat, err := c.matrix.Resolve(ctx, obj)
	if err != nil {
		c.locate.invalidate()
		return 0, 0, false, fmt.Errorf("resolving camera matrix: %w", err)
	}
	fresh = fresh || c.matrix.Walks() != walks
	return obj, mat.Terminal(0), fresh, nil
}

func (c *camera) invalidate() {
	c.locate.invalidate()
	c.matrix.Invalidate()
}

func (c *camera) reset() {
	c.locate.reset()
	c.matrix.Reset()
}

// Manager feeds the Projector from one scatter batch per frame.
type Manager struct {
	acc    *mem.Accessor
	proj   *Projector
	layout Layout

	list      *discovery
	fps       *camera
	optic     *camera
	ads       *chain.Cache
	scopeZoom *chain.Cache

	verify atomic.Bool // check the next matrix for plausibility

	mu      sync.Mutex
	gen     uint64 // bumped by Reset; completions from older frames are dropped
	updates int64
	dropped int64
}

// NewManager creates a manager that updates proj.
func NewManager(acc *mem.Accessor, proj *Projector, layout Layout) *Manager {
	m := &Manager{
		acc:    acc,
		proj:   proj,
		layout: layout,
	}
	switch {
	case layout.List.Configured():
		m.list = &discovery{acc: acc, list: layout.List}
		m.fps = newCamera(acc, listedLocator{d: m.list}, layout.MatrixPath)
		m.optic = newCamera(acc, listedLocator{d: m.list, optic: true}, layout.MatrixPath)
	default:
		m.fps = newCamera(acc, chainLocator{cache: chain.New(acc, layout.FPS.Path), base: layout.FPS.Base}, layout.MatrixPath)
		if layout.Optic.Configured() {
			m.optic = newCamera(acc, chainLocator{cache: chain.New(acc, layout.Optic.Path), base: layout.Optic.Base}, layout.MatrixPath)
		}
	}
	if layout.ADS.Configured() {
		m.ads = chain.New(acc, layout.ADS.Path)
	}
	if layout.ScopeZoom.Configured() {
		m.scopeZoom = chain.New(acc, layout.ScopeZoom.Path)
	}
	return m
}

// Projector returns the projector this manager feeds.
func (m *Manager) Projector() *Projector {
	return m.proj
}

// frameSlots are the reads of one frame. A negative slot was not prepared.
type frameSlots struct {
	gen                    uint64
	fpsMatrix, opticMatrix scatter.SlotID
	fov, aspect            scatter.SlotID
	fpsZoom, opticZoom     scatter.SlotID
	ads, opticActive       scatter.SlotID
	scopeZoom              scatter.SlotID
}

// PrepareFrame registers this frame's camera reads on b. The completion
// callback replaces the projector parameters only when the whole set was read
// in that round trip.
func (m *Manager) PrepareFrame(ctx context.Context, b *scatter.Batch) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	fpsObj, fpsMatrix, fresh, err := m.fps.resolve(ctx)
	if err != nil {
		return fmt.Errorf("fps camera: %w", err)
	}
	if fresh {
		m.verify.Store(true)
	}

	slots := frameSlots{gen: gen, opticMatrix: -1, opticZoom: -1, ads: -1, opticActive: -1, scopeZoom: -1}
	slots.fpsMatrix = scatter.PrepareRead[vmath.Mat4](b, fpsMatrix.Add(m.layout.ViewMatrix))
	slots.fov = scatter.PrepareRead[float32](b, fpsObj.Add(m.layout.FOV))
	slots.aspect = scatter.PrepareRead[float32](b, fpsObj.Add(m.layout.Aspect))
	slots.fpsZoom = scatter.PrepareRead[float32](b, fpsObj.Add(m.layout.Zoom))

	if m.optic != nil {
		opticObj, opticMatrix, _, err := m.optic.resolve(ctx)
		if err != nil {
			slog.Debug("optic camera unresolved", "error", err)
		} else {
			slots.opticMatrix = scatter.PrepareRead[vmath.Mat4](b, opticMatrix.Add(m.layout.ViewMatrix))
			slots.opticZoom = scatter.PrepareRead[float32](b, opticObj.Add(m.layout.Zoom))
			if m.layout.OpticActive != 0 {
				slots.opticActive = scatter.PrepareRead[bool](b, opticObj.Add(m.layout.OpticActive))
			}
		}
	}

	if m.ads != nil {
		res, err := m.ads.Resolve(ctx, m.layout.ADS.Base)
		if err != nil {
			slog.Debug("aiming flag unresolved", "error", err)
		} else {
			slots.ads = scatter.PrepareRead[bool](b, res.Terminal(0).Add(m.layout.ADSOffset))
		}
	}

	if m.scopeZoom != nil {
		res, err := m.scopeZoom.Resolve(ctx, m.layout.ScopeZoom.Base)
		if err != nil {
			slog.Debug("sight zoom unresolved", "error", err)
		} else {
			slots.scopeZoom = scatter.PrepareRead[float32](b, res.Terminal(0).Add(m.layout.ScopeZoomOffset))
		}
	}

	b.OnComplete(func(r *scatter.Result) { m.complete(r, slots) })
	return nil
}

// scoped derives the scope state from one frame's reads. Any missing or
// failed read means not scoped.
func scoped(r *scatter.Result, s frameSlots) bool {
	if s.ads < 0 || s.opticMatrix < 0 {
		return false
	}
	if ads, ok := scatter.Get[bool](r, s.ads); !ok || !ads {
		return false
	}
	if s.opticActive >= 0 {
		if active, ok := scatter.Get[bool](r, s.opticActive); !ok || !active {
			return false
		}
	}
	zoomSlot := s.scopeZoom
	if zoomSlot < 0 {
		zoomSlot = s.opticZoom
	}
	zoom, ok := scatter.Get[float32](r, zoomSlot)
	return ok && zoom > 1
}

func (m *Manager) complete(r *scatter.Result, s frameSlots) {
	isScoped := scoped(r, s)

	matrixSlot, zoomSlot, cam := s.fpsMatrix, s.fpsZoom, m.fps
	if isScoped {
		matrixSlot, zoomSlot, cam = s.opticMatrix, s.opticZoom, m.optic
	}

	matrix, okM := scatter.Get[vmath.Mat4](r, matrixSlot)
	fov, okF := scatter.Get[float32](r, s.fov)
	aspect, okA := scatter.Get[float32](r, s.aspect)
	zoom, okZ := scatter.Get[float32](r, zoomSlot)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.gen != m.gen {
		m.dropped++
		return
	}
	if !okM {
		cam.invalidate()
	}
	if !okM || !okF || !okA || !okZ {
		m.dropped++
		return
	}

	if m.verify.Swap(false) && !PlausibleViewMatrix(matrix) {
		slog.Debug("view matrix looks implausible", "m44", matrix.M44, "scoped", isScoped)
	}

	m.proj.Update(NewViewTransform(matrix, fov, aspect, zoom, isScoped))
	m.updates++
}

// Stats returns how many frames updated the projector and how many were dropped.
func (m *Manager) Stats() (updates, dropped int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates, m.dropped
}

// Reset forgets every resolved camera and the projection state (session
// boundary). Frames prepared before the reset no longer reach the projector.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.gen++
	m.proj.Reset()
	m.mu.Unlock()

	m.fps.reset()
	if m.optic != nil {
		m.optic.reset()
	}
	if m.ads != nil {
		m.ads.Reset()
	}
	if m.scopeZoom != nil {
		m.scopeZoom.Reset()
	}
}
