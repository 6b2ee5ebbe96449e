package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/mem"
)

const (
	maxListedCameras = 100
	maxCameraName    = 64
	listItemSize     = 8
	listCountOffset  = 0x8
)

// CameraList locates the engine's list of every camera. The list object
// holds the items pointer at +0x0 and an int32 count at +0x8; each item is a
// camera object pointer.
type CameraList struct {
	Base     mem.Address
	Path     chain.Path // base → list object
	NamePath chain.Path // camera object → name string
}

// Configured reports whether the list has a base address.
func (l CameraList) Configured() bool {
	return l.Base != 0
}

// Found holds the cameras picked out of the list. Zero means not found.
type Found struct {
	FPS   mem.Address
	Optic mem.Address
}

// IsFPSCamera reports whether a camera name denotes the first-person camera.
func IsFPSCamera(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "fps") && strings.Contains(n, "camera")
}

// IsOpticCamera reports whether a camera name denotes the scope camera.
func IsOpticCamera(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "optic") && strings.Contains(n, "camera")
}

// DiscoverCameras scans at most 100 list entries by name. Unreadable
// entries are skipped. It fails when no FPS camera is listed.
func DiscoverCameras(ctx context.Context, acc *mem.Accessor, list CameraList) (Found, error) {
	res, err := chain.Walk(ctx, acc, list.Base, []chain.Path{list.Path})
	if err != nil {
		return Found{}, fmt.Errorf("locating camera list: %w", err)
	}
	obj := res.Terminal(0)

	items, err := acc.ReadPointer(ctx, obj, false)
	if err != nil {
		return Found{}, fmt.Errorf("reading camera list items: %w", err)
	}
	if !mem.IsValid(items) {
		return Found{}, fmt.Errorf("%w: camera list items %s: %w", mem.ErrChainResolution, items, mem.ErrInvalidAddress)
	}
	count, err := mem.Read[int32](ctx, acc, obj.Add(listCountOffset), false)
	if err != nil {
		return Found{}, fmt.Errorf("reading camera count: %w", err)
	}
	n := min(int(count), maxListedCameras)

	var found Found
	for i := 0; i < n && (found.FPS == 0 || found.Optic == 0); i++ {
		cam, err := acc.ReadPointer(ctx, items.Add(uint64(i)*listItemSize), false)
		if err != nil || !mem.IsValid(cam) {
			continue
		}
		name, err := readCameraName(ctx, acc, cam, list.NamePath)
		if err != nil {
			slog.Debug("camera name unreadable", "index", i, "camera", cam, "error", err)
			continue
		}
		if IsFPSCamera(name) {
			found.FPS = cam
		}
		if IsOpticCamera(name) {
			found.Optic = cam
		}
	}

	if found.FPS == 0 {
		return found, fmt.Errorf("%w: no FPS camera among %d listed", mem.ErrChainResolution, n)
	}
	slog.Debug("cameras discovered", "fps", found.FPS, "optic", found.Optic, "scanned", n)
	return found, nil
}

func readCameraName(ctx context.Context, acc *mem.Accessor, cam mem.Address, namePath chain.Path) (string, error) {
	res, err := chain.Walk(ctx, acc, cam, []chain.Path{namePath})
	if err != nil {
		return "", err
	}
	buf := make([]byte, maxCameraName)
	if err := acc.ReadRaw(ctx, res.Terminal(0), buf, false); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	if len(buf) < 3 {
		return "", fmt.Errorf("camera name %q too short", buf)
	}
	return string(buf), nil
}

// discovery caches one scan of the camera list until invalidated.
type discovery struct {
	acc  *mem.Accessor
	list CameraList

	mu    sync.Mutex
	found Found
	valid bool
	scans int
}

func (d *discovery) get(ctx context.Context) (Found, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.valid {
		return d.found, false, nil
	}
	d.scans++
	found, err := DiscoverCameras(ctx, d.acc, d.list)
	if err != nil {
		return Found{}, false, err
	}
	d.found, d.valid = found, true
	return found, true, nil
}

func (d *discovery) invalidate() {
	d.mu.Lock()
	d.valid = false
	d.mu.Unlock()
}

func (d *discovery) scanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}

// objectLocator finds a camera object.
type objectLocator interface {
	locate(ctx context.Context) (obj mem.Address, fresh bool, err error)
	invalidate()
	reset()
}

// chainLocator walks a fixed pointer path from a base.
type chainLocator struct {
	cache *chain.Cache
	base  mem.Address
}

func (l chainLocator) locate(ctx context.Context) (mem.Address, bool, error) {
	walks := l.cache.Walks()
	res, err := l.cache.Resolve(ctx, l.base)
	if err != nil {
		return 0, false, err
	}
	return res.Terminal(0), l.cache.Walks() != walks, nil
}

func (l chainLocator) invalidate() { l.cache.Invalidate() }
func (l chainLocator) reset()      { l.cache.Reset() }

// listedLocator picks one camera out of a shared discovery.
type listedLocator struct {
	d     *discovery
	optic bool
}

func (l listedLocator) locate(ctx context.Context) (mem.Address, bool, error) {
	found, fresh, err := l.d.get(ctx)
	if err != nil {
		return 0, false, err
	}
	obj, what := found.FPS, "FPS"
	if l.optic {
		obj, what = found.Optic, "optic"
	}
	if obj == 0 {
		return 0, false, fmt.Errorf("%w: %s camera not listed", mem.ErrChainResolution, what)
	}
	return obj, fresh, nil
}

func (l listedLocator) invalidate() { l.d.invalidate() }
func (l listedLocator) reset()      { l.d.invalidate() }
