// Package camera turns the foreign view transform into screen coordinates.
package camera

import (
	"math"

	"github.com/udisondev/memsync/internal/vmath"
)

// ViewTransform is the projection state captured from one scatter round trip.
// The matrix is stored decomposed: x, y and w are each a dot product with one
// column plus a constant term.
type ViewTransform struct {
	Right   vmath.Vec3 // column 1
	Up      vmath.Vec3 // column 2
	Forward vmath.Vec3 // column 4
	TX, TY  float32    // M41, M42
	M44     float32

	FOV    float32 // degrees
	Aspect float32
	Zoom   float32 // kept for diagnostics; magnification is carried by FOV
	Scoped bool
}

// NewViewTransform decomposes a foreign view-projection matrix.
func NewViewTransform(m vmath.Mat4, fov, aspect, zoom float32, scoped bool) ViewTransform {
	return ViewTransform{
		Right:   m.Column(1),
		Up:      m.Column(2),
		Forward: m.Column(4),
		TX:      m.M41,
		TY:      m.M42,
		M44:     m.M44,
		FOV:     fov,
		Aspect:  aspect,
		Zoom:    zoom,
		Scoped:  scoped,
	}
}

// CameraPosition returns the translation terms as a position hint.
func (v ViewTransform) CameraPosition() vmath.Vec3 {
	return vmath.V3(v.TX, v.TY, v.Forward.Z)
}

// PlausibleViewMatrix reports whether m looks like a live view matrix:
// unit-length basis rows and M44 close to 1.
func PlausibleViewMatrix(m vmath.Mat4) bool {
	unit := func(v vmath.Vec3) bool {
		mag := vmath.V3Mag(v)
		return mag > 0.9 && mag < 1.1
	}
	return unit(m.Row(1)) && unit(m.Row(2)) && unit(m.Row(3)) &&
		math.Abs(float64(m.M44)-1) < 0.1
}
