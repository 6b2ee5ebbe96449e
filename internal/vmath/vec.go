// Package vmath holds the float32 vector and matrix types shared with foreign memory.
// Layouts match the foreign representation (packed little-endian float32).
package vmath

import "math"

// Vec2 is a 2D point, used for screen coordinates.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

func V3(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// Splat returns a vector with all components set to s.
func Splat(s float32) Vec3 {
	return Vec3{s, s, s}
}

func V3Add(a, b Vec3) Vec3 {
	return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func V3Sub(a, b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func V3Scale(v Vec3, s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func V3Dot(a, b Vec3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func V3MagSq(v Vec3) float32 {
	return V3Dot(v, v)
}

func V3Mag(v Vec3) float32 {
	return float32(math.Sqrt(float64(V3MagSq(v))))
}

// V3Distance returns the Euclidean distance between a and b.
func V3Distance(a, b Vec3) float32 {
	return V3Mag(V3Sub(a, b))
}

// V2Distance returns the Euclidean distance between a and b.
func V2Distance(a, b Vec2) float32 {
	dx, dy := float64(a.X-b.X), float64(a.Y-b.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}
