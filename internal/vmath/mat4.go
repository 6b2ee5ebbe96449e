package vmath

// Mat4 is a row-major 4x4 float32 matrix (M<row><col>), laid out as in foreign memory.
type Mat4 struct {
	M11, M12, M13, M14 float32
	M21, M22, M23, M24 float32
	M31, M32, M33, M34 float32
	M41, M42, M43, M44 float32
}

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{M11: 1, M22: 1, M33: 1, M44: 1}
}

// Column returns the first three components of column c (1-based).
func (m Mat4) Column(c int) Vec3 {
	switch c {
	case 1:
		return Vec3{m.M11, m.M21, m.M31}
	case 2:
		return Vec3{m.M12, m.M22, m.M32}
	case 3:
		return Vec3{m.M13, m.M23, m.M33}
	default:
		return Vec3{m.M14, m.M24, m.M34}
	}
}

// Row returns the first three components of row r (1-based).
func (m Mat4) Row(r int) Vec3 {
	switch r {
	case 1:
		return Vec3{m.M11, m.M12, m.M13}
	case 2:
		return Vec3{m.M21, m.M22, m.M23}
	case 3:
		return Vec3{m.M31, m.M32, m.M33}
	default:
		return Vec3{m.M41, m.M42, m.M43}
	}
}
