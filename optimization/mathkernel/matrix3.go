package mathkernel

import "github.com/golang/geo/r3"

// Matrix3 is a row-major 3x3 matrix, used for the small, hot linear
// algebra (rotation composition, Cramer solves) that doesn't warrant the
// allocation of a gonum mat.Dense.
type Matrix3 [3][3]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MulVec returns m*v.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns m*n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i][k] * n[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Col returns column c of m as a vector.
func Col(m Matrix3, c int) r3.Vector {
	return r3.Vector{X: m[0][c], Y: m[1][c], Z: m[2][c]}
}

// SetCol writes v into column c of m.
func SetCol(m *Matrix3, c int, v r3.Vector) {
	m[0][c], m[1][c], m[2][c] = v.X, v.Y, v.Z
}

// Transpose returns the transpose of m.
func (m Matrix3) Transpose() Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// Determinant returns det(m).
func (m Matrix3) Determinant() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Invert returns m^-1 and true, or the zero matrix and false if m is singular.
func (m Matrix3) Invert() (Matrix3, bool) {
	det := m.Determinant()
	if det < 0 && -det < SingularEpsilon || det >= 0 && det < SingularEpsilon {
		return Matrix3{}, false
	}
	inv := 1 / det
	var out Matrix3
	out[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv
	out[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv
	out[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv
	out[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv
	out[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv
	out[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv
	out[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv
	out[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv
	out[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv
	return out, true
}

// RowsFromVectors builds a matrix whose rows are a, b, c.
func RowsFromVectors(a, b, c r3.Vector) Matrix3 {
	return Matrix3{
		{a.X, a.Y, a.Z},
		{b.X, b.Y, b.Z},
		{c.X, c.Y, c.Z},
	}
}

// ColsFromVectors builds a matrix whose columns are a, b, c.
func ColsFromVectors(a, b, c r3.Vector) Matrix3 {
	return Matrix3{
		{a.X, b.X, c.X},
		{a.Y, b.Y, c.Y},
		{a.Z, b.Z, c.Z},
	}
}

// Solve3x3 solves m*x = b via Cramer's rule, returning false on a singular m.
func Solve3x3(m Matrix3, b r3.Vector) (r3.Vector, bool) {
	det := m.Determinant()
	if det >= 0 && det < SingularEpsilon || det < 0 && -det < SingularEpsilon {
		return r3.Vector{}, false
	}
	mx := m
	mx[0][0], mx[1][0], mx[2][0] = b.X, b.Y, b.Z
	my := m
	my[0][1], my[1][1], my[2][1] = b.X, b.Y, b.Z
	mz := m
	mz[0][2], mz[1][2], mz[2][2] = b.X, b.Y, b.Z
	return r3.Vector{X: mx.Determinant() / det, Y: my.Determinant() / det, Z: mz.Determinant() / det}, true
}
