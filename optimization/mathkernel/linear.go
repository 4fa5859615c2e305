package mathkernel

import (
	"math"

	"github.com/golang/geo/r3"
)

// GaussianSolve solves the square linear system a*x = b by Gaussian
// elimination with partial pivoting (§4.1's general solver, used where the
// system size isn't known to be 3x3 ahead of time, e.g. ragged constraint
// propagation systems). a is consumed row-major and not mutated; b is left
// untouched. Returns ok=false if a is singular to within SingularEpsilon.
func GaussianSolve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range a {
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		aug[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > best {
				pivot, best = r, v
			}
		}
		if best < SingularEpsilon {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for r := col + 1; r < n; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := aug[row][n]
		for c := row + 1; c < n; c++ {
			sum -= aug[row][c] * x[c]
		}
		x[row] = sum / aug[row][row]
	}
	return x, true
}

// Rodrigues returns the rotation matrix that rotates angle radians about
// the unit axis, used by the scene-alignment stage to build the rotation
// that carries one basis onto another (§4.7).
func Rodrigues(axis r3.Vector, angle float64) Matrix3 {
	unit, ok := Normalize(axis)
	if !ok {
		return Identity3()
	}
	s, c := math.Sin(angle), math.Cos(angle)
	t := 1 - c
	x, y, z := unit.X, unit.Y, unit.Z
	return Matrix3{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	}
}

// RodriguesBetween returns the rotation matrix that rotates unit vector
// from onto unit vector to, used when aligning a measured axis direction
// with its target direction.
func RodriguesBetween(from, to r3.Vector) Matrix3 {
	fromU, ok1 := Normalize(from)
	toU, ok2 := Normalize(to)
	if !ok1 || !ok2 {
		return Identity3()
	}
	axis := Cross(fromU, toU)
	sinAngle := Norm(axis)
	cosAngle := Dot(fromU, toU)
	if sinAngle < SingularEpsilon {
		if cosAngle > 0 {
			return Identity3()
		}
		// 180 degree rotation: pick any axis perpendicular to fromU.
		perp := Cross(fromU, r3.Vector{X: 1, Y: 0, Z: 0})
		if Norm(perp) < SingularEpsilon {
			perp = Cross(fromU, r3.Vector{X: 0, Y: 1, Z: 0})
		}
		return Rodrigues(perp, math.Pi)
	}
	angle := math.Atan2(sinAngle, cosAngle)
	return Rodrigues(axis, angle)
}
