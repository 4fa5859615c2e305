// Package mathkernel implements the numerical primitives shared by every
// optimization stage (spec.md §4.1): vector/matrix algebra, 3x3 SVD via a
// symmetric eigendecomposition of A^T*A, power and inverse-power
// iteration for eigenvectors, quaternion<->rotation-matrix
// conversion (Shepperd's trace-based branch), and Rodrigues' rotation.
//
// Every routine that can be singular returns a boolean ok flag instead of
// dividing by zero silently (determinant below 1e-10, norm below 1e-10).
package mathkernel

import (
	"math"

	"github.com/golang/geo/r3"
)

// SingularEpsilon is the threshold below which a determinant or norm is
// treated as singular/degenerate throughout the math kernel.
const SingularEpsilon = 1e-10

// Dot returns the dot product of two vectors.
func Dot(a, b r3.Vector) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

// Cross returns the cross product a x b.
func Cross(a, b r3.Vector) r3.Vector {
	return r3.Vector{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

// Norm returns the Euclidean length of v.
func Norm(v r3.Vector) float64 { return math.Sqrt(Dot(v, v)) }

// Normalize returns v scaled to unit length, and false if v is singular.
func Normalize(v r3.Vector) (r3.Vector, bool) {
	n := Norm(v)
	if n < SingularEpsilon {
		return r3.Vector{}, false
	}
	return Scale(v, 1/n), true
}

// Scale returns v scaled by s.
func Scale(v r3.Vector, s float64) r3.Vector {
	return r3.Vector{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Add returns a + b.
func Add(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// Sub returns a - b.
func Sub(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}
