// Package vp implements vanishing-point detection, focal-length and
// principal-point estimation, and the derivation of candidate camera
// rotations and positions from those vanishing points (spec §4.2).
package vp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/randx"
	"gonum.org/v1/gonum/mat"
)

// MaxVPDistancePx is the distance from the image origin beyond which a
// vanishing point is rejected as unstable (near-parallel source lines).
const MaxVPDistancePx = 50000.0

// homogeneousLine returns the homogeneous line coefficients (a,b,c) for
// the line through a and b, such that a*x + b*y + c*w = 0.
func homogeneousLine(a, b r2.Point) [3]float64 {
	ah := [3]float64{a.X, a.Y, 1}
	bh := [3]float64{b.X, b.Y, 1}
	return [3]float64{
		ah[1]*bh[2] - ah[2]*bh[1],
		ah[2]*bh[0] - ah[0]*bh[2],
		ah[0]*bh[1] - ah[1]*bh[0],
	}
}

// Detect computes the vanishing point for a set of 2D lines sharing a
// world-axis direction. Two lines use a direct cross product; three or
// more use the null space (smallest-eigenvalue eigenvector of LᵀL) of
// the stacked line-equation matrix, found by inverse power iteration.
// Returns ok=false for fewer than two lines or a degenerate (near-zero
// homogeneous w) result.
func Detect(lines []model.VanishingLine, src *randx.Source) (r2.Point, bool) {
	if len(lines) < 2 {
		return r2.Point{}, false
	}
	if len(lines) == 2 {
		l1 := homogeneousLine(lines[0].A, lines[0].B)
		l2 := homogeneousLine(lines[1].A, lines[1].B)
		v := [3]float64{
			l1[1]*l2[2] - l1[2]*l2[1],
			l1[2]*l2[0] - l1[0]*l2[2],
			l1[0]*l2[1] - l1[1]*l2[0],
		}
		return homogeneousToPoint(v)
	}

	n := len(lines)
	lmat := mat.NewDense(n, 3, nil)
	for i, ln := range lines {
		coeffs := homogeneousLine(ln.A, ln.B)
		lmat.SetRow(i, coeffs[:])
	}
	var ata mat.Dense
	ata.Mul(lmat.T(), lmat)
	sym := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sym.SetSym(i, j, ata.At(i, j))
		}
	}
	vec, ok := mathkernel.InversePowerIteration(sym, 200, src)
	if !ok {
		return r2.Point{}, false
	}
	return homogeneousToPoint([3]float64{vec[0], vec[1], vec[2]})
}

func homogeneousToPoint(v [3]float64) (r2.Point, bool) {
	if math.Abs(v[2]) < mathkernel.SingularEpsilon {
		return r2.Point{}, false
	}
	return r2.Point{X: v[0] / v[2], Y: v[1] / v[2]}, true
}

// Validate rejects a vanishing point farther than MaxVPDistancePx from the
// image origin (nearly parallel source lines produce unstable VPs).
func Validate(vp r2.Point) bool {
	return math.Hypot(vp.X, vp.Y) <= MaxVPDistancePx
}

// AngleBetweenVPs returns the angle in degrees between two vanishing
// points as seen from the principal point, used to warn (not reject, per
// §4.2) when accepted VPs are not close to orthogonal.
func AngleBetweenVPs(vp1, vp2, principal r2.Point) float64 {
	d1 := r2.Point{X: vp1.X - principal.X, Y: vp1.Y - principal.Y}
	d2 := r2.Point{X: vp2.X - principal.X, Y: vp2.Y - principal.Y}
	dot := d1.X*d2.X + d1.Y*d2.Y
	n1 := math.Hypot(d1.X, d1.Y)
	n2 := math.Hypot(d2.X, d2.Y)
	if n1 < mathkernel.SingularEpsilon || n2 < mathkernel.SingularEpsilon {
		return 90
	}
	cos := dot / (n1 * n2)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// IsNearOrthogonal reports whether the angle between two VPs lies in the
// accepted [85, 95] degree band.
func IsNearOrthogonal(vp1, vp2, principal r2.Point) bool {
	angle := AngleBetweenVPs(vp1, vp2, principal)
	return angle >= 85 && angle <= 95
}
