package vp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
)

// FlipCombo is one of the four even-parity axis-flip combinations applied
// to a candidate rotation to disambiguate VP-derived orientation (§4.2).
type FlipCombo struct {
	FlipX, FlipY, FlipZ bool
}

// EvenParityFlips are the only flip combinations that preserve handedness:
// zero flips (identity) or any pair of flips (a 180° rotation).
var EvenParityFlips = []FlipCombo{
	{false, false, false},
	{true, true, false},
	{true, false, true},
	{false, true, true},
}

// ApplyFlip negates the columns of the camera-from-world matrix selected
// by combo, then rebuilds the world-from-camera rotation.
func ApplyFlip(rotation mathkernel.Matrix3, combo FlipCombo) mathkernel.Matrix3 {
	m := rotation.Transpose()
	if combo.FlipX {
		m[0][0], m[1][0], m[2][0] = -m[0][0], -m[1][0], -m[2][0]
	}
	if combo.FlipY {
		m[0][1], m[1][1], m[2][1] = -m[0][1], -m[1][1], -m[2][1]
	}
	if combo.FlipZ {
		m[0][2], m[1][2], m[2][2] = -m[0][2], -m[1][2], -m[2][2]
	}
	return m.Transpose()
}

func projectPoint(position r3.Vector, rotation mathkernel.Matrix3, focal, aspect float64, principal r2.Point, world r3.Vector) (r2.Point, float64) {
	w2c := rotation.Transpose()
	rel := mathkernel.Sub(world, position)
	cam := w2c.MulVec(rel)
	if cam.Z <= mathkernel.SingularEpsilon {
		return r2.Point{}, cam.Z
	}
	invZ := 1 / cam.Z
	u := focal*cam.X*invZ + principal.X
	v := focal*aspect*(-cam.Y*invZ) + principal.Y
	return r2.Point{X: u, Y: v}, cam.Z
}

func pixelDistance(a, b r2.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// rightHandedBonus is the fixed score awarded to a candidate whose
// locked-axis sign tests pass (§4.2).
const rightHandedBonus = 300000.0

// SignResult is the outcome of scoring one flip candidate.
type SignResult struct {
	Rotation        mathkernel.Matrix3
	Position        r3.Vector
	Score           float64
	MeanReprojError float64
	PointsInFront   int
}

// AxisAnchorFeature is a feature with a locked coordinate on one axis,
// used for the ±10 sign-consistency test.
type AxisAnchorFeature struct {
	Pixel         r2.Point
	LockedValue   float64 // the locked coordinate, sign only matters
	OtherAxesZero r3.Vector
}

// Disambiguate scores every even-parity flip of rotation and returns the
// winner (§4.2). reprojCorr is the set of fully-constrained feature
// correspondences accumulated into total reprojection error;
// xAnchor/zAnchor (either may be nil) drive the ±10 sign test feeding the
// right-handed bonus. Returns ok=false if the winner's mean reprojection
// error exceeds 100px.
func Disambiguate(
	rotation mathkernel.Matrix3,
	focal, aspect float64,
	principal r2.Point,
	posCorr []Correspondence,
	reprojCorr []Correspondence,
	xAnchor, zAnchor *AxisAnchorFeature,
) (SignResult, bool) {
	var best SignResult
	haveBest := false

	for _, combo := range EvenParityFlips {
		candidateRotation := ApplyFlip(rotation, combo)
		position, ok := EstimatePosition(candidateRotation, focal, principal, posCorr)
		if !ok {
			continue
		}
		position = RefinePosition(position, candidateRotation, focal, aspect, principal, posCorr)

		pointsInFront := 0
		var totalError float64
		for _, c := range reprojCorr {
			pred, camZ := projectPoint(position, candidateRotation, focal, aspect, principal, c.WorldPoint)
			if camZ > 0 {
				pointsInFront++
			}
			totalError += pixelDistance(pred, c.Pixel)
		}

		bonus := 0.0
		passes := true
		if xAnchor != nil {
			sign := 1.0
			if xAnchor.LockedValue < 0 {
				sign = -1.0
			}
			posPt := r3.Vector{X: 10 * sign, Y: xAnchor.OtherAxesZero.Y, Z: xAnchor.OtherAxesZero.Z}
			negPt := r3.Vector{X: -10 * sign, Y: xAnchor.OtherAxesZero.Y, Z: xAnchor.OtherAxesZero.Z}
			predPos, _ := projectPoint(position, candidateRotation, focal, aspect, principal, posPt)
			predNeg, _ := projectPoint(position, candidateRotation, focal, aspect, principal, negPt)
			if pixelDistance(predPos, xAnchor.Pixel) >= pixelDistance(predNeg, xAnchor.Pixel) {
				passes = false
			}
		}
		if zAnchor != nil {
			sign := 1.0
			if zAnchor.LockedValue < 0 {
				sign = -1.0
			}
			posPt := r3.Vector{X: zAnchor.OtherAxesZero.X, Y: zAnchor.OtherAxesZero.Y, Z: 10 * sign}
			negPt := r3.Vector{X: zAnchor.OtherAxesZero.X, Y: zAnchor.OtherAxesZero.Y, Z: -10 * sign}
			predPos, _ := projectPoint(position, candidateRotation, focal, aspect, principal, posPt)
			predNeg, _ := projectPoint(position, candidateRotation, focal, aspect, principal, negPt)
			if pixelDistance(predPos, zAnchor.Pixel) >= pixelDistance(predNeg, zAnchor.Pixel) {
				passes = false
			}
		}
		if passes {
			bonus = rightHandedBonus
		}

		score := float64(pointsInFront)*1e6 + bonus - totalError
		meanErr := 0.0
		if len(reprojCorr) > 0 {
			meanErr = totalError / float64(len(reprojCorr))
		}

		if !haveBest || score > best.Score {
			best = SignResult{
				Rotation:        candidateRotation,
				Position:        position,
				Score:           score,
				MeanReprojError: meanErr,
				PointsInFront:   pointsInFront,
			}
			haveBest = true
		}
	}

	if !haveBest || best.MeanReprojError > 100 {
		return SignResult{}, false
	}
	return best, true
}
