package vp

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
)

// Correspondence pairs a known world point with its pixel observation,
// used to back-project rays and refine the camera position.
type Correspondence struct {
	WorldPoint r3.Vector
	Pixel      r2.Point
}

// cameraRayDirection returns the unit world-space direction from the
// camera towards a pixel, given the world-from-camera rotation.
func cameraRayDirection(rotation mathkernel.Matrix3, focal float64, principal r2.Point, pixel r2.Point) (r3.Vector, bool) {
	camDir := r3.Vector{X: (pixel.X - principal.X) / focal, Y: -(pixel.Y - principal.Y) / focal, Z: 1}
	unit, ok := mathkernel.Normalize(camDir)
	if !ok {
		return r3.Vector{}, false
	}
	return rotation.MulVec(unit), true
}

// defaultSingleRayDistance is the distance along the ray at which the
// camera is placed when only one correspondence is available, chosen to
// sit comfortably in front of a typical scene rather than coincident
// with the point.
const defaultSingleRayDistance = 10.0

// EstimatePosition computes the camera position minimizing the sum of
// squared perpendicular distances to the back-projected rays through
// known world points (§4.2): with one correspondence it places the
// camera on the ray at a default distance, with ≥2 it solves the 3x3
// closed-form system Σ(I - rᵢrᵢᵀ)C = Σ(I - rᵢrᵢᵀ)Pᵢ.
func EstimatePosition(rotation mathkernel.Matrix3, focal float64, principal r2.Point, corr []Correspondence) (r3.Vector, bool) {
	if len(corr) == 0 {
		return r3.Vector{}, false
	}
	if len(corr) == 1 {
		dir, ok := cameraRayDirection(rotation, focal, principal, corr[0].Pixel)
		if !ok {
			return r3.Vector{}, false
		}
		return mathkernel.Sub(corr[0].WorldPoint, mathkernel.Scale(dir, defaultSingleRayDistance)), true
	}

	var sumA mathkernel.Matrix3
	var sumB r3.Vector
	identity := mathkernel.Identity3()
	for _, c := range corr {
		r, ok := cameraRayDirection(rotation, focal, principal, c.Pixel)
		if !ok {
			continue
		}
		outer := mathkernel.Matrix3{
			{r.X * r.X, r.X * r.Y, r.X * r.Z},
			{r.Y * r.X, r.Y * r.Y, r.Y * r.Z},
			{r.Z * r.X, r.Z * r.Y, r.Z * r.Z},
		}
		var proj mathkernel.Matrix3
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				proj[i][j] = identity[i][j] - outer[i][j]
			}
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				sumA[i][j] += proj[i][j]
			}
		}
		rhs := proj.MulVec(c.WorldPoint)
		sumB = mathkernel.Add(sumB, rhs)
	}
	return mathkernel.Solve3x3(sumA, sumB)
}

// refineIterations is the fixed small Gauss-Newton iteration count used
// to polish the closed-form position estimate (§4.2, §9 open question):
// the closed-form solve already lands within the basin of convergence
// for this 3-parameter problem, so a fixed small count converges without
// needing an adaptive stopping rule.
const refineIterations = 10

// RefinePosition polishes a camera position estimate by Gauss-Newton
// minimization of reprojection error over the undistorted pinhole model
// (full distortion/intrinsics refinement happens later in the LM solve).
func RefinePosition(position r3.Vector, rotation mathkernel.Matrix3, focal, aspect float64, principal r2.Point, corr []Correspondence) r3.Vector {
	w2c := rotation.Transpose()
	current := position
	for iter := 0; iter < refineIterations; iter++ {
		var jtj mathkernel.Matrix3
		var jtr r3.Vector
		for _, c := range corr {
			rel := mathkernel.Sub(c.WorldPoint, current)
			camPt := w2c.MulVec(rel)
			if camPt.Z <= mathkernel.SingularEpsilon {
				continue
			}
			invZ := 1 / camPt.Z
			predU := focal*camPt.X*invZ + principal.X
			predV := focal*aspect*(-camPt.Y*invZ) + principal.Y
			resU := predU - c.Pixel.X
			resV := predV - c.Pixel.Y

			// d(camPt)/dC = -w2c; chain through the perspective division.
			dxdC := r3.Vector{X: -w2c[0][0], Y: -w2c[0][1], Z: -w2c[0][2]}
			dydC := r3.Vector{X: -w2c[1][0], Y: -w2c[1][1], Z: -w2c[1][2]}
			dzdC := r3.Vector{X: -w2c[2][0], Y: -w2c[2][1], Z: -w2c[2][2]}

			dUdC := mathkernel.Scale(mathkernel.Sub(mathkernel.Scale(dxdC, invZ), mathkernel.Scale(dzdC, camPt.X*invZ*invZ)), focal)
			dVdC := mathkernel.Scale(mathkernel.Sub(mathkernel.Scale(dzdC, camPt.Y*invZ*invZ), mathkernel.Scale(dydC, invZ)), focal*aspect)

			accumulateNormalEquations(&jtj, &jtr, dUdC, resU)
			accumulateNormalEquations(&jtj, &jtr, dVdC, resV)
		}
		delta, ok := mathkernel.Solve3x3(jtj, jtr)
		if !ok {
			break
		}
		current = mathkernel.Sub(current, delta)
	}
	return current
}

func accumulateNormalEquations(jtj *mathkernel.Matrix3, jtr *r3.Vector, row r3.Vector, residual float64) {
	cols := [3]float64{row.X, row.Y, row.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			jtj[i][j] += cols[i] * cols[j]
		}
	}
	jtr.X += row.X * residual
	jtr.Y += row.Y * residual
	jtr.Z += row.Z * residual
}
