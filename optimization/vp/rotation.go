package vp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
)

// nonOrthogonalThreshold is the |cos(angle)| above which an observed axis
// pair is treated as non-orthogonal and orthogonalized three ways.
const nonOrthogonalThreshold = 0.02

func axisCameraDir(vpPixel, principal r2.Point, focal float64) (r3.Vector, bool) {
	d := r3.Vector{X: (vpPixel.X - principal.X) / focal, Y: -(vpPixel.Y - principal.Y) / focal, Z: 1}
	return mathkernel.Normalize(d)
}

// buildRotation assembles the world-from-camera rotation matrix from the
// camera-space directions of the three world axes: the matrix whose
// columns are dx,dy,dz maps world axes to camera space (camera-from-world),
// so the world-from-camera rotation is its transpose.
func buildRotation(dx, dy, dz r3.Vector) mathkernel.Matrix3 {
	cameraFromWorld := mathkernel.ColsFromVectors(dx, dy, dz)
	return cameraFromWorld.Transpose()
}

func missingAxis(present map[model.Axis]bool) model.Axis {
	for _, a := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		if !present[a] {
			return a
		}
	}
	return model.AxisZ
}

// crossForMissing returns the direction for the missing axis via the
// right-handed cyclic cross product X×Y=Z, Y×Z=X, Z×X=Y.
func crossForMissing(missing model.Axis, dirs map[model.Axis]r3.Vector) r3.Vector {
	switch missing {
	case model.AxisZ:
		return mathkernel.Cross(dirs[model.AxisX], dirs[model.AxisY])
	case model.AxisX:
		return mathkernel.Cross(dirs[model.AxisY], dirs[model.AxisZ])
	default:
		return mathkernel.Cross(dirs[model.AxisZ], dirs[model.AxisX])
	}
}

func triple(dirs map[model.Axis]r3.Vector) (r3.Vector, r3.Vector, r3.Vector) {
	return dirs[model.AxisX], dirs[model.AxisY], dirs[model.AxisZ]
}

// DeriveRotationCandidates builds the set of candidate world-from-camera
// rotations from the camera-space directions of the observed axis VPs
// (§4.2): full handedness-corrected triple when all three are observed;
// cross-product completion (plus its negation) and, for non-orthogonal
// pairs, three orthogonalized variants, when only two are observed.
func DeriveRotationCandidates(vps map[model.Axis]r2.Point, principal r2.Point, focal float64) []mathkernel.Matrix3 {
	dirs := map[model.Axis]r3.Vector{}
	present := map[model.Axis]bool{}
	for axis, pixel := range vps {
		d, ok := axisCameraDir(pixel, principal, focal)
		if !ok {
			continue
		}
		dirs[axis] = d
		present[axis] = true
	}

	switch len(dirs) {
	case 3:
		dx, dy, dz := triple(dirs)
		if mathkernel.Dot(mathkernel.Cross(dx, dy), dz) < 0 {
			dz = mathkernel.Scale(dz, -1)
		}
		return []mathkernel.Matrix3{buildRotation(dx, dy, dz)}

	case 2:
		missing := missingAxis(present)
		third, ok := mathkernel.Normalize(crossForMissing(missing, dirs))
		if !ok {
			return nil
		}
		full := map[model.Axis]r3.Vector{}
		for a, d := range dirs {
			full[a] = d
		}
		full[missing] = third
		dx, dy, dz := triple(full)
		candidates := []mathkernel.Matrix3{buildRotation(dx, dy, dz)}
		negFull := map[model.Axis]r3.Vector{}
		for a, d := range full {
			negFull[a] = d
		}
		negFull[missing] = mathkernel.Scale(third, -1)
		dx, dy, dz = triple(negFull)
		candidates = append(candidates, buildRotation(dx, dy, dz))

		var axisA, axisB model.Axis
		first := true
		for a := range dirs {
			if first {
				axisA = a
				first = false
			} else {
				axisB = a
			}
		}
		if math.Abs(mathkernel.Dot(dirs[axisA], dirs[axisB])) > nonOrthogonalThreshold {
			candidates = append(candidates, orthogonalizeVariants(axisA, dirs[axisA], axisB, dirs[axisB], missing)...)
		}
		return candidates
	default:
		return nil
	}
}

// orthogonalizeVariants implements the three orthogonalization strategies
// (first-fixed, second-fixed, Procrustes half-angle split) for a
// non-orthogonal observed axis pair.
func orthogonalizeVariants(axisA model.Axis, dirA r3.Vector, axisB model.Axis, dirB r3.Vector, missing model.Axis) []mathkernel.Matrix3 {
	var out []mathkernel.Matrix3

	gramSchmidt := func(keep, adjust r3.Vector) (r3.Vector, bool) {
		proj := mathkernel.Scale(keep, mathkernel.Dot(adjust, keep))
		return mathkernel.Normalize(mathkernel.Sub(adjust, proj))
	}

	assembleAndAppend := func(newA, newB r3.Vector) {
		third, ok := mathkernel.Normalize(crossForMissing(missing, map[model.Axis]r3.Vector{axisA: newA, axisB: newB}))
		if !ok {
			return
		}
		full := map[model.Axis]r3.Vector{axisA: newA, axisB: newB, missing: third}
		dx, dy, dz := triple(full)
		r := buildRotation(dx, dy, dz)
		if r.Determinant() > 0 {
			out = append(out, r)
		}
	}

	if adjustedB, ok := gramSchmidt(dirA, dirB); ok {
		assembleAndAppend(dirA, adjustedB)
	}
	if adjustedA, ok := gramSchmidt(dirB, dirA); ok {
		assembleAndAppend(adjustedA, dirB)
	}

	axis := mathkernel.Cross(dirA, dirB)
	if mathkernel.Norm(axis) > mathkernel.SingularEpsilon {
		currentAngle := math.Acos(clamp(mathkernel.Dot(dirA, dirB), -1, 1))
		deficit := currentAngle - math.Pi/2
		halfRotA := mathkernel.Rodrigues(axis, -deficit/2)
		halfRotB := mathkernel.Rodrigues(axis, deficit/2)
		assembleAndAppend(halfRotA.MulVec(dirA), halfRotB.MulVec(dirB))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
