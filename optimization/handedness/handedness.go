// Package handedness implements the final-phase handedness corrector of
// spec §4.10: detect whether the solved scene is left-handed by
// comparing locked-coordinate signs (or, absent those, the basis
// determinant of three axis-anchor features) and, if so, apply the
// matching 2-flip 180° rotation to every camera and feature.
package handedness

import (
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/solvelog"
)

// Anchors names the three features whose positions define the basis
// (origin, +X, +Z) used when no locked coordinates disambiguate
// handedness directly (§4.10 step 2).
type Anchors struct {
	Origin, PlusX, PlusZ model.ID
}

// Result reports what the corrector found and did.
type Result struct {
	FlippedAxes  []model.Axis
	Applied      bool
	IsZReflected bool
}

// Correct runs the three-step procedure of §4.10 against proj, mutating
// every feature's OptimizedXYZ and every viewpoint's Rotation in place
// when a 2-flip rotation is applied. anchors may be the zero value; it
// is only consulted when no feature carries a locked coordinate.
func Correct(proj *model.Project, anchors Anchors, log *solvelog.Buffer) Result {
	flips := signMismatchFlips(proj)
	if len(flips) == 0 && !anyLockedCoordinate(proj) {
		if axis, leftHanded := determinantFlip(proj, anchors); leftHanded {
			flips = map[model.Axis]bool{axis: true}
		}
	}

	result := Result{}
	for axis := range flips {
		result.FlippedAxes = append(result.FlippedAxes, axis)
	}

	switch len(result.FlippedAxes) {
	case 0:
		for _, vp := range proj.Viewpoints() {
			vp.IsZReflected = false
		}
		if log != nil {
			log.Logf(solvelog.TagHandedness, "already right-handed, no flips")
		}
		return result

	case 2:
		third := thirdAxis(result.FlippedAxes[0], result.FlippedAxes[1])
		applyRotation(proj, third)
		result.Applied = true
		for _, vp := range proj.Viewpoints() {
			vp.IsZReflected = false
		}
		if log != nil {
			log.Logf(solvelog.TagHandedness, "applied 180deg flip around axis %d", third)
		}
		return result

	default:
		// 1 or 3 flips: not expressible as a rotation. Emulate with the
		// matching 2-flip rotation (pick the first two flipped axes,
		// or pair a single flipped axis with the next one in X->Y->Z
		// order) and flag every
		// camera as z-reflected for the renderer to compensate.
		var a, b model.Axis
		if len(result.FlippedAxes) == 1 {
			a = result.FlippedAxes[0]
			b = nextAxis(a)
		} else {
			a, b = result.FlippedAxes[0], result.FlippedAxes[1]
		}
		third := thirdAxis(a, b)
		applyRotation(proj, third)
		result.Applied = true
		result.IsZReflected = true
		for _, vp := range proj.Viewpoints() {
			vp.IsZReflected = true
		}
		if log != nil {
			log.Logf(solvelog.TagHandedness, "%d flips not expressible as a rotation; emulated and marked z-reflected", len(result.FlippedAxes))
		}
		return result
	}
}

func anyLockedCoordinate(proj *model.Project) bool {
	for _, f := range proj.Features() {
		if f.LockedXYZ.Any() {
			return true
		}
	}
	return false
}

// signMismatchFlips compares, for every locked axis on every feature,
// the sign of the locked value against the optimized value (§4.10
// step 1).
func signMismatchFlips(proj *model.Project) map[model.Axis]bool {
	flips := map[model.Axis]bool{}
	for _, f := range proj.Features() {
		for _, axis := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
			locked, ok := f.LockedXYZ.Get(axis)
			if !ok || locked == 0 {
				continue
			}
			optimized := axisValue(f.OptimizedXYZ, axis)
			if signOf(locked) != signOf(optimized) {
				flips[axis] = true
			}
		}
	}
	return flips
}

// determinantFlip checks the basis implied by anchors (origin, +X, +Z):
// in a right-handed system Z x X = +Y, so if (+Z - origin) x (+X -
// origin) points toward -Y instead, the scene is left-handed and Z
// should flip (§4.10 step 2).
func determinantFlip(proj *model.Project, anchors Anchors) (model.Axis, bool) {
	origin, ok1 := proj.Feature(anchors.Origin)
	plusX, ok2 := proj.Feature(anchors.PlusX)
	plusZ, ok3 := proj.Feature(anchors.PlusZ)
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	x := mathkernel.Sub(plusX.EffectiveXYZ(), origin.EffectiveXYZ())
	z := mathkernel.Sub(plusZ.EffectiveXYZ(), origin.EffectiveXYZ())
	impliedY := mathkernel.Cross(z, x)
	return model.AxisZ, impliedY.Y < 0
}

// applyRotation applies the 180-degree rotation about axis to every
// feature's OptimizedXYZ and every camera's quaternion (§4.10 step 3).
func applyRotation(proj *model.Project, axis model.Axis) {
	rot := flipRotation(axis)
	q := mathkernel.QuatFromMatrix(rot)
	for _, f := range proj.Features() {
		f.OptimizedXYZ = rot.MulVec(f.OptimizedXYZ)
	}
	for _, vp := range proj.Viewpoints() {
		vp.Position = rot.MulVec(vp.Position)
		vp.Rotation = mathkernel.QuatNormalize(mathkernel.QuatMul(q, vp.Rotation))
	}
}

// flipRotation returns the 180-degree rotation about the given world
// axis: negates the other two coordinates, leaves axis's own coordinate
// unchanged.
func flipRotation(axis model.Axis) mathkernel.Matrix3 {
	m := mathkernel.Identity3()
	for _, a := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		if a != axis {
			setDiag(&m, a, -1)
		}
	}
	return m
}

func setDiag(m *mathkernel.Matrix3, axis model.Axis, v float64) {
	m[int(axis)][int(axis)] = v
}

func axisValue(v r3.Vector, axis model.Axis) float64 {
	switch axis {
	case model.AxisX:
		return v.X
	case model.AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func signOf(v float64) bool { return v >= 0 }

func thirdAxis(a, b model.Axis) model.Axis {
	for _, axis := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		if axis != a && axis != b {
			return axis
		}
	}
	return model.AxisZ
}

func nextAxis(a model.Axis) model.Axis {
	return model.Axis((int(a) + 1) % 3)
}
