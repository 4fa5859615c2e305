// Package solve implements the Levenberg-Marquardt constraint system
// (spec §4.8): parameter-vector assembly over free feature coordinates,
// free camera poses and (optionally) intrinsics, analytic residual and
// Jacobian construction for every constraint kind, and dense/sparse
// normal-equations solves with damping.
package solve

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"gonum.org/v1/gonum/num/quat"
)

// cameraBlockSize is the per-camera parameter count with intrinsics
// optimization off: 3 rotation tangent components + 3 position.
const cameraBlockSize = 6

// cameraParam indexes one free camera's parameter block.
type cameraParam struct {
	base          int // index of rotation-x; rotation-y/z, pos-x/y/z follow
	baseRotation  quat.Number
	basePosition  r3.Vector
	optimizeFocal bool
	focalIndex    int // -1 if not optimized
	baseFocal     float64
}

// Layout maps feature axes and camera pose/intrinsics onto a flat
// parameter vector, the "parameter vector assembled from: free feature
// coordinates..., free camera rotations..., free camera positions,
// optionally camera intrinsics" of §4.8.
type Layout struct {
	featureIndex map[model.ID]map[model.Axis]int
	cameras      map[model.ID]*cameraParam
	cameraOrder  []model.ID
	size         int
}

// BuildLayout walks proj's features and viewpoints, assigning a
// parameter-vector slot to every free (non-locked) feature axis and to
// every enabled, non-pose-locked camera's rotation/position (and focal
// length when optimizeIntrinsics is true).
func BuildLayout(proj *model.Project, optimizeIntrinsics bool) *Layout {
	l := &Layout{
		featureIndex: map[model.ID]map[model.Axis]int{},
		cameras:      map[model.ID]*cameraParam{},
	}
	idx := 0
	for _, f := range proj.Features() {
		axes := map[model.Axis]int{}
		for _, axis := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
			if _, locked := f.LockedXYZ.Get(axis); locked {
				continue
			}
			axes[axis] = idx
			idx++
		}
		if len(axes) > 0 {
			l.featureIndex[f.ID] = axes
		}
	}
	for _, vp := range proj.Viewpoints() {
		if !vp.EnabledInSolve || vp.IsPoseLocked {
			continue
		}
		cp := &cameraParam{base: idx, baseRotation: vp.Rotation, basePosition: vp.Position, focalIndex: -1}
		idx += cameraBlockSize
		if optimizeIntrinsics {
			cp.optimizeFocal = true
			cp.focalIndex = idx
			cp.baseFocal = vp.Intrinsics.FocalLength
			idx++
		}
		l.cameras[vp.ID] = cp
		l.cameraOrder = append(l.cameraOrder, vp.ID)
	}
	sort.Slice(l.cameraOrder, func(i, j int) bool { return l.cameraOrder[i] < l.cameraOrder[j] })
	l.size = idx
	return l
}

// Size returns the parameter-vector length.
func (l *Layout) Size() int { return l.size }

// InitialParams returns the starting parameter vector: each free feature
// axis set to its current effective value, each free camera's rotation
// tangent at zero (relative to its current quaternion) and position at
// its current value.
func (l *Layout) InitialParams(proj *model.Project) []float64 {
	x := make([]float64, l.size)
	for id, axes := range l.featureIndex {
		f, ok := proj.Feature(id)
		if !ok {
			continue
		}
		eff := f.EffectiveXYZ()
		for axis, i := range axes {
			x[i] = axisOf(eff, axis)
		}
	}
	for id, cp := range l.cameras {
		_ = id
		x[cp.base+3] = cp.basePosition.X
		x[cp.base+4] = cp.basePosition.Y
		x[cp.base+5] = cp.basePosition.Z
		if cp.optimizeFocal {
			x[cp.focalIndex] = cp.baseFocal
		}
	}
	return x
}

// FeaturePosition reconstructs a feature's world position from the
// parameter vector, falling back to its locked/effective value on axes
// that aren't free parameters.
func (l *Layout) FeaturePosition(proj *model.Project, featureID model.ID, x []float64) r3.Vector {
	f, ok := proj.Feature(featureID)
	if !ok {
		return r3.Vector{}
	}
	eff := f.EffectiveXYZ()
	axes := l.featureIndex[featureID]
	out := eff
	for axis, i := range axes {
		setAxis(&out, axis, x[i])
	}
	return out
}

// CameraPose reconstructs a camera's rotation, position, and (if
// optimized) focal length from the parameter vector.
func (l *Layout) CameraPose(vp *model.Viewpoint, x []float64) (quat.Number, r3.Vector, float64) {
	cp, ok := l.cameras[vp.ID]
	if !ok {
		return vp.Rotation, vp.Position, vp.Intrinsics.FocalLength
	}
	rotation := perturb(cp.baseRotation, x[cp.base], x[cp.base+1], x[cp.base+2])
	position := r3.Vector{X: x[cp.base+3], Y: x[cp.base+4], Z: x[cp.base+5]}
	focal := vp.Intrinsics.FocalLength
	if cp.optimizeFocal {
		focal = x[cp.focalIndex]
	}
	return rotation, position, focal
}

// Apply writes the solved parameter vector back into proj's features
// (optimized_xyz) and viewpoints (position, rotation, focal length).
func (l *Layout) Apply(proj *model.Project, x []float64) {
	for id := range l.featureIndex {
		f, ok := proj.Feature(id)
		if !ok {
			continue
		}
		f.OptimizedXYZ = l.FeaturePosition(proj, id, x)
	}
	for _, id := range l.cameraOrder {
		vp, ok := proj.Viewpoint(id)
		if !ok {
			continue
		}
		rotation, position, focal := l.CameraPose(vp, x)
		vp.Rotation = rotation
		vp.Position = position
		if l.cameras[id].optimizeFocal {
			vp.Intrinsics.FocalLength = focal
		}
	}
}

func axisOf(v r3.Vector, axis model.Axis) float64 {
	switch axis {
	case model.AxisX:
		return v.X
	case model.AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func setAxis(v *r3.Vector, axis model.Axis, value float64) {
	switch axis {
	case model.AxisX:
		v.X = value
	case model.AxisY:
		v.Y = value
	default:
		v.Z = value
	}
}

// perturb applies a small-angle tangent-space rotation update to base,
// the same construction used for PnP pose refinement.
func perturb(base quat.Number, rx, ry, rz float64) quat.Number {
	angle := math.Sqrt(rx*rx + ry*ry + rz*rz)
	if angle < 1e-12 {
		return base
	}
	half := angle / 2
	s := math.Sin(half) / angle
	delta := quat.Number{Real: math.Cos(half), Imag: rx * s, Jmag: ry * s, Kmag: rz * s}
	return mathkernel.QuatNormalize(mathkernel.QuatMul(delta, base))
}
