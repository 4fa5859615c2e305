// Package align implements coordinate-system alignment (spec §4.7):
// axis alignment from labelled line directions, scale recovery from
// target lengths or locked-point pairs, and anchor translation. Each
// step is applied atomically to both feature coordinates and camera
// poses.
package align

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"gonum.org/v1/gonum/stat"
)

// QualityFunc runs a short dense LM solve for a candidate orientation and
// reports its residual, letting Align pick the lower-residual axis sign
// deterministically (§4.7, §4.6 closing paragraph).
type QualityFunc func(rotation mathkernel.Matrix3) float64

// Result summarizes the rigid+scale transform Align applied, so callers
// can un-scale quantities that were computed in the pre-alignment frame
// (e.g. camera positions at locked points).
type Result struct {
	Rotation    mathkernel.Matrix3
	Scale       float64
	Translation r3.Vector
	Applied     bool
}

// FeaturePoint is the mutable projection of a Feature's effective
// position Align reads and rewrites.
type FeaturePoint struct {
	ID       model.ID
	Position r3.Vector
	Locked   bool
}

// CameraPose is the mutable projection of a Viewpoint's pose Align reads
// and rewrites.
type CameraPose struct {
	ID       model.ID
	Position r3.Vector
	Rotation mathkernel.Matrix3
}

// Input bundles everything Align needs: the labelled line directions (for
// axis alignment), the target lengths and locked pairs (for scale), and
// the mutable points/cameras to transform.
type Input struct {
	AxisDirections map[model.Axis][]r3.Vector
	LineLengths    []LengthSample
	Points         []*FeaturePoint
	Cameras        []*CameraPose
	Quality        QualityFunc
}

// LengthSample is one Line's current (measured) length paired with its
// target, or a locked-point-pair's current length paired with the
// locked-coordinate distance, whichever scale source applies (§4.7).
type LengthSample struct {
	Current float64
	Target  float64
}

// Align runs the three ordered phases of §4.7 over Input in place,
// returning the composed transform for reference.
func Align(in Input) Result {
	result := Result{Rotation: mathkernel.Identity3(), Scale: 1}

	if rotation, ok := axisRotation(in.AxisDirections, in.Quality); ok {
		result.Rotation = rotation
		applyRotation(in.Points, in.Cameras, rotation)
		result.Applied = true
	}

	if scale, ok := recoverScale(in.LineLengths); ok {
		result.Scale = scale
		applyScale(in.Points, in.Cameras, scale)
		result.Applied = true
	}

	anchor := chooseAnchor(in.Points)
	translation := mathkernel.Sub(r3.Vector{}, anchor)
	if !(translation.X == 0 && translation.Y == 0 && translation.Z == 0) {
		result.Translation = translation
		applyTranslation(in.Points, in.Cameras, translation)
		result.Applied = true
	}

	return result
}

// axisRotation computes the SVD of the stacked axis-direction vectors and
// assigns the three principal directions to X/Y/Z by nearest match
// (largest absolute dot product), per §4.7's "Axis alignment" bullet.
func axisRotation(directions map[model.Axis][]r3.Vector, quality QualityFunc) (mathkernel.Matrix3, bool) {
	var all []r3.Vector
	for _, vs := range directions {
		all = append(all, vs...)
	}
	if len(all) == 0 {
		return mathkernel.Identity3(), false
	}

	var scatter mathkernel.Matrix3
	for _, v := range all {
		unit, ok := mathkernel.Normalize(v)
		if !ok {
			continue
		}
		outer := mathkernel.Matrix3{
			{unit.X * unit.X, unit.X * unit.Y, unit.X * unit.Z},
			{unit.Y * unit.X, unit.Y * unit.Y, unit.Y * unit.Z},
			{unit.Z * unit.X, unit.Z * unit.Y, unit.Z * unit.Z},
		}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				scatter[i][j] += outer[i][j]
			}
		}
	}

	svd, ok := mathkernel.SVD3(scatter)
	if !ok {
		return mathkernel.Identity3(), false
	}

	principal := [3]r3.Vector{
		mathkernel.Col(svd.V, 0),
		mathkernel.Col(svd.V, 1),
		mathkernel.Col(svd.V, 2),
	}

	assignment := assignAxes(principal)
	rotation := mathkernel.Matrix3{}
	for axis, dirIdx := range assignment {
		dir := principal[dirIdx]
		sign := disambiguateSign(axis, dir, quality)
		mathkernel.SetCol(&rotation, int(axis), mathkernel.Scale(dir, sign))
	}
	return rotation, true
}

// assignAxes greedily matches each world axis to the principal direction
// with the largest absolute dot product against that axis's unit vector,
// without reusing a direction.
func assignAxes(principal [3]r3.Vector) map[model.Axis]int {
	axisUnit := map[model.Axis]r3.Vector{
		model.AxisX: {X: 1},
		model.AxisY: {Y: 1},
		model.AxisZ: {Z: 1},
	}
	used := map[int]bool{}
	out := map[model.Axis]int{}
	for _, axis := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		best, bestScore := -1, -1.0
		for i, dir := range principal {
			if used[i] {
				continue
			}
			score := mathkernel.Dot(axisUnit[axis], dir)
			if score < 0 {
				score = -score
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		out[axis] = best
	}
	return out
}

// disambiguateSign tries +1 and -1 along dir for the given axis, keeping
// whichever the quality callback scores lower; with no callback, defaults
// to positive (§4.7).
func disambiguateSign(axis model.Axis, dir r3.Vector, quality QualityFunc) float64 {
	if quality == nil {
		return 1
	}
	trial := func(sign float64) mathkernel.Matrix3 {
		m := mathkernel.Identity3()
		mathkernel.SetCol(&m, int(axis), mathkernel.Scale(dir, sign))
		return m
	}
	if quality(trial(1)) <= quality(trial(-1)) {
		return 1
	}
	return -1
}

// recoverScale computes the median (current/target) ratio over the
// supplied length samples, the target-length and locked-pair sources
// named in §4.7.
func recoverScale(samples []LengthSample) (float64, bool) {
	var ratios []float64
	for _, s := range samples {
		if s.Target <= mathkernel.SingularEpsilon {
			continue
		}
		ratios = append(ratios, s.Current/s.Target)
	}
	if len(ratios) == 0 {
		return 1, false
	}
	sort.Float64s(ratios)
	median := stat.Quantile(0.5, stat.Empirical, ratios, nil)
	if median <= mathkernel.SingularEpsilon {
		return 1, false
	}
	return median, true
}

// chooseAnchor picks the first locked point, else the centroid of all
// points (§4.7's "Translation" bullet).
func chooseAnchor(points []*FeaturePoint) r3.Vector {
	for _, p := range points {
		if p.Locked {
			return p.Position
		}
	}
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = mathkernel.Add(sum, p.Position)
	}
	return mathkernel.Scale(sum, 1/float64(len(points)))
}

func applyRotation(points []*FeaturePoint, cameras []*CameraPose, rotation mathkernel.Matrix3) {
	for _, p := range points {
		p.Position = rotation.MulVec(p.Position)
	}
	for _, c := range cameras {
		c.Position = rotation.MulVec(c.Position)
		c.Rotation = rotation.Mul(c.Rotation)
	}
}

func applyScale(points []*FeaturePoint, cameras []*CameraPose, scale float64) {
	for _, p := range points {
		p.Position = mathkernel.Scale(p.Position, 1/scale)
	}
	for _, c := range cameras {
		c.Position = mathkernel.Scale(c.Position, 1/scale)
	}
}

func applyTranslation(points []*FeaturePoint, cameras []*CameraPose, translation r3.Vector) {
	for _, p := range points {
		p.Position = mathkernel.Add(p.Position, translation)
	}
	for _, c := range cameras {
		c.Position = mathkernel.Add(c.Position, translation)
	}
}
