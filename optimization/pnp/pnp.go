// Package pnp implements RANSAC-based perspective-n-point pose estimation
// from 2D<->3D correspondences with known intrinsics (spec §4.3).
package pnp

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/optimization/refine"
	"github.com/mfagerlund/rotera/randx"
	"gonum.org/v1/gonum/num/quat"
)

// Correspondence is a 2D pixel observation of a known 3D world point.
type Correspondence struct {
	WorldPoint r3.Vector
	Pixel      r2.Point
}

// Camera carries the intrinsics pose estimation needs.
type Camera struct {
	Focal, Aspect float64
	Principal     r2.Point
}

// Pose is a candidate camera pose.
type Pose struct {
	Position r3.Vector
	Rotation mathkernel.Matrix3
}

// Result is the outcome of a PnP solve (§4.3).
type Result struct {
	Success  bool
	Reliable bool
	Pose     Pose
	Reason   string
}

// minInliersReliable and Options.OutlierResidualPx gate the Reliable flag.
const minInliersReliable = 5

// Options configures the RANSAC loop.
type Options struct {
	Seed                  uint64
	Iterations            int
	InlierThresholdPx     float64
	OutlierResidualPx     float64 // median residual above which the result is unreliable
}

// DefaultOptions returns sensible RANSAC defaults.
func DefaultOptions() Options {
	return Options{Seed: 42, Iterations: 200, InlierThresholdPx: 5.0, OutlierResidualPx: 8.0}
}

// Solve runs RANSAC absolute-orientation PnP over corr, refining the best
// model over its inliers with refinePose (NLopt SLSQP via refine.Run).
func Solve(cam Camera, corr []Correspondence, opts Options) Result {
	if len(corr) < 3 {
		return Result{Success: false, Reason: "fewer than 3 correspondences"}
	}
	src := randx.New(opts.Seed)

	var bestPose Pose
	bestInliers := -1
	haveBest := false

	for iter := 0; iter < opts.Iterations; iter++ {
		sampleIdx := src.Sample(len(corr), 3)
		sample := make([]Correspondence, 3)
		for i, idx := range sampleIdx {
			sample[i] = corr[idx]
		}
		pose, ok := absoluteOrientation(cam, sample)
		if !ok {
			continue
		}
		inliers := countInliers(cam, pose, corr, opts.InlierThresholdPx)
		if inliers > bestInliers {
			bestInliers = inliers
			bestPose = pose
			haveBest = true
		}
	}

	if !haveBest || bestInliers < 3 {
		return Result{Success: false, Reason: "RANSAC found no viable minimal pose"}
	}

	inlierSet := inlierCorrespondences(cam, bestPose, corr, opts.InlierThresholdPx)
	refined := refinePose(cam, bestPose, inlierSet)
	median := medianResidual(cam, refined, inlierSet)

	reliable := len(inlierSet) >= minInliersReliable && median <= opts.OutlierResidualPx
	reason := ""
	if !reliable {
		reason = "insufficient inliers or high median residual"
	}

	return Result{Success: true, Reliable: reliable, Pose: refined, Reason: reason}
}

func countInliers(cam Camera, pose Pose, corr []Correspondence, threshold float64) int {
	n := 0
	for _, c := range corr {
		if reprojectionError(cam, pose, c) <= threshold {
			n++
		}
	}
	return n
}

func inlierCorrespondences(cam Camera, pose Pose, corr []Correspondence, threshold float64) []Correspondence {
	var out []Correspondence
	for _, c := range corr {
		if reprojectionError(cam, pose, c) <= threshold {
			out = append(out, c)
		}
	}
	return out
}

func reprojectionError(cam Camera, pose Pose, c Correspondence) float64 {
	pred, camZ := project(cam, pose, c.WorldPoint)
	if camZ <= 0 {
		return math.Inf(1)
	}
	return math.Hypot(pred.X-c.Pixel.X, pred.Y-c.Pixel.Y)
}

func project(cam Camera, pose Pose, world r3.Vector) (r2.Point, float64) {
	w2c := pose.Rotation.Transpose()
	rel := mathkernel.Sub(world, pose.Position)
	camPt := w2c.MulVec(rel)
	if camPt.Z <= mathkernel.SingularEpsilon {
		return r2.Point{}, camPt.Z
	}
	invZ := 1 / camPt.Z
	u := cam.Focal*camPt.X*invZ + cam.Principal.X
	v := cam.Focal*cam.Aspect*(-camPt.Y*invZ) + cam.Principal.Y
	return r2.Point{X: u, Y: v}, camPt.Z
}

func medianResidual(cam Camera, pose Pose, corr []Correspondence) float64 {
	if len(corr) == 0 {
		return math.Inf(1)
	}
	errs := make([]float64, len(corr))
	for i, c := range corr {
		errs[i] = reprojectionError(cam, pose, c)
	}
	// simple insertion sort; inlier sets are small
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j-1] > errs[j]; j-- {
			errs[j-1], errs[j] = errs[j], errs[j-1]
		}
	}
	mid := len(errs) / 2
	if len(errs)%2 == 0 {
		return (errs[mid-1] + errs[mid]) / 2
	}
	return errs[mid]
}

// absoluteOrientation solves pose from exactly 3 correspondences via
// Horn's closed-form absolute-orientation: camera-space rays are built
// from the pixels (assuming unit depth for the minimal solve), centroids
// of world points and rays are aligned, and the rotation is recovered
// from the cross-covariance SVD.
func absoluteOrientation(cam Camera, sample []Correspondence) (Pose, bool) {
	if len(sample) != 3 {
		return Pose{}, false
	}
	rays := make([]r3.Vector, 3)
	for i, c := range sample {
		dir := r3.Vector{
			X: (c.Pixel.X - cam.Principal.X) / cam.Focal,
			Y: -(c.Pixel.Y - cam.Principal.Y) / (cam.Focal * cam.Aspect),
			Z: 1,
		}
		unit, ok := mathkernel.Normalize(dir)
		if !ok {
			return Pose{}, false
		}
		rays[i] = unit
	}

	worldCentroid := centroid([]r3.Vector{sample[0].WorldPoint, sample[1].WorldPoint, sample[2].WorldPoint})
	rayCentroid := centroid(rays)

	var cross mathkernel.Matrix3
	for i := 0; i < 3; i++ {
		w := mathkernel.Sub(sample[i].WorldPoint, worldCentroid)
		r := mathkernel.Sub(rays[i], rayCentroid)
		cross[0][0] += w.X * r.X
		cross[0][1] += w.X * r.Y
		cross[0][2] += w.X * r.Z
		cross[1][0] += w.Y * r.X
		cross[1][1] += w.Y * r.Y
		cross[1][2] += w.Y * r.Z
		cross[2][0] += w.Z * r.X
		cross[2][1] += w.Z * r.Y
		cross[2][2] += w.Z * r.Z
	}

	svdResult, ok := mathkernel.SVD3(cross)
	if !ok {
		return Pose{}, false
	}
	// R maps world-centered directions to ray-centered directions: R = V*U^T
	rotation := svdResult.V.Mul(svdResult.U.Transpose())
	if rotation.Determinant() < 0 {
		svdResult.V[0][2], svdResult.V[1][2], svdResult.V[2][2] = -svdResult.V[0][2], -svdResult.V[1][2], -svdResult.V[2][2]
		rotation = svdResult.V.Mul(svdResult.U.Transpose())
	}

	// With a fixed scale (rays are unit, world has real scale) depth must
	// be recovered; approximate it from the mean world-to-camera distance
	// implied by matching centroids, which is a first-order estimate
	// refined immediately after by refinePose.
	scale := mathkernel.Norm(mathkernel.Sub(sample[0].WorldPoint, worldCentroid))
	if scale < mathkernel.SingularEpsilon {
		scale = 1
	}
	camFromWorldRot := rotation
	worldFromCamera := camFromWorldRot.Transpose()
	position := mathkernel.Sub(worldCentroid, worldFromCamera.MulVec(mathkernel.Scale(rayCentroid, scale)))

	return Pose{Position: position, Rotation: worldFromCamera}, true
}

func centroid(vs []r3.Vector) r3.Vector {
	var sum r3.Vector
	for _, v := range vs {
		sum = mathkernel.Add(sum, v)
	}
	return mathkernel.Scale(sum, 1/float64(len(vs)))
}

// refinePose runs NLopt SLSQP with a forward-difference gradient over the 6
// pose parameters (position + small-angle rotation perturbation via a
// quaternion) minimizing summed squared reprojection error over inliers.
func refinePose(cam Camera, pose Pose, inliers []Correspondence) Pose {
	if len(inliers) == 0 {
		return pose
	}
	baseQuat := mathkernel.QuatFromMatrix(pose.Rotation)
	x0 := []float64{pose.Position.X, pose.Position.Y, pose.Position.Z, 0, 0, 0}

	cost := func(x, grad []float64) float64 {
		position := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
		rotation := mathkernel.MatrixFromQuat(perturb(baseQuat, x[3], x[4], x[5]))
		trial := Pose{Position: position, Rotation: rotation}

		total := 0.0
		for _, c := range inliers {
			e := reprojectionError(cam, trial, c)
			if math.IsInf(e, 1) {
				e = 1e6
			}
			total += e * e
		}
		if grad != nil {
			const h = 1e-5
			for i := range x {
				xp := append([]float64(nil), x...)
				xp[i] += h
				positionP := r3.Vector{X: xp[0], Y: xp[1], Z: xp[2]}
				rotationP := mathkernel.MatrixFromQuat(perturb(baseQuat, xp[3], xp[4], xp[5]))
				trialP := Pose{Position: positionP, Rotation: rotationP}
				totalP := 0.0
				for _, c := range inliers {
					e := reprojectionError(cam, trialP, c)
					if math.IsInf(e, 1) {
						e = 1e6
					}
					totalP += e * e
				}
				grad[i] = (totalP - total) / h
			}
		}
		return total
	}

	res := refine.Run(refine.Problem{Dims: 6, Initial: x0, MaxIter: 100, Cost: cost})
	if !res.Converged {
		return pose
	}
	x := res.X
	return Pose{
		Position: r3.Vector{X: x[0], Y: x[1], Z: x[2]},
		Rotation: mathkernel.MatrixFromQuat(perturb(baseQuat, x[3], x[4], x[5])),
	}
}

// perturb applies a small-angle rotation (rx,ry,rz) as a tangent-space
// update to a base quaternion.
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
