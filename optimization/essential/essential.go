// Package essential implements the two-view essential-matrix bootstrap
// used when no locked points exist (spec §4.4): the eight-point algorithm,
// SVD decomposition into four (R,t) candidates, and cheirality selection.
package essential

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"gonum.org/v1/gonum/mat"
)

// Correspondence is a pixel observed in both views of a two-view pair.
type Correspondence struct {
	PixelA, PixelB r2.Point
}

// Camera carries the (shared or per-view) intrinsics needed to normalize
// pixel coordinates before the eight-point solve.
type Camera struct {
	Focal, Aspect float64
	Principal     r2.Point
}

func normalize(cam Camera, p r2.Point) r3.Vector {
	return r3.Vector{
		X: (p.X - cam.Principal.X) / cam.Focal,
		Y: (p.Y - cam.Principal.Y) / (cam.Focal * cam.Aspect),
		Z: 1,
	}
}

// Pose is a relative pose candidate: rotation and translation of camera B
// with respect to camera A, up to the essential matrix's unknown scale.
type Pose struct {
	Rotation    mathkernel.Matrix3
	Translation r3.Vector
}

// Result is the outcome of the essential-matrix bootstrap.
type Result struct {
	Success        bool
	Pose           Pose
	AlignmentSign  int // +1 or -1; the arbitrary scale/orientation ambiguity the candidate driver searches (§4.4, §4.12)
	InliersInFront int
	Reason         string
}

// Solve computes the essential matrix from ≥8 correspondences via the
// eight-point algorithm, decomposes it into the four (R,t) candidates,
// and picks the one with the most points satisfying cheirality
// (positive triangulated depth in both views).
func Solve(camA, camB Camera, corr []Correspondence) Result {
	if len(corr) < 8 {
		return Result{Success: false, Reason: "fewer than 8 correspondences"}
	}

	n := len(corr)
	a := mat.NewDense(n, 9, nil)
	for i, c := range corr {
		pa := normalize(camA, c.PixelA)
		pb := normalize(camB, c.PixelB)
		a.SetRow(i, []float64{
			pb.X * pa.X, pb.X * pa.Y, pb.X,
			pb.Y * pa.X, pb.Y * pa.Y, pb.Y,
			pa.X, pa.Y, 1,
		})
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	sym := mat.NewSymDense(9, nil)
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			sym.SetSym(i, j, ata.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return Result{Success: false, Reason: "degenerate normal-equation matrix"}
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	minIdx := 0
	for i := 1; i < 9; i++ {
		if values[i] < values[minIdx] {
			minIdx = i
		}
	}
	ev := make([]float64, 9)
	for i := 0; i < 9; i++ {
		ev[i] = vecs.At(i, minIdx)
	}
	e := mathkernel.Matrix3{
		{ev[0], ev[1], ev[2]},
		{ev[3], ev[4], ev[5]},
		{ev[6], ev[7], ev[8]},
	}

	essential, ok := enforceEssentialConstraint(e)
	if !ok {
		return Result{Success: false, Reason: "essential matrix SVD failed"}
	}

	candidates := decompose(essential)
	best := -1
	bestCount := -1
	for i, cand := range candidates {
		count := 0
		for _, c := range corr {
			if cheirality(camA, camB, cand, c) {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = i
		}
	}
	if best < 0 || bestCount == 0 {
		return Result{Success: false, Reason: "no candidate pose passed cheirality"}
	}
	return Result{Success: true, Pose: candidates[best], AlignmentSign: 1, InliersInFront: bestCount}
}

func enforceEssentialConstraint(e mathkernel.Matrix3) (mathkernel.Matrix3, bool) {
	svdResult, ok := mathkernel.SVD3(e)
	if !ok {
		return mathkernel.Matrix3{}, false
	}
	avg := (svdResult.Sigma[0] + svdResult.Sigma[1]) / 2
	sigma := mathkernel.Matrix3{{avg, 0, 0}, {0, avg, 0}, {0, 0, 0}}
	return svdResult.U.Mul(sigma).Mul(svdResult.V.Transpose()), true
}

var w = mathkernel.Matrix3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}

// decompose returns the four (R,t) candidates implied by an essential
// matrix's SVD, per the standard Hartley-Zisserman construction.
func decompose(e mathkernel.Matrix3) []Pose {
	svdResult, ok := mathkernel.SVD3(e)
	if !ok {
		return nil
	}
	u, v := svdResult.U, svdResult.V
	if u.Determinant() < 0 {
		u = negateColumn(u, 2)
	}
	if v.Determinant() < 0 {
		v = negateColumn(v, 2)
	}

	r1 := u.Mul(w).Mul(v.Transpose())
	r2mat := u.Mul(w.Transpose()).Mul(v.Transpose())
	t := r3.Vector{X: u[0][2], Y: u[1][2], Z: u[2][2]}

	return []Pose{
		{Rotation: r1, Translation: t},
		{Rotation: r1, Translation: mathkernel.Scale(t, -1)},
		{Rotation: r2mat, Translation: t},
		{Rotation: r2mat, Translation: mathkernel.Scale(t, -1)},
	}
}

func negateColumn(m mathkernel.Matrix3, col int) mathkernel.Matrix3 {
	out := m
	out[0][col], out[1][col], out[2][col] = -out[0][col], -out[1][col], -out[2][col]
	return out
}

// cheirality triangulates a correspondence under pose and reports
// whether the resulting point lies in front of both cameras.
func cheirality(camA, camB Camera, pose Pose, c Correspondence) bool {
	rayA := normalize(camA, c.PixelA)
	rayB := normalize(camB, c.PixelB)
	rayBInA := pose.Rotation.MulVec(rayB)

	// Midpoint method: solve for scalars s,t minimizing |s*rayA - (t*rayBInA + translation)|.
	depthA, depthB, ok := triangulateDepths(rayA, rayBInA, pose.Translation)
	if !ok {
		return false
	}
	return depthA > 0 && depthB > 0
}

func triangulateDepths(rayA, rayBInA, translation r3.Vector) (float64, float64, bool) {
	// s*rayA - t*rayBInA = translation, least squares over the 3 equations.
	aCol := rayA
	bCol := mathkernel.Scale(rayBInA, -1)
	ata := [2][2]float64{
		{mathkernel.Dot(aCol, aCol), mathkernel.Dot(aCol, bCol)},
		{mathkernel.Dot(aCol, bCol), mathkernel.Dot(bCol, bCol)},
	}
	atb := [2]float64{mathkernel.Dot(aCol, translation), mathkernel.Dot(bCol, translation)}
	det := ata[0][0]*ata[1][1] - ata[0][1]*ata[1][0]
	if math.Abs(det) < mathkernel.SingularEpsilon {
		return 0, 0, false
	}
	s := (atb[0]*ata[1][1] - atb[1]*ata[0][1]) / det
	tt := (ata[0][0]*atb[1] - ata[1][0]*atb[0]) / det
	return s, tt, true
}
