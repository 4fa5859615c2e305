package solve

import (
	"math"

	"github.com/mfagerlund/rotera/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Run executes one Levenberg-Marquardt solve over proj's free parameters
// (§4.8). It writes the final parameter vector into proj's features and
// viewpoints in place via Layout.Apply once the iteration loop ends, so a
// caller that wants to roll back a divergent solve must snapshot proj
// first (optimization/snapshot).
func Run(proj *model.Project, opts Options) (Result, error) {
	layout := BuildLayout(proj, opts.OptimizeIntrinsics)
	if layout.Size() == 0 {
		return Result{Converged: true, Mode: "dense"}, nil
	}

	x := layout.InitialParams(proj)
	lambda := opts.Damping
	if lambda <= 0 {
		lambda = 1e-3
	}
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = 1e-6
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}

	sparse := opts.Sparse && !hasFeatureCoupling(proj)
	mode := "dense"
	if sparse {
		mode = "sparse"
	}

	residuals := Evaluate(proj, layout, x, opts)
	rms := RMS(residuals)

	converged := false
	iterations := 0
	for iterations < maxIter {
		iterations++

		var delta []float64
		var err error
		if sparse {
			delta, err = solveSparse(layout, residuals, lambda)
		} else {
			delta, err = solveDense(layout, residuals, lambda)
		}
		if err != nil {
			lambda *= 10
			continue
		}

		xNew := make([]float64, len(x))
		for i := range x {
			xNew[i] = x[i] + delta[i]
		}
		newResiduals := Evaluate(proj, layout, xNew, opts)
		newRMS := RMS(newResiduals)

		if newRMS < rms || math.IsNaN(rms) {
			relDrop := 0.0
			if rms > 0 {
				relDrop = (rms - newRMS) / rms
			}
			x = xNew
			residuals = newResiduals
			converged = rms > 0 && relDrop >= 0 && relDrop < tolerance
			rms = newRMS
			lambda = math.Max(lambda/10, 1e-12)
			if converged {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				break
			}
		}
	}

	layout.Apply(proj, x)
	return Result{Converged: converged, Iterations: iterations, RMS: rms, Mode: mode}, nil
}

// hasFeatureCoupling reports whether the project carries any residual
// that couples two or more features directly (not through a shared
// camera): any enabled Constraint, or any Line with a target length or
// axis-direction constraint. The Schur-complement fast path assumes the
// feature-feature Hessian block is block-diagonal per feature, which
// only holds in their absence.
func hasFeatureCoupling(proj *model.Project) bool {
	for _, c := range proj.Constraints() {
		if c.Enabled {
			return true
		}
	}
	for _, line := range proj.Lines() {
		if line.TargetLength != nil {
			return true
		}
		if _, ok := line.Direction.SingleAxis(); ok {
			return true
		}
	}
	return false
}

// solveDense builds the full n x n normal equations (JtJ + lambda*diag)
// * delta = -Jtr and solves via gonum.
func solveDense(l *Layout, residuals []Residual, lambda float64) ([]float64, error) {
	n := l.Size()
	jtj := mat.NewDense(n, n, nil)
	jtr := make([]float64, n)

	for _, r := range residuals {
		for i, pi := range r.Partials {
			jtr[i] += pi * r.Value
			for j, pj := range r.Partials {
				jtj.Set(i, j, jtj.At(i, j)+pi*pj)
			}
		}
	}
	for i := 0; i < n; i++ {
		jtj.Set(i, i, jtj.At(i, i)*(1+lambda)+1e-12)
	}

	b := mat.NewDense(n, 1, jtr)
	for i := 0; i < n; i++ {
		b.Set(i, 0, -b.At(i, 0))
	}
	var sol mat.Dense
	if err := sol.Solve(jtj, b); err != nil {
		return nil, errors.Wrap(err, "dense normal-equations solve")
	}
	delta := make([]float64, n)
	for i := 0; i < n; i++ {
		delta[i] = sol.At(i, 0)
	}
	return delta, nil
}

// featureBlock is one feature's local Hessian/rhs accumulation for the
// Schur-complement elimination.
type featureBlock struct {
	axes  []int // parameter indices, local order
	hff   *mat.Dense
	bf    []float64
	hcf   map[int][]float64 // camera param index -> coefficient per local feature axis
}

// solveSparse eliminates per-feature blocks via the Schur complement,
// leaving a reduced system over camera (and intrinsics) parameters only
// (the classic bundle-adjustment structure, valid when !hasFeatureCoupling).
func solveSparse(l *Layout, residuals []Residual, lambda float64) ([]float64, error) {
	cameraIdx := map[int]int{} // global param index -> local camera-system index
	var cameraOrder []int
	isFeatureIdx := map[int]model.ID{}
	for fid, axes := range l.featureIndex {
		for _, idx := range axes {
			isFeatureIdx[idx] = fid
		}
	}
	for _, cp := range l.cameras {
		for off := 0; off < cameraBlockSize; off++ {
			idx := cp.base + off
			cameraIdx[idx] = len(cameraOrder)
			cameraOrder = append(cameraOrder, idx)
		}
		if cp.optimizeFocal {
			cameraIdx[cp.focalIndex] = len(cameraOrder)
			cameraOrder = append(cameraOrder, cp.focalIndex)
		}
	}
	nc := len(cameraOrder)
	if nc == 0 {
		return solveSparseNoCameras(l, residuals, isFeatureIdx, lambda)
	}

	blocks := map[model.ID]*featureBlock{}
	getBlock := func(fid model.ID) *featureBlock {
		b, ok := blocks[fid]
		if !ok {
			axes := make([]int, 0, 3)
			for _, idx := range l.featureIndex[fid] {
				axes = append(axes, idx)
			}
			b = &featureBlock{
				axes: axes,
				hff:  mat.NewDense(len(axes), len(axes), nil),
				bf:   make([]float64, len(axes)),
				hcf:  map[int][]float64{},
			}
			blocks[fid] = b
		}
		return b
	}
	localOf := func(b *featureBlock, idx int) int {
		for k, a := range b.axes {
			if a == idx {
				return k
			}
		}
		return -1
	}

	hcc := mat.NewDense(nc, nc, nil)
	bc := make([]float64, nc)

	for _, r := range residuals {
		var featBlock *featureBlock
		var featID model.ID
		for idx := range r.Partials {
			if fid, ok := isFeatureIdx[idx]; ok {
				featID = fid
				featBlock = getBlock(fid)
				break
			}
		}
		for i, pi := range r.Partials {
			if ci, ok := cameraIdx[i]; ok {
				bc[ci] += -pi * r.Value
				for j, pj := range r.Partials {
					if cj, ok := cameraIdx[j]; ok {
						hcc.Set(ci, cj, hcc.At(ci, cj)+pi*pj)
					}
				}
			}
		}
		if featBlock != nil {
			for i, pi := range r.Partials {
				if fi, ok := isFeatureIdx[i]; ok && fi == featID {
					li := localOf(featBlock, i)
					featBlock.bf[li] += -pi * r.Value
					for j, pj := range r.Partials {
						if fj, ok := isFeatureIdx[j]; ok && fj == featID {
							lj := localOf(featBlock, j)
							featBlock.hff.Set(li, lj, featBlock.hff.At(li, lj)+pi*pj)
						}
					}
					for cidx, pc := range r.Partials {
						if _, ok := cameraIdx[cidx]; !ok {
							continue
						}
						if featBlock.hcf[cidx] == nil {
							featBlock.hcf[cidx] = make([]float64, len(featBlock.axes))
						}
						featBlock.hcf[cidx][li] += pi * pc
					}
				}
			}
		}
	}

	for i := 0; i < nc; i++ {
		hcc.Set(i, i, hcc.At(i, i)*(1+lambda)+1e-12)
	}

	reducedHcc := mat.NewDense(nc, nc, nil)
	reducedHcc.Copy(hcc)
	reducedBc := append([]float64(nil), bc...)

	featureDeltaInputs := map[model.ID]*mat.Dense{}
	for fid, b := range blocks {
		m := len(b.axes)
		for i := 0; i < m; i++ {
			b.hff.Set(i, i, b.hff.At(i, i)*(1+lambda)+1e-12)
		}
		hffInv := mat.NewDense(m, m, nil)
		if err := hffInv.Inverse(b.hff); err != nil {
			return nil, errors.Wrapf(err, "feature block %s singular", fid)
		}
		featureDeltaInputs[fid] = hffInv

		hcf := mat.NewDense(nc, m, nil)
		for cidx, coeffs := range b.hcf {
			ci, ok := cameraIdx[cidx]
			if !ok {
				continue
			}
			for li, v := range coeffs {
				hcf.Set(ci, li, v)
			}
		}

		var tmp mat.Dense
		tmp.Mul(hcf, hffInv)
		var corr mat.Dense
		corr.Mul(&tmp, hcf.T())
		reducedHcc.Sub(reducedHcc, &corr)

		bfVec := mat.NewVecDense(m, b.bf)
		var corrB mat.VecDense
		corrB.MulVec(&tmp, bfVec)
		for i := 0; i < nc; i++ {
			reducedBc[i] -= corrB.AtVec(i)
		}
	}

	bcMat := mat.NewDense(nc, 1, reducedBc)
	var camSol mat.Dense
	if err := camSol.Solve(reducedHcc, bcMat); err != nil {
		return nil, errors.Wrap(err, "schur-complement camera solve")
	}

	delta := make([]float64, l.Size())
	camDelta := make([]float64, nc)
	for i := 0; i < nc; i++ {
		camDelta[i] = camSol.At(i, 0)
		delta[cameraOrder[i]] = camDelta[i]
	}

	for fid, b := range blocks {
		m := len(b.axes)
		rhs := append([]float64(nil), b.bf...)
		for cidx, coeffs := range b.hcf {
			ci, ok := cameraIdx[cidx]
			if !ok {
				continue
			}
			for li, v := range coeffs {
				rhs[li] -= v * camDelta[ci]
			}
		}
		rhsVec := mat.NewVecDense(m, rhs)
		var sol mat.VecDense
		sol.MulVec(featureDeltaInputs[fid], rhsVec)
		for li, idx := range b.axes {
			delta[idx] = sol.AtVec(li)
		}
	}

	return delta, nil
}

// solveSparseNoCameras handles the degenerate Schur-complement case with
// zero free camera parameters (every viewpoint pose-locked): there is
// nothing to eliminate against, so each feature's block solves directly.
func solveSparseNoCameras(l *Layout, residuals []Residual, isFeatureIdx map[int]model.ID, lambda float64) ([]float64, error) {
	type accum struct {
		axes []int
		hff  *mat.Dense
		bf   []float64
	}
	blocks := map[model.ID]*accum{}
	localOf := func(a *accum, idx int) int {
		for k, v := range a.axes {
			if v == idx {
				return k
			}
		}
		return -1
	}
	getBlock := func(fid model.ID) *accum {
		a, ok := blocks[fid]
		if !ok {
			axes := make([]int, 0, 3)
			for _, idx := range l.featureIndex[fid] {
				axes = append(axes, idx)
			}
			a = &accum{axes: axes, hff: mat.NewDense(len(axes), len(axes), nil), bf: make([]float64, len(axes))}
			blocks[fid] = a
		}
		return a
	}

	for _, r := range residuals {
		var featID model.ID
		var found bool
		for idx := range r.Partials {
			if fid, ok := isFeatureIdx[idx]; ok {
				featID, found = fid, true
				break
			}
		}
		if !found {
			continue
		}
		a := getBlock(featID)
		for i, pi := range r.Partials {
			fi, ok := isFeatureIdx[i]
			if !ok || fi != featID {
				continue
			}
			li := localOf(a, i)
			a.bf[li] += -pi * r.Value
			for j, pj := range r.Partials {
				fj, ok := isFeatureIdx[j]
				if !ok || fj != featID {
					continue
				}
				lj := localOf(a, j)
				a.hff.Set(li, lj, a.hff.At(li, lj)+pi*pj)
			}
		}
	}

	delta := make([]float64, l.Size())
	for fid, a := range blocks {
		m := len(a.axes)
		if m == 0 {
			continue
		}
		for i := 0; i < m; i++ {
			a.hff.Set(i, i, a.hff.At(i, i)*(1+lambda)+1e-12)
		}
		bVec := mat.NewDense(m, 1, a.bf)
		var sol mat.Dense
		if err := sol.Solve(a.hff, bVec); err != nil {
			return nil, errors.Wrapf(err, "feature block %s singular", fid)
		}
		for li, idx := range a.axes {
			delta[idx] = sol.At(li, 0)
		}
	}

	return delta, nil
}
