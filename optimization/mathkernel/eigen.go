package mathkernel

import (
	"math"

	"github.com/mfagerlund/rotera/randx"
	"gonum.org/v1/gonum/mat"
)

// PowerIteration estimates the dominant eigenvector/eigenvalue pair of a
// symmetric matrix a by repeated multiplication and renormalization,
// seeded from src so results are reproducible under a fixed seed (§5).
// Returns ok=false if a is singular (zero) or fails to converge to a
// stable direction within maxIter iterations.
func PowerIteration(a *mat.SymDense, maxIter int, src *randx.Source) (vec []float64, val float64, ok bool) {
	n, _ := a.Dims()
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, src.Float64()-0.5)
	}
	if normalizeVec(v) < SingularEpsilon {
		return nil, 0, false
	}

	var av mat.VecDense
	prevVal := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		av.MulVec(a, v)
		norm := normalizeVecFrom(&av)
		if norm < SingularEpsilon {
			return nil, 0, false
		}
		lambda := mat.Dot(&av, v)
		v = mat.VecDenseCopyOf(&av)
		if math.Abs(lambda-prevVal) < 1e-12 {
			return vecData(v), lambda, true
		}
		prevVal = lambda
	}
	return nil, 0, false
}

// InversePowerIteration estimates the smallest-eigenvalue eigenvector of a
// symmetric positive-semidefinite matrix a (the null-space direction used
// by vanishing-point detection §4.2) via shifted inverse iteration.
func InversePowerIteration(a *mat.SymDense, maxIter int, src *randx.Source) (vec []float64, ok bool) {
	n, _ := a.Dims()
	shift := 1e-9
	shifted := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			if i == j {
				v += shift
			}
			shifted.Set(i, j, v)
		}
	}

	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, src.Float64()-0.5)
	}
	if normalizeVec(v) < SingularEpsilon {
		return nil, false
	}

	var lu mat.LU
	lu.Factorize(shifted)

	for iter := 0; iter < maxIter; iter++ {
		var next mat.VecDense
		if err := lu.SolveVecTo(&next, false, v); err != nil {
			return nil, false
		}
		if normalizeVecFrom(&next) < SingularEpsilon {
			return nil, false
		}
		v = mat.VecDenseCopyOf(&next)
	}
	return vecData(v), true
}

func normalizeVec(v *mat.VecDense) float64 { return normalizeVecFrom(v) }

func normalizeVecFrom(v *mat.VecDense) float64 {
	n := v.Len()
	var sumSq float64
	for i := 0; i < n; i++ {
		sumSq += v.AtVec(i) * v.AtVec(i)
	}
	norm := math.Sqrt(sumSq)
	if norm < SingularEpsilon {
		return norm
	}
	for i := 0; i < n; i++ {
		v.SetVec(i, v.AtVec(i)/norm)
	}
	return norm
}

func vecData(v *mat.VecDense) []float64 {
	n := v.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}
