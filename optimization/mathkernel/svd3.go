package mathkernel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// SVD3Result holds U, Sigma (descending), and V such that A = U*Sigma*V^T.
type SVD3Result struct {
	U     Matrix3
	Sigma [3]float64
	V     Matrix3
}

// SVD3 computes the SVD of a 3x3 matrix by eigendecomposing A^T*A (§4.1):
// V's columns are the eigenvectors of A^T*A, singular values are the
// square roots of the (non-negative) eigenvalues, and U = A*V*Sigma^-1
// for non-zero singular values (columns with a zero singular value are
// completed by Gram-Schmidt against the others). Returns ok=false if A^T*A
// is singular in every direction (A is the zero matrix).
func SVD3(a Matrix3) (SVD3Result, bool) {
	ata := a.Transpose().Mul(a)
	sym := mat.NewSymDense(3, []float64{
		ata[0][0], ata[0][1], ata[0][2],
		ata[1][0], ata[1][1], ata[1][2],
		ata[2][0], ata[2][1], ata[2][2],
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return SVD3Result{}, false
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	type pair struct {
		val float64
		col int
	}
	pairs := []pair{{values[0], 0}, {values[1], 1}, {values[2], 2}}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].val > pairs[j].val })

	var result SVD3Result
	anyNonzero := false
	for outCol, p := range pairs {
		lambda := p.val
		if lambda < 0 {
			lambda = 0
		}
		sigma := math.Sqrt(lambda)
		result.Sigma[outCol] = sigma
		for row := 0; row < 3; row++ {
			result.V[row][outCol] = vecs.At(row, p.col)
		}
		if sigma > SingularEpsilon {
			anyNonzero = true
			vCol := colOf(result.V, outCol)
			uCol, _ := Normalize(a.MulVec(vCol))
			setCol(&result.U, outCol, uCol)
		}
	}
	if !anyNonzero {
		return SVD3Result{}, false
	}
	orthoCompleteU(&result.U, result.Sigma)
	return result, true
}

func colOf(m Matrix3, c int) (v struct{ X, Y, Z float64 }) {
	v.X, v.Y, v.Z = m[0][c], m[1][c], m[2][c]
	return
}

func setCol(m *Matrix3, c int, v struct{ X, Y, Z float64 }) {
	m[0][c], m[1][c], m[2][c] = v.X, v.Y, v.Z
}

// orthoCompleteU fills in U columns corresponding to (near-)zero singular
// values with an orthonormal completion of the columns already set.
func orthoCompleteU(u *Matrix3, sigma [3]float64) {
	have := make([]int, 0, 3)
	missing := make([]int, 0, 3)
	for i, s := range sigma {
		if s > SingularEpsilon {
			have = append(have, i)
		} else {
			missing = append(missing, i)
		}
	}
	if len(have) == 0 {
		*u = Identity3()
		return
	}
	if len(have) == 3 {
		return
	}
	// Gram-Schmidt against the existing columns using the standard basis as seeds.
	seeds := [3]struct{ X, Y, Z float64 }{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, m := range missing {
		var candidate struct{ X, Y, Z float64 }
		for _, seed := range seeds {
			candidate = seed
			for _, h := range have {
				hv := colOf(*u, h)
				d := candidate.X*hv.X + candidate.Y*hv.Y + candidate.Z*hv.Z
				candidate.X -= d * hv.X
				candidate.Y -= d * hv.Y
				candidate.Z -= d * hv.Z
			}
			norm := math.Sqrt(candidate.X*candidate.X + candidate.Y*candidate.Y + candidate.Z*candidate.Z)
			if norm > SingularEpsilon {
				candidate.X, candidate.Y, candidate.Z = candidate.X/norm, candidate.Y/norm, candidate.Z/norm
				break
			}
		}
		setCol(u, m, candidate)
		have = append(have, m)
	}
}
