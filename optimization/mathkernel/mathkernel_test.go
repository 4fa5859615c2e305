package mathkernel

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/randx"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestVectorOps(t *testing.T) {
	a := r3.Vector{X: 1, Y: 0, Z: 0}
	b := r3.Vector{X: 0, Y: 1, Z: 0}
	test.That(t, Dot(a, b), test.ShouldEqual, 0.0)

	c := Cross(a, b)
	test.That(t, c, test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 1})

	n, ok := Normalize(r3.Vector{X: 3, Y: 4, Z: 0})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(Norm(n)-1), test.ShouldBeLessThan, 1e-9)

	_, ok = Normalize(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMatrix3InvertRoundTrip(t *testing.T) {
	m := Matrix3{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}
	inv, ok := m.Invert()
	test.That(t, ok, test.ShouldBeTrue)
	identity := m.Mul(inv)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expected := 0.0
			if i == j {
				expected = 1.0
			}
			test.That(t, math.Abs(identity[i][j]-expected), test.ShouldBeLessThan, 1e-9)
		}
	}
}

func TestSolve3x3(t *testing.T) {
	m := Matrix3{{2, 0, 0}, {0, 3, 0}, {0, 0, 4}}
	x, ok := Solve3x3(m, r3.Vector{X: 4, Y: 9, Z: 16})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(x.X-2), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(x.Y-3), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.Abs(x.Z-4), test.ShouldBeLessThan, 1e-9)
}

func TestPowerIterationFindsDominantEigenvector(t *testing.T) {
	// Symmetric matrix with known eigenvalues 5 and 1.
	sym := mat.NewSymDense(2, []float64{3, 2, 2, 3})
	src := randx.New(1)
	_, val, ok := PowerIteration(sym, 200, src)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(val-5), test.ShouldBeLessThan, 1e-6)
}

func TestInversePowerIterationFindsNullSpace(t *testing.T) {
	// Rank-deficient: row3 = row1+row2, so (1,1,-1)/sqrt(3)-ish direction is near-null.
	sym := mat.NewSymDense(3, []float64{
		2, 1, 3,
		1, 2, 3,
		3, 3, 6,
	})
	src := randx.New(7)
	vec, ok := InversePowerIteration(sym, 100, src)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, len(vec), test.ShouldEqual, 3)
	alignment := math.Abs(vec[0]+vec[1]-vec[2]) / math.Sqrt(3)
	test.That(t, math.Abs(alignment-1), test.ShouldBeLessThan, 1e-6)
}

func TestSVD3Orthogonal(t *testing.T) {
	m := Matrix3{{3, 0, 0}, {0, 2, 0}, {0, 0, 1}}
	res, ok := SVD3(m)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(res.Sigma[0]-3), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(res.Sigma[1]-2), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(res.Sigma[2]-1), test.ShouldBeLessThan, 1e-6)
}

func TestQuaternionMatrixRoundTrip(t *testing.T) {
	axis := r3.Vector{X: 0.267, Y: 0.535, Z: 0.802}
	m := Rodrigues(axis, 1.2)
	q := QuatFromMatrix(m)
	back := MatrixFromQuat(q)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, math.Abs(m[i][j]-back[i][j]), test.ShouldBeLessThan, 1e-6)
		}
	}
}

func TestGaussianSolve(t *testing.T) {
	a := [][]float64{
		{2, 1, -1},
		{-3, -1, 2},
		{-2, 1, 2},
	}
	b := []float64{8, -11, -3}
	x, ok := GaussianSolve(a, b)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(x[0]-2), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(x[1]-3), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(x[2]-(-1)), test.ShouldBeLessThan, 1e-6)
}

func TestRodriguesBetweenAlignsVectors(t *testing.T) {
	from := r3.Vector{X: 1, Y: 0, Z: 0}
	to := r3.Vector{X: 0, Y: 1, Z: 0}
	r := RodriguesBetween(from, to)
	rotated := r.MulVec(from)
	test.That(t, math.Abs(rotated.X-to.X), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(rotated.Y-to.Y), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(rotated.Z-to.Z), test.ShouldBeLessThan, 1e-6)
}
