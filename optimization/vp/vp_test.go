package vp

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/randx"
	"go.viam.com/test"
)

func mathIdentity() mathkernel.Matrix3 { return mathkernel.Identity3() }

func pt(x, y, z float64) r3.Vector { return r3.Vector{X: x, Y: y, Z: z} }

func TestDetectTwoLines(t *testing.T) {
	// Two lines both pointing towards (500, 100) in the image.
	lines := []model.VanishingLine{
		{A: r2.Point{X: 0, Y: 0}, B: r2.Point{X: 250, Y: 50}},
		{A: r2.Point{X: 0, Y: 200}, B: r2.Point{X: 250, Y: 150}},
	}
	vpPoint, ok := Detect(lines, randx.New(1))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(vpPoint.X-500), test.ShouldBeLessThan, 1e-6)
	test.That(t, math.Abs(vpPoint.Y-100), test.ShouldBeLessThan, 1e-6)
}

func TestDetectThreeLinesConverge(t *testing.T) {
	target := r2.Point{X: 400, Y: -200}
	mk := func(ax, ay float64) model.VanishingLine {
		return model.VanishingLine{A: r2.Point{X: ax, Y: ay}, B: target}
	}
	lines := []model.VanishingLine{mk(0, 0), mk(100, 50), mk(-50, 30)}
	vpPoint, ok := Detect(lines, randx.New(3))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(vpPoint.X-target.X), test.ShouldBeLessThan, 1.0)
	test.That(t, math.Abs(vpPoint.Y-target.Y), test.ShouldBeLessThan, 1.0)
}

func TestValidateRejectsFarVP(t *testing.T) {
	test.That(t, Validate(r2.Point{X: 100, Y: 100}), test.ShouldBeTrue)
	test.That(t, Validate(r2.Point{X: 100000, Y: 0}), test.ShouldBeFalse)
}

func TestEstimateFocalLength(t *testing.T) {
	vps := map[model.Axis]r2.Point{
		model.AxisX: {X: 1000, Y: 0},
		model.AxisY: {X: 0, Y: 1000},
	}
	f, ok := EstimateFocalLength(vps, r2.Point{X: 0, Y: 0}, 2000)
	test.That(t, ok, test.ShouldBeFalse)
	_ = f

	vps = map[model.Axis]r2.Point{
		model.AxisX: {X: 1000, Y: 0},
		model.AxisY: {X: -1000, Y: 0},
	}
	// f^2 = -((1000,0)·(-1000,0)) = 1e6, so f = 1000 < 2*2000 is accepted.
	f, ok = EstimateFocalLength(vps, r2.Point{X: 0, Y: 0}, 2000)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f, test.ShouldAlmostEqual, 1000.0)
}

func TestDeriveRotationCandidatesAllThreeAxes(t *testing.T) {
	// A mutually orthogonal triple for f=500: every pair satisfies
	// (vi-pp)·(vj-pp) = -f^2.
	vps := map[model.Axis]r2.Point{
		model.AxisX: {X: 500, Y: 250},
		model.AxisY: {X: -1000, Y: 1000},
		model.AxisZ: {X: -250, Y: -500},
	}
	candidates := DeriveRotationCandidates(vps, r2.Point{X: 0, Y: 0}, 500)
	test.That(t, len(candidates), test.ShouldEqual, 1)
	r := candidates[0]
	det := r.Determinant()
	test.That(t, math.Abs(det-1), test.ShouldBeLessThan, 1e-6)
}

func TestEstimatePositionTwoRays(t *testing.T) {
	rotation := mathIdentity()
	corr := []Correspondence{
		{WorldPoint: pt(0, 0, 10), Pixel: r2.Point{X: 500, Y: 500}},
		{WorldPoint: pt(1, 0, 10), Pixel: r2.Point{X: 550, Y: 500}},
	}
	_, ok := EstimatePosition(rotation, 500, r2.Point{X: 500, Y: 500}, corr)
	test.That(t, ok, test.ShouldBeTrue)
}
