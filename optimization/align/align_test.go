package align

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"go.viam.com/test"
)

func TestAxisRotationAssignsNearestPrincipalDirection(t *testing.T) {
	directions := map[model.Axis][]r3.Vector{
		model.AxisZ: {{X: 0.02, Y: -0.01, Z: 5}, {X: -0.01, Y: 0.02, Z: 4}},
		model.AxisX: {{X: 3, Y: 0.01, Z: -0.02}},
	}
	points := []*FeaturePoint{{ID: "a", Position: r3.Vector{X: 1, Y: 2, Z: 3}}}
	result := Align(Input{AxisDirections: directions, Points: points})
	test.That(t, result.Applied, test.ShouldBeTrue)

	zCol := mathkernel.Col(result.Rotation, int(model.AxisZ))
	test.That(t, math.Abs(zCol.Z) > 0.9, test.ShouldBeTrue)
}

func TestRecoverScaleUsesMedianRatio(t *testing.T) {
	samples := []LengthSample{{Current: 10, Target: 5}, {Current: 20, Target: 10}, {Current: 9, Target: 3}}
	scale, ok := recoverScale(samples)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, scale, test.ShouldEqual, 2.0)
}

func TestChooseAnchorPrefersLockedPoint(t *testing.T) {
	points := []*FeaturePoint{
		{ID: "free", Position: r3.Vector{X: 100, Y: 100, Z: 100}},
		{ID: "locked", Position: r3.Vector{X: 1, Y: 2, Z: 3}, Locked: true},
	}
	anchor := chooseAnchor(points)
	test.That(t, anchor, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
}

func TestAlignTranslatesAnchorToOrigin(t *testing.T) {
	points := []*FeaturePoint{
		{ID: "locked", Position: r3.Vector{X: 5, Y: 5, Z: 5}, Locked: true},
		{ID: "other", Position: r3.Vector{X: 10, Y: 5, Z: 5}},
	}
	cameras := []*CameraPose{{ID: "cam", Position: r3.Vector{X: 0, Y: 0, Z: 0}, Rotation: mathkernel.Identity3()}}

	Align(Input{Points: points, Cameras: cameras})

	test.That(t, points[0].Position, test.ShouldResemble, r3.Vector{})
	test.That(t, points[1].Position, test.ShouldResemble, r3.Vector{X: 5, Y: 0, Z: 0})
}

func TestDisambiguateSignPrefersLowerQualityResidual(t *testing.T) {
	calls := 0
	quality := func(rotation mathkernel.Matrix3) float64 {
		calls++
		col := mathkernel.Col(rotation, int(model.AxisX))
		if col.X < 0 {
			return 1.0
		}
		return 5.0
	}
	sign := disambiguateSign(model.AxisX, r3.Vector{X: 1}, quality)
	test.That(t, sign, test.ShouldEqual, -1.0)
	test.That(t, calls, test.ShouldEqual, 2)
}
