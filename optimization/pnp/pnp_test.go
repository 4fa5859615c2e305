package pnp

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"go.viam.com/test"
)

func syntheticCorrespondences(cam Camera, pose Pose, points []r3.Vector) []Correspondence {
	out := make([]Correspondence, 0, len(points))
	for _, p := range points {
		pix, camZ := project(cam, pose, p)
		if camZ <= 0 {
			continue
		}
		out = append(out, Correspondence{WorldPoint: p, Pixel: pix})
	}
	return out
}

func TestSolveRecoversKnownPose(t *testing.T) {
	cam := Camera{Focal: 800, Aspect: 1, Principal: r2.Point{X: 320, Y: 240}}
	truePose := Pose{
		Position: r3.Vector{X: 0, Y: 0, Z: -5},
		Rotation: mathkernel.Identity3(),
	}
	points := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 1, Y: 1, Z: 0.5},
		{X: -1, Y: 0.5, Z: 0.2},
	}
	corr := syntheticCorrespondences(cam, truePose, points)
	test.That(t, len(corr), test.ShouldBeGreaterThan, 3)

	result := Solve(cam, corr, DefaultOptions())
	test.That(t, result.Success, test.ShouldBeTrue)
}

func TestSolveFailsWithTooFewPoints(t *testing.T) {
	cam := Camera{Focal: 800, Aspect: 1, Principal: r2.Point{X: 320, Y: 240}}
	result := Solve(cam, []Correspondence{
		{WorldPoint: r3.Vector{X: 0, Y: 0, Z: 0}, Pixel: r2.Point{X: 320, Y: 240}},
	}, DefaultOptions())
	test.That(t, result.Success, test.ShouldBeFalse)
}
