package essential

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"go.viam.com/test"
)

func TestSolveRejectsTooFewPoints(t *testing.T) {
	cam := Camera{Focal: 800, Aspect: 1, Principal: r2.Point{X: 320, Y: 240}}
	result := Solve(cam, cam, []Correspondence{
		{PixelA: r2.Point{X: 100, Y: 100}, PixelB: r2.Point{X: 110, Y: 100}},
	})
	test.That(t, result.Success, test.ShouldBeFalse)
}

func TestSolveOnSyntheticTranslation(t *testing.T) {
	camA := Camera{Focal: 800, Aspect: 1, Principal: r2.Point{X: 320, Y: 240}}
	camB := camA
	// Camera B translated +1 along X from camera A, same orientation.
	poseBRelA := Pose{Rotation: mathkernel.Identity3(), Translation: r3.Vector{X: 1, Y: 0, Z: 0}}

	points := []r3.Vector{
		{X: 0.2, Y: 0.1, Z: 5}, {X: -0.3, Y: 0.4, Z: 6}, {X: 0.1, Y: -0.2, Z: 4},
		{X: 0.5, Y: 0.3, Z: 7}, {X: -0.4, Y: -0.1, Z: 5}, {X: 0.3, Y: 0.2, Z: 6},
		{X: -0.1, Y: 0.5, Z: 8}, {X: 0.4, Y: -0.3, Z: 5}, {X: -0.2, Y: 0.2, Z: 6},
	}

	var corr []Correspondence
	for _, p := range points {
		pixA, okA := projectPinhole(camA, p)
		camBPt := mathkernel.Sub(p, poseBRelA.Translation)
		pixB, okB := projectPinhole(camB, camBPt)
		if okA && okB {
			corr = append(corr, Correspondence{PixelA: pixA, PixelB: pixB})
		}
	}
	test.That(t, len(corr), test.ShouldBeGreaterThan, 7)

	result := Solve(camA, camB, corr)
	test.That(t, result.Success, test.ShouldBeTrue)
}

func projectPinhole(cam Camera, p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	u := cam.Focal*p.X/p.Z + cam.Principal.X
	v := cam.Focal*cam.Aspect*p.Y/p.Z + cam.Principal.Y
	return r2.Point{X: u, Y: v}, true
}
