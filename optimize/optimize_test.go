package optimize

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

// lockedSquareScene builds a fully locked four-corner square observed by
// two locked cameras, mirroring optimization/solve's test fixture: with
// every pose and coordinate already known, Optimize should converge in a
// handful of iterations with near-zero reprojection error.
func lockedSquareScene(t *testing.T) *model.Project {
	t.Helper()
	proj := model.NewProject()

	corners := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}
	var ids []model.ID
	for i, c := range corners {
		f := &model.Feature{ID: model.ID(string(rune('a' + i)))}
		f.LockedXYZ.Set(model.AxisX, c.X)
		f.LockedXYZ.Set(model.AxisY, c.Y)
		f.LockedXYZ.Set(model.AxisZ, c.Z)
		proj.AddFeature(f)
		ids = append(ids, f.ID)
	}

	cam1 := &model.Viewpoint{
		ID: "cam1", Width: 640, Height: 480,
		Position: r3.Vector{X: 0.5, Y: 0.5, Z: -5}, Rotation: model.IdentityRotation(),
		Intrinsics: model.DefaultIntrinsics(640, 480), EnabledInSolve: true, IsPoseLocked: true,
	}
	cam1.Intrinsics.FocalLength = 1000
	cam2 := &model.Viewpoint{
		ID: "cam2", Width: 640, Height: 480,
		Position: r3.Vector{X: 2, Y: 0.5, Z: -5}, Rotation: model.IdentityRotation(),
		Intrinsics: model.DefaultIntrinsics(640, 480), EnabledInSolve: true, IsPoseLocked: true,
	}
	cam2.Intrinsics.FocalLength = 1000
	proj.AddViewpoint(cam1)
	proj.AddViewpoint(cam2)

	for _, cam := range []*model.Viewpoint{cam1, cam2} {
		for i, c := range corners {
			px, ok := cam.Project(c)
			test.That(t, ok, test.ShouldBeTrue)
			_, err := proj.AddObservation(&model.ImageObservation{Viewpoint: cam.ID, Feature: ids[i], Pixel: r2.Point{X: px.X, Y: px.Y}})
			test.That(t, err, test.ShouldBeNil)
		}
	}
	return proj
}

func TestOptimizeConvergesOnFullyLockedTwoCameraScene(t *testing.T) {
	proj := lockedSquareScene(t)
	opts := DefaultOptions()
	opts.MaxIterations = 50

	result := Optimize(proj, opts)
	test.That(t, result.Error, test.ShouldEqual, "")
	test.That(t, result.Converged, test.ShouldBeTrue)
	test.That(t, result.RMSReprojectionPx < 0.5, test.ShouldBeTrue)
}

func TestOptimizeLeavesLockedFeaturesUntouched(t *testing.T) {
	proj := lockedSquareScene(t)
	before, _ := proj.Feature("a")
	lockedBefore := before.EffectiveXYZ()

	Optimize(proj, DefaultOptions())

	after, _ := proj.Feature("a")
	test.That(t, after.EffectiveXYZ(), test.ShouldResemble, lockedBefore)
}

func TestOptimizeDeterministicAcrossRepeatedRuns(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIterations = 50

	proj1 := lockedSquareScene(t)
	r1 := Optimize(proj1, opts)

	proj2 := lockedSquareScene(t)
	r2 := Optimize(proj2, opts)

	test.That(t, r1.Converged, test.ShouldEqual, r2.Converged)
	test.That(t, math.Abs(r1.RMSReprojectionPx-r2.RMSReprojectionPx) < 1e-9, test.ShouldBeTrue)
}

func TestOptimizeCancellationRestoresEntryState(t *testing.T) {
	proj := lockedSquareScene(t)
	before, _ := proj.Feature("a")
	beforePos := before.EffectiveXYZ()

	opts := DefaultOptions()
	opts.YieldToUI = func(phase string) error {
		if phase == "stage1_solve" {
			return errCancelTest{}
		}
		return nil
	}

	result := Optimize(proj, opts)
	test.That(t, result.Error, test.ShouldNotEqual, "")

	after, _ := proj.Feature("a")
	test.That(t, after.EffectiveXYZ(), test.ShouldResemble, beforePos)
}

type errCancelTest struct{}

func (errCancelTest) Error() string { return "cancel requested by test" }

func TestQualityForMapsConvergedRMSToStars(t *testing.T) {
	test.That(t, qualityFor(false, 0).Stars, test.ShouldEqual, 0)
	test.That(t, qualityFor(true, 0.1).Stars, test.ShouldEqual, 5)
	test.That(t, qualityFor(true, 20).Stars, test.ShouldEqual, 1)
}

func TestMultiCameraSceneDetectsEnabledCameraCount(t *testing.T) {
	proj := lockedSquareScene(t)
	test.That(t, multiCameraScene(proj), test.ShouldBeTrue)

	cam2, _ := proj.Viewpoint("cam2")
	cam2.EnabledInSolve = false
	test.That(t, multiCameraScene(proj), test.ShouldBeFalse)
}
