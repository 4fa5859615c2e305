package outliers

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

func buildProject(t *testing.T, displaceLast float64) *model.Project {
	t.Helper()
	proj := model.NewProject()
	pts := []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}}
	var ids []model.ID
	for i, p := range pts {
		f := &model.Feature{ID: model.ID(string(rune('a' + i))), OptimizedXYZ: p}
		proj.AddFeature(f)
		ids = append(ids, f.ID)
	}
	vp := &model.Viewpoint{
		ID: "v1", Width: 640, Height: 480,
		Position: r3.Vector{X: 0.5, Y: 0.5, Z: -5}, Rotation: model.IdentityRotation(),
		Intrinsics: model.DefaultIntrinsics(640, 480), EnabledInSolve: true,
	}
	vp.Intrinsics.FocalLength = 1000
	proj.AddViewpoint(vp)
	for i, id := range ids {
		px, ok := vp.Project(pts[i])
		test.That(t, ok, test.ShouldBeTrue)
		if i == 3 {
			px.X += displaceLast
		}
		_, err := proj.AddObservation(&model.ImageObservation{Viewpoint: vp.ID, Feature: id, Pixel: r2.Point{X: px.X, Y: px.Y}})
		test.That(t, err, test.ShouldBeNil)
	}
	return proj
}

func TestDetectFlagsLargeDisplacement(t *testing.T) {
	proj := buildProject(t, 200)
	report := Detect(proj, 3.0, nil)
	test.That(t, len(report.FlaggedObservations), test.ShouldEqual, 1)
}

func TestDetectFlagsNothingWhenClean(t *testing.T) {
	proj := buildProject(t, 0)
	report := Detect(proj, 3.0, nil)
	test.That(t, len(report.FlaggedObservations), test.ShouldEqual, 0)
}

func TestExcludeFullyFlaggedCamerasDisablesAllOutlierCamera(t *testing.T) {
	proj := model.NewProject()
	proj.AddFeature(&model.Feature{ID: "f1"})
	vp := &model.Viewpoint{ID: "v1", EnabledInSolve: true}
	proj.AddViewpoint(vp)
	obs, _ := proj.AddObservation(&model.ImageObservation{Viewpoint: "v1", Feature: "f1"})
	obs.IsOutlier = true

	excluded := ExcludeFullyFlaggedCameras(proj, nil, nil)
	test.That(t, excluded, test.ShouldResemble, []model.ID{"v1"})
	after, _ := proj.Viewpoint("v1")
	test.That(t, after.EnabledInSolve, test.ShouldBeFalse)
}

func TestAllCamerasExcludedTrueWhenNoneEnabled(t *testing.T) {
	proj := model.NewProject()
	proj.AddViewpoint(&model.Viewpoint{ID: "v1", EnabledInSolve: false})
	test.That(t, AllCamerasExcluded(proj), test.ShouldBeTrue)
}

func TestAllCamerasExcludedFalseWhenEmpty(t *testing.T) {
	proj := model.NewProject()
	test.That(t, AllCamerasExcluded(proj), test.ShouldBeFalse)
}
