package handedness

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

func TestCorrectNoOpWhenAlreadyRightHanded(t *testing.T) {
	proj := model.NewProject()
	f := &model.Feature{ID: "a", OptimizedXYZ: r3.Vector{X: 1, Y: 0, Z: 0}}
	f.LockedXYZ.Set(model.AxisX, 1)
	proj.AddFeature(f)
	vp := &model.Viewpoint{ID: "v", Rotation: model.IdentityRotation(), IsZReflected: true}
	proj.AddViewpoint(vp)

	result := Correct(proj, Anchors{}, nil)
	test.That(t, result.Applied, test.ShouldBeFalse)
	after, _ := proj.Viewpoint("v")
	test.That(t, after.IsZReflected, test.ShouldBeFalse)
}

func TestCorrectFlipsOnSignMismatch(t *testing.T) {
	proj := model.NewProject()
	fx := &model.Feature{ID: "x", OptimizedXYZ: r3.Vector{X: -1, Y: 0, Z: 0}}
	fx.LockedXYZ.Set(model.AxisX, 1)
	proj.AddFeature(fx)
	fy := &model.Feature{ID: "y", OptimizedXYZ: r3.Vector{X: 0, Y: -1, Z: 0}}
	fy.LockedXYZ.Set(model.AxisY, 1)
	proj.AddFeature(fy)
	vp := &model.Viewpoint{ID: "v", Rotation: model.IdentityRotation()}
	proj.AddViewpoint(vp)

	result := Correct(proj, Anchors{}, nil)
	test.That(t, result.Applied, test.ShouldBeTrue)
	test.That(t, len(result.FlippedAxes), test.ShouldEqual, 2)

	after, _ := proj.Feature("x")
	test.That(t, math.Abs(after.OptimizedXYZ.X-1) < 1e-9, test.ShouldBeTrue)
	afterY, _ := proj.Feature("y")
	test.That(t, math.Abs(afterY.OptimizedXYZ.Y-1) < 1e-9, test.ShouldBeTrue)
}

func TestCorrectUsesDeterminantWhenNoLockedCoordinates(t *testing.T) {
	proj := model.NewProject()
	proj.AddFeature(&model.Feature{ID: "o", OptimizedXYZ: r3.Vector{}})
	proj.AddFeature(&model.Feature{ID: "x", OptimizedXYZ: r3.Vector{X: 1}})
	proj.AddFeature(&model.Feature{ID: "z", OptimizedXYZ: r3.Vector{Z: -1}}) // left-handed: (-Z) x X gives -Y instead of +Y
	vp := &model.Viewpoint{ID: "v", Rotation: model.IdentityRotation()}
	proj.AddViewpoint(vp)

	result := Correct(proj, Anchors{Origin: "o", PlusX: "x", PlusZ: "z"}, nil)
	test.That(t, result.Applied, test.ShouldBeTrue)
}

func TestCorrectMarksZReflectedOnOddFlipCount(t *testing.T) {
	proj := model.NewProject()
	fx := &model.Feature{ID: "x", OptimizedXYZ: r3.Vector{X: -1}}
	fx.LockedXYZ.Set(model.AxisX, 1)
	proj.AddFeature(fx)
	vp := &model.Viewpoint{ID: "v", Rotation: model.IdentityRotation()}
	proj.AddViewpoint(vp)

	result := Correct(proj, Anchors{}, nil)
	test.That(t, result.Applied, test.ShouldBeTrue)
	test.That(t, result.IsZReflected, test.ShouldBeTrue)
	after, _ := proj.Viewpoint("v")
	test.That(t, after.IsZReflected, test.ShouldBeTrue)
}
