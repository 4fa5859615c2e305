package snapshot

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

func newProject() *model.Project {
	proj := model.NewProject()
	proj.AddFeature(&model.Feature{ID: "f1", OptimizedXYZ: r3.Vector{X: 1, Y: 2, Z: 3}})
	vp := &model.Viewpoint{ID: "v1", Position: r3.Vector{X: 0, Y: 0, Z: -5}, Rotation: model.IdentityRotation(), EnabledInSolve: true}
	proj.AddViewpoint(vp)
	proj.AddObservation(&model.ImageObservation{ID: "o1", Viewpoint: "v1", Feature: "f1"})
	return proj
}

func TestRestoreUndoesMutation(t *testing.T) {
	proj := newProject()
	snap := Capture(proj)

	f, _ := proj.Feature("f1")
	f.OptimizedXYZ = r3.Vector{X: 99, Y: 99, Z: 99}
	vp, _ := proj.Viewpoint("v1")
	vp.Position = r3.Vector{X: 50, Y: 50, Z: 50}
	o, _ := proj.Observation("o1")
	o.IsOutlier = true

	snap.Restore()

	f, _ = proj.Feature("f1")
	test.That(t, f.OptimizedXYZ, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	vp, _ = proj.Viewpoint("v1")
	test.That(t, vp.Position, test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: -5})
	o, _ = proj.Observation("o1")
	test.That(t, o.IsOutlier, test.ShouldBeFalse)
}

func TestGuardCommitSkipsRestore(t *testing.T) {
	proj := newProject()
	guard := NewGuard(proj)
	f, _ := proj.Feature("f1")
	f.OptimizedXYZ = r3.Vector{X: 7, Y: 7, Z: 7}
	guard.Commit()
	guard.RestoreIfUncommitted()

	f, _ = proj.Feature("f1")
	test.That(t, f.OptimizedXYZ, test.ShouldResemble, r3.Vector{X: 7, Y: 7, Z: 7})
}

func TestGuardRestoresWithoutCommit(t *testing.T) {
	proj := newProject()
	guard := NewGuard(proj)
	f, _ := proj.Feature("f1")
	f.OptimizedXYZ = r3.Vector{X: 7, Y: 7, Z: 7}
	guard.RestoreIfUncommitted()

	f, _ = proj.Feature("f1")
	test.That(t, f.OptimizedXYZ, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
}
