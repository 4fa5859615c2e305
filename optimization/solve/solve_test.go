package solve

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// squareProject builds a locked unit-square-ish scene observed by two cameras
// so reprojection residuals have a real, solvable system. One feature's
// X coordinate starts perturbed off its true value to give the solver
// something to converge to.
func squareProject(t *testing.T) (*model.Project, model.ID) {
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
		if i != 1 {
			f.LockedXYZ.Set(model.AxisX, c.X)
			f.LockedXYZ.Set(model.AxisY, c.Y)
			f.LockedXYZ.Set(model.AxisZ, c.Z)
		} else {
			// Leave feature "b" free on X, seeded off-target.
			f.LockedXYZ.Set(model.AxisY, c.Y)
			f.LockedXYZ.Set(model.AxisZ, c.Z)
			f.OptimizedXYZ = r3.Vector{X: 1.3, Y: 0, Z: 0}
		}
		proj.AddFeature(f)
		ids = append(ids, f.ID)
	}

	cam1 := &model.Viewpoint{
		ID: "cam1", Width: 640, Height: 480,
		Position:       r3.Vector{X: 0.5, Y: 0.5, Z: -5},
		Rotation:       model.IdentityRotation(),
		Intrinsics:     model.DefaultIntrinsics(640, 480),
		EnabledInSolve: true, IsPoseLocked: true,
	}
	cam1.Intrinsics.FocalLength = 1000
	proj.AddViewpoint(cam1)

	cam2 := &model.Viewpoint{
		ID: "cam2", Width: 640, Height: 480,
		Position:       r3.Vector{X: 2, Y: 0.5, Z: -5},
		Rotation:       model.IdentityRotation(),
		Intrinsics:     model.DefaultIntrinsics(640, 480),
		EnabledInSolve: true, IsPoseLocked: true,
	}
	cam2.Intrinsics.FocalLength = 1000
	proj.AddViewpoint(cam2)

	for _, cam := range []*model.Viewpoint{cam1, cam2} {
		for i, c := range corners {
			px, ok := cam.Project(c)
			test.That(t, ok, test.ShouldBeTrue)
			_, err := proj.AddObservation(&model.ImageObservation{
				Viewpoint: cam.ID,
				Feature:   ids[i],
				Pixel:     r2.Point{X: px.X, Y: px.Y},
			})
			test.That(t, err, test.ShouldBeNil)
		}
	}
	return proj, ids[1]
}

func TestRunConvergesFreeFeatureToObservedPosition(t *testing.T) {
	proj, freeID := squareProject(t)
	opts := DefaultOptions()
	result, err := Run(proj, opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Mode, test.ShouldEqual, "dense")

	f, ok := proj.Feature(freeID)
	test.That(t, ok, test.ShouldBeTrue)
	eff := f.EffectiveXYZ()
	test.That(t, math.Abs(eff.X-1) < 1e-3, test.ShouldBeTrue)
}

func TestRunLeavesLockedCoordinatesUntouched(t *testing.T) {
	proj, _ := squareProject(t)
	before, _ := proj.Feature("a")
	lockedBefore := before.EffectiveXYZ()

	_, err := Run(proj, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)

	after, _ := proj.Feature("a")
	lockedAfter := after.EffectiveXYZ()
	test.That(t, lockedAfter, test.ShouldResemble, lockedBefore)
}

func TestRunProducesUnitQuaternionCameras(t *testing.T) {
	proj, _ := squareProject(t)
	vp, _ := proj.Viewpoint("cam1")
	vp.IsPoseLocked = false

	_, err := Run(proj, DefaultOptions())
	test.That(t, err, test.ShouldBeNil)

	after, _ := proj.Viewpoint("cam1")
	q := after.Rotation
	normSq := q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
	test.That(t, math.Abs(normSq-1) < 1e-9, test.ShouldBeTrue)
}

func TestHasFeatureCouplingDetectsEnabledConstraint(t *testing.T) {
	proj := model.NewProject()
	proj.AddFeature(&model.Feature{ID: "a"})
	proj.AddFeature(&model.Feature{ID: "b"})
	test.That(t, hasFeatureCoupling(proj), test.ShouldBeFalse)

	proj.AddConstraint(&model.Constraint{Kind: model.ConstraintPointsDistance, PointA: "a", PointB: "b", Distance: 1, Enabled: true})
	test.That(t, hasFeatureCoupling(proj), test.ShouldBeTrue)
}

func TestSolveDenseAndSparseAgreeOnPureReprojection(t *testing.T) {
	proj, freeID := squareProject(t)
	layout := BuildLayout(proj, false)
	x := layout.InitialParams(proj)
	residuals := Evaluate(proj, layout, x, DefaultOptions())

	deltaDense, err := solveDense(layout, residuals, 1e-3)
	test.That(t, err, test.ShouldBeNil)
	deltaSparse, err := solveSparse(layout, residuals, 1e-3)
	test.That(t, err, test.ShouldBeNil)

	for i := range deltaDense {
		test.That(t, math.Abs(deltaDense[i]-deltaSparse[i]) < 1e-6, test.ShouldBeTrue)
	}
	_ = freeID
}

func TestPerturbKeepsUnitNorm(t *testing.T) {
	base := model.IdentityRotation()
	q := perturb(base, 0.1, -0.2, 0.05)
	normSq := q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
	test.That(t, math.Abs(normSq-1) < 1e-12, test.ShouldBeTrue)
	_ = quat.Number{}
	_ = mathkernel.Identity3()
}
