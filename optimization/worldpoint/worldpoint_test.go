package worldpoint

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"go.viam.com/test"
)

func newTestProject() (*model.Project, *model.Feature, *model.Feature) {
	proj := model.NewProject()
	a := proj.AddFeature(&model.Feature{Name: "A"})
	a.LockedXYZ.Set(model.AxisX, 0)
	a.LockedXYZ.Set(model.AxisY, 0)
	a.LockedXYZ.Set(model.AxisZ, 0)
	b := proj.AddFeature(&model.Feature{Name: "B"})
	return proj, a, b
}

func TestPropagateCopiesOtherAxesAcrossSingleAxisLine(t *testing.T) {
	proj, a, b := newTestProject()
	_, err := proj.AddLine(&model.Line{EndpointA: a.ID, EndpointB: b.ID, Direction: model.DirectionZ})
	test.That(t, err, test.ShouldEqual, nil)

	result := Propagate(proj, nil, nil)
	test.That(t, len(result.AmbiguousLines), test.ShouldEqual, 1)

	bx, ok := b.InferredXYZ.Get(model.AxisX)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, bx, test.ShouldEqual, 0.0)
	by, ok := b.InferredXYZ.Get(model.AxisY)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, by, test.ShouldEqual, 0.0)
	_, zOK := b.InferredXYZ.Get(model.AxisZ)
	test.That(t, zOK, test.ShouldBeFalse)
}

func TestPropagateResolvesConstrainedAxisWhenOneEndpointKnown(t *testing.T) {
	proj, a, b := newTestProject()
	b.InferredXYZ.Set(model.AxisZ, 5)
	_, err := proj.AddLine(&model.Line{EndpointA: a.ID, EndpointB: b.ID, Direction: model.DirectionZ})
	test.That(t, err, test.ShouldEqual, nil)

	result := Propagate(proj, nil, nil)
	test.That(t, len(result.AmbiguousLines), test.ShouldEqual, 0)

	az, ok := a.InferredXYZ.Get(model.AxisZ)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, az, test.ShouldEqual, 5.0)
}

func TestTriangulateRecoversKnownPoint(t *testing.T) {
	truth := r3.Vector{X: 0.3, Y: -0.2, Z: 6}
	var views []ViewObservation
	positions := []r3.Vector{{X: -1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	for _, pos := range positions {
		w2c := mathkernel.Identity3()
		rel := mathkernel.Sub(truth, pos)
		cam := w2c.MulVec(rel)
		u := 800*cam.X/cam.Z + 320
		v := 800*(-cam.Y/cam.Z) + 240
		views = append(views, ViewObservation{
			Position:  pos,
			Rotation:  mathkernel.Identity3(),
			Focal:     800,
			Aspect:    1,
			Principal: struct{ X, Y float64 }{320, 240},
			Pixel:     struct{ X, Y float64 }{u, v},
		})
	}

	point, ok := Triangulate(views)
	test.That(t, ok, test.ShouldBeTrue)
	refined := RefineTriangulation(point, views)

	dist := mathkernel.Norm(mathkernel.Sub(refined, truth))
	test.That(t, dist, test.ShouldBeLessThan, 0.05)
}

func TestTriangulateRejectsSingleView(t *testing.T) {
	_, ok := Triangulate([]ViewObservation{{}})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestReachableAnchorFindsNearestResolvedFeature(t *testing.T) {
	proj := model.NewProject()
	a := proj.AddFeature(&model.Feature{Name: "A"})
	b := proj.AddFeature(&model.Feature{Name: "B"})
	c := proj.AddFeature(&model.Feature{Name: "C"})
	_, err := proj.AddLine(&model.Line{EndpointA: a.ID, EndpointB: b.ID, Direction: model.DirectionZ})
	test.That(t, err, test.ShouldEqual, nil)
	_, err = proj.AddLine(&model.Line{EndpointA: b.ID, EndpointB: c.ID, Direction: model.DirectionX})
	test.That(t, err, test.ShouldEqual, nil)

	resolved := map[model.ID]r3.Vector{c.ID: {X: 1, Y: 2, Z: 3}}
	anchor, ok := ReachableAnchor(proj, a.ID, resolved)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, anchor, test.ShouldEqual, c.ID)
}

func TestReachableAnchorFailsWhenDisconnected(t *testing.T) {
	proj := model.NewProject()
	a := proj.AddFeature(&model.Feature{Name: "A"})
	proj.AddFeature(&model.Feature{Name: "Lonely"})
	_, ok := ReachableAnchor(proj, a.ID, map[model.ID]r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestBackProjectIntersectsAxisConstrainedLine(t *testing.T) {
	proj := model.NewProject()
	feat := proj.AddFeature(&model.Feature{Name: "single-view"})
	anchor := proj.AddFeature(&model.Feature{Name: "anchor"})
	_, err := proj.AddLine(&model.Line{EndpointA: feat.ID, EndpointB: anchor.ID, Direction: model.DirectionZ})
	test.That(t, err, test.ShouldEqual, nil)

	anchorPos := r3.Vector{X: 2, Y: 3, Z: 10}
	// Ray from the origin through a point that shares anchor's X, Y but a
	// different Z, the geometry phase-3 back-projection is meant to solve.
	viewOrigin := r3.Vector{}
	target := r3.Vector{X: 2, Y: 3, Z: 4}
	dir := mathkernel.Sub(target, viewOrigin)

	result := BackProject(proj, viewOrigin, dir, feat.ID, anchor.ID, anchorPos)
	test.That(t, result.OK, test.ShouldBeTrue)
	test.That(t, math.Abs(result.Point.X-2) < 1e-6, test.ShouldBeTrue)
	test.That(t, math.Abs(result.Point.Y-3) < 1e-6, test.ShouldBeTrue)
}
