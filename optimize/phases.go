package optimize

import (
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/align"
	"github.com/mfagerlund/rotera/optimization/caminit"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/optimization/pnp"
	"github.com/mfagerlund/rotera/optimization/vp"
	"github.com/mfagerlund/rotera/optimization/worldpoint"
	"github.com/mfagerlund/rotera/solvelog"
)

// buildCameraInput assembles caminit's per-camera bundle from proj's
// vanishing lines and the feature positions currently known (locked,
// inferred, or previously optimized) for the given viewpoint.
func buildCameraInput(proj *model.Project, vpID model.ID) caminit.CameraInput {
	vpObj, _ := proj.Viewpoint(vpID)
	input := caminit.CameraInput{
		ID: vpID, Width: vpObj.Width, Height: vpObj.Height,
		AxisLines: vp.CollectAxisLines(proj, vpID),
	}
	for _, obs := range proj.ObservationsForViewpoint(vpID) {
		feat, ok := proj.Feature(obs.Feature)
		if !ok || !feat.IsFullyConstrained() {
			continue
		}
		world := feat.EffectiveXYZ()
		input.PnPCorrespondences = append(input.PnPCorrespondences, pnp.Correspondence{WorldPoint: world, Pixel: obs.Pixel})
		input.PositionCorrespondences = append(input.PositionCorrespondences, vp.Correspondence{WorldPoint: world, Pixel: obs.Pixel})
		input.ReprojCorrespondences = append(input.ReprojCorrespondences, vp.Correspondence{WorldPoint: world, Pixel: obs.Pixel})
	}
	return input
}

// capabilitiesFor reports the VP strategy capability flags (§4.5) for
// one camera's collected axis lines.
func capabilitiesFor(axisLines map[model.Axis][]model.VanishingLine) caminit.Capabilities {
	count := 0
	for _, lines := range axisLines {
		if len(lines) >= 2 {
			count++
		}
	}
	return caminit.Capabilities{AnyVPStrict: count >= 2, AnyVPRelaxed: count >= 1}
}

func hasFullyLockedPoint(proj *model.Project) bool {
	for _, f := range proj.Features() {
		if f.LockedXYZ.Full() {
			return true
		}
	}
	return false
}

// applyPose writes a caminit.Pose onto a viewpoint and marks it enabled.
func applyPose(vpObj *model.Viewpoint, pose caminit.Pose) {
	vpObj.Position = pose.Position
	vpObj.Rotation = mathkernel.QuatFromMatrix(pose.Rotation)
	vpObj.EnabledInSolve = true
}

// initializeCameras runs phase 1 (§4.5, §2): for every viewpoint that
// isn't pose-locked, pick the first viable strategy given the project's
// current state and run it. Cameras that fail every attempt are left
// disabled so later phases (late PnP, §4.5 "still uninitialized") can
// retry once more world points are known.
func initializeCameras(proj *model.Project, seed uint64, log *solvelog.Buffer) (initialized []model.ID, lateCandidates map[model.ID]bool) {
	lateCandidates = map[model.ID]bool{}
	hasLocked := hasFullyLockedPoint(proj)
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.IsPoseLocked {
			continue
		}
		input := buildCameraInput(proj, vpObj.ID)
		caps := capabilitiesFor(input.AxisLines)
		strategies := caminit.ViableStrategies(hasLocked, caps, 1)
		if len(strategies) == 0 {
			continue
		}
		result := caminit.Run(strategies[0], []caminit.CameraInput{input}, log, seed)
		pose, ok := result.Poses[vpObj.ID]
		if ok && pose != caminit.UninitializedMarker {
			applyPose(vpObj, pose)
			initialized = append(initialized, vpObj.ID)
			if !result.CamerasViaVP[vpObj.ID] {
				lateCandidates[vpObj.ID] = true
			}
		} else {
			lateCandidates[vpObj.ID] = true
		}
	}
	return initialized, lateCandidates
}

// lateInitializeCameras retries pose-less viewpoints via PnP alone now
// that phase 2 has resolved more world points (§4.5 "late PnP").
func lateInitializeCameras(proj *model.Project, log *solvelog.Buffer) []model.ID {
	var initialized []model.ID
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.IsPoseLocked || vpObj.EnabledInSolve {
			continue
		}
		input := buildCameraInput(proj, vpObj.ID)
		if len(input.PnPCorrespondences) < 3 {
			continue
		}
		result := caminit.Run(caminit.StrategyLatePnPOnly, []caminit.CameraInput{input}, log, 0)
		pose, ok := result.Poses[vpObj.ID]
		if ok && pose != caminit.UninitializedMarker {
			applyPose(vpObj, pose)
			initialized = append(initialized, vpObj.ID)
		}
	}
	return initialized
}

// initializeWorldPoints runs phase 2 (§4.6): axis-constraint propagation
// to a fixpoint, then multi-view triangulation or single-view
// back-projection for every feature still missing a coordinate.
func initializeWorldPoints(proj *model.Project, branches map[model.ID]worldpoint.InferenceBranch, log *solvelog.Buffer) worldpoint.PropagateResult {
	result := worldpoint.Propagate(proj, branches, log)

	poses := map[model.ID]worldpoint.ViewObservationPose{}
	for _, vpObj := range proj.Viewpoints() {
		if !vpObj.EnabledInSolve {
			continue
		}
		poses[vpObj.ID] = worldpoint.ViewObservationPose{Position: vpObj.Position, Rotation: mathkernel.MatrixFromQuat(vpObj.Rotation)}
	}

	resolved := map[model.ID]r3.Vector{}
	for _, f := range proj.Features() {
		if f.IsFullyConstrained() {
			resolved[f.ID] = f.EffectiveXYZ()
		}
	}

	for _, f := range proj.Features() {
		if f.IsFullyConstrained() {
			continue
		}
		views := worldpoint.ViewsForFeature(proj, f.ID, poses)
		if len(views) >= 2 {
			if point, ok := worldpoint.Triangulate(views); ok {
				f.OptimizedXYZ = worldpoint.RefineTriangulation(point, views)
				resolved[f.ID] = f.OptimizedXYZ
			}
			continue
		}
		if len(views) == 1 {
			anchorID, ok := worldpoint.ReachableAnchor(proj, f.ID, resolved)
			if !ok {
				continue
			}
			origin, direction, ok := singleObservationRay(proj, f.ID)
			if !ok {
				continue
			}
			br := worldpoint.BackProject(proj, origin, direction, f.ID, anchorID, resolved[anchorID])
			if br.OK {
				f.OptimizedXYZ = br.Point
				resolved[f.ID] = br.Point
			}
		}
	}
	return result
}

// singleObservationRay returns the camera-to-world ray for featureID's one
// enabled-camera observation, using the viewpoint's own back-projection
// (which already accounts for intrinsics and current pose).
func singleObservationRay(proj *model.Project, featureID model.ID) (origin, direction r3.Vector, ok bool) {
	feat, found := proj.Feature(featureID)
	if !found {
		return r3.Vector{}, r3.Vector{}, false
	}
	for _, obsID := range feat.ObservationIDs() {
		obs, found := proj.Observation(obsID)
		if !found {
			continue
		}
		vpObj, found := proj.Viewpoint(obs.Viewpoint)
		if !found || !vpObj.EnabledInSolve {
			continue
		}
		o, d := vpObj.BackProjectRay(obs.Pixel)
		return o, d, true
	}
	return r3.Vector{}, r3.Vector{}, false
}

// alignCoordinates runs phase coordinate-alignment (§4.7): rotates,
// scales, and translates the provisional reconstruction onto the
// locked-axis / locked-length ground truth. Axis directions come from
// the 3D Lines already known to lie along a single world axis (their
// solved endpoints give a real direction vector, unlike a 2D vanishing
// line which only constrains a camera's view of that axis).
func alignCoordinates(proj *model.Project) align.Result {
	axisDirections := map[model.Axis][]r3.Vector{}
	for _, line := range proj.Lines() {
		axis, ok := line.Direction.SingleAxis()
		if !ok {
			continue
		}
		a, okA := proj.Feature(line.EndpointA)
		b, okB := proj.Feature(line.EndpointB)
		if !okA || !okB {
			continue
		}
		dir := mathkernel.Sub(b.EffectiveXYZ(), a.EffectiveXYZ())
		axisDirections[axis] = append(axisDirections[axis], dir)
	}

	var lengths []align.LengthSample
	for _, line := range proj.Lines() {
		if line.TargetLength == nil {
			continue
		}
		a, okA := proj.Feature(line.EndpointA)
		b, okB := proj.Feature(line.EndpointB)
		if !okA || !okB {
			continue
		}
		current := mathkernel.Norm(mathkernel.Sub(b.EffectiveXYZ(), a.EffectiveXYZ()))
		lengths = append(lengths, align.LengthSample{Current: current, Target: *line.TargetLength})
	}

	var points []*align.FeaturePoint
	for _, f := range proj.Features() {
		points = append(points, &align.FeaturePoint{ID: f.ID, Position: f.EffectiveXYZ(), Locked: f.LockedXYZ.Any()})
	}
	var cameras []*align.CameraPose
	for _, vpObj := range proj.Viewpoints() {
		cameras = append(cameras, &align.CameraPose{ID: vpObj.ID, Position: vpObj.Position, Rotation: mathkernel.MatrixFromQuat(vpObj.Rotation)})
	}

	result := align.Align(align.Input{AxisDirections: axisDirections, LineLengths: lengths, Points: points, Cameras: cameras})

	for _, p := range points {
		if f, ok := proj.Feature(p.ID); ok {
			f.OptimizedXYZ = p.Position
		}
	}
	for _, c := range cameras {
		if vpObj, ok := proj.Viewpoint(c.ID); ok {
			vpObj.Position = c.Position
			vpObj.Rotation = mathkernel.QuatFromMatrix(c.Rotation)
		}
	}
	return result
}
