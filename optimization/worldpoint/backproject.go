package worldpoint

import (
	"github.com/golang/geo/r3"
	"github.com/katalvlaran/lvlath/bfs"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
)

// BackProjectResult is the outcome of back-projecting one single-camera
// feature against a connected anchor feature's constraint line.
type BackProjectResult struct {
	Point r3.Vector
	OK    bool
}

// ReachableAnchor runs BFS from featureID over the project's connectivity
// graph (Project.ConnectivityGraph, edges are Lines) and returns the
// nearest feature ID present in resolved (one that already has a
// multi-view world position), or ok=false if none is reachable (§4.6
// phase 3: "constrained by connected lines to multi-camera features").
func ReachableAnchor(proj *model.Project, featureID model.ID, resolved map[model.ID]r3.Vector) (model.ID, bool) {
	g := proj.ConnectivityGraph()
	if !g.HasVertex(string(featureID)) {
		return "", false
	}
	result, err := bfs.BFS(g, string(featureID))
	if err != nil {
		return "", false
	}
	best := model.ID("")
	bestDepth := -1
	for _, visitedID := range result.Order {
		id := model.ID(visitedID)
		if id == featureID {
			continue
		}
		if _, ok := resolved[id]; !ok {
			continue
		}
		if bestDepth == -1 || result.Depth[visitedID] < bestDepth {
			best, bestDepth = id, result.Depth[visitedID]
		}
	}
	return best, bestDepth != -1
}

// lineBetween finds the Line connecting two features, if any.
func lineBetween(proj *model.Project, a, b model.ID) (*model.Line, bool) {
	for _, line := range proj.Lines() {
		if (line.EndpointA == a && line.EndpointB == b) || (line.EndpointA == b && line.EndpointB == a) {
			return line, true
		}
	}
	return nil, false
}

// BackProject estimates a single-camera feature's world position (§4.6
// phase 3) by back-projecting its one observation ray and intersecting it
// with the plane implied by its connecting line to a resolved anchor
// feature: the line's axis constraint fixes two of the three coordinates
// relative to the anchor, leaving a 1D line-ray intersection.
func BackProject(proj *model.Project, viewOrigin, viewDir r3.Vector, featureID, anchorID model.ID, anchorPos r3.Vector) BackProjectResult {
	line, ok := lineBetween(proj, featureID, anchorID)
	if !ok {
		return BackProjectResult{OK: false}
	}
	axis, ok := line.Direction.SingleAxis()
	if !ok {
		// No axis constraint: fall back to the closest point on the ray to
		// the anchor, the best available estimate with a single view.
		return BackProjectResult{Point: closestPointOnRay(viewOrigin, viewDir, anchorPos), OK: true}
	}

	// The feature shares the anchor's coordinates on the two non-constrained
	// axes; solve for the ray parameter t that matches both.
	var otherAxes [2]model.Axis
	i := 0
	for _, a := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		if a != axis {
			otherAxes[i] = a
			i++
		}
	}

	target0 := axisValue(anchorPos, otherAxes[0])
	dir0 := axisValue(viewDir, otherAxes[0])
	origin0 := axisValue(viewOrigin, otherAxes[0])
	target1 := axisValue(anchorPos, otherAxes[1])
	dir1 := axisValue(viewDir, otherAxes[1])
	origin1 := axisValue(viewOrigin, otherAxes[1])

	// Least-squares t over both equations: origin_i + t*dir_i = target_i.
	num := dir0*(target0-origin0) + dir1*(target1-origin1)
	den := dir0*dir0 + dir1*dir1
	if den < mathkernel.SingularEpsilon {
		return BackProjectResult{OK: false}
	}
	t := num / den
	point := r3.Vector{
		X: viewOrigin.X + t*viewDir.X,
		Y: viewOrigin.Y + t*viewDir.Y,
		Z: viewOrigin.Z + t*viewDir.Z,
	}
	return BackProjectResult{Point: point, OK: true}
}

func axisValue(v r3.Vector, axis model.Axis) float64 {
	switch axis {
	case model.AxisX:
		return v.X
	case model.AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func closestPointOnRay(origin, dir, target r3.Vector) r3.Vector {
	rel := mathkernel.Sub(target, origin)
	dirNorm := mathkernel.Norm(dir)
	if dirNorm < mathkernel.SingularEpsilon {
		return origin
	}
	unit := mathkernel.Scale(dir, 1/dirNorm)
	t := mathkernel.Dot(rel, unit)
	return r3.Vector{X: origin.X + t*unit.X, Y: origin.Y + t*unit.Y, Z: origin.Z + t*unit.Z}
}
