package vp

import (
	"github.com/mfagerlund/rotera/model"
)

// CollectAxisLines gathers, per axis, the user-drawn vanishing lines
// owned by the viewpoint plus the virtual vanishing lines synthesised
// from any 3D Line whose direction is a single axis and whose both
// endpoints have observations in this viewpoint (§4.2).
func CollectAxisLines(proj *model.Project, vpID model.ID) map[model.Axis][]model.VanishingLine {
	out := map[model.Axis][]model.VanishingLine{}
	for _, vl := range proj.VanishingLinesForViewpoint(vpID) {
		out[vl.Axis] = append(out[vl.Axis], *vl)
	}

	obsByFeature := map[model.ID]model.ID{} // feature -> observation pixel owner lookup
	for _, o := range proj.ObservationsForViewpoint(vpID) {
		obsByFeature[o.Feature] = o.ID
	}

	for _, line := range proj.Lines() {
		axis, ok := line.Direction.SingleAxis()
		if !ok {
			continue
		}
		obsAID, hasA := obsByFeature[line.EndpointA]
		obsBID, hasB := obsByFeature[line.EndpointB]
		if !hasA || !hasB {
			continue
		}
		obsA, _ := proj.Observation(obsAID)
		obsB, _ := proj.Observation(obsBID)
		out[axis] = append(out[axis], model.VanishingLine{
			A:            obsA.Pixel,
			B:            obsB.Pixel,
			Axis:         axis,
			Virtual:      true,
			SourceLineID: line.ID,
		})
	}
	return out
}
