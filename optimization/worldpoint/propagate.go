// Package worldpoint implements the world-point initializer (spec §4.6):
// axis-constraint propagation to a fixpoint, multi-view triangulation,
// and single-camera back-projection.
package worldpoint

import (
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/solvelog"
)

// InferenceBranch is a sign choice for one ambiguous axis-constrained
// line: both endpoints are free on the constrained axis, so propagation
// must pick which one is positive (§4.6 phase 1, §4.12).
type InferenceBranch struct {
	LineID       model.ID
	PositiveEndA bool // true: EndpointA is the positive end along the constrained axis (Propagate does not read it)
}

// PropagateResult is the outcome of one fixpoint propagation pass.
type PropagateResult struct {
	AmbiguousLines []model.ID
}

// Propagate walks every Line with a single-axis direction, copying a
// known non-constrained-axis value from one endpoint's effective
// coordinates to the other's InferredXYZ, iterating to a fixpoint (§4.6
// phase 1). For a line where neither endpoint is constrained on the axis,
// a branch in branches stops the line being reported as ambiguous but
// sets no coordinate; lines without a supplied branch are recorded as
// ambiguous and skipped.
func Propagate(proj *model.Project, branches map[model.ID]InferenceBranch, log *solvelog.Buffer) PropagateResult {
	var ambiguous []model.ID
	changed := true
	for changed {
		changed = false
		for _, line := range proj.Lines() {
			axis, ok := line.Direction.SingleAxis()
			if !ok {
				continue
			}
			a, _ := proj.Feature(line.EndpointA)
			b, _ := proj.Feature(line.EndpointB)
			if a == nil || b == nil {
				continue
			}
			if propagateOtherAxes(a, b, axis) {
				changed = true
			}
			if propagateConstrainedAxis(a, b, axis, line.ID, branches, &ambiguous) {
				changed = true
			}
		}
	}
	if log != nil && len(ambiguous) > 0 {
		log.Logf(solvelog.TagInit, "axis-constraint propagation found %d ambiguous line(s)", len(ambiguous))
	}
	return PropagateResult{AmbiguousLines: dedupeIDs(ambiguous)}
}

// propagateOtherAxes copies known values on the two non-constrained axes
// between endpoints (a single-axis Line means both endpoints share the
// other two coordinates).
func propagateOtherAxes(a, b *model.Feature, constrained model.Axis) bool {
	changed := false
	for _, axis := range [...]model.Axis{model.AxisX, model.AxisY, model.AxisZ} {
		if axis == constrained {
			continue
		}
		changed = propagateAxisValue(a, b, axis) || changed
		changed = propagateAxisValue(b, a, axis) || changed
	}
	return changed
}

func propagateAxisValue(from, to *model.Feature, axis model.Axis) bool {
	v, ok := effectiveAxisKnown(from, axis)
	if !ok {
		return false
	}
	if _, alreadyKnown := effectiveAxisKnown(to, axis); alreadyKnown {
		return false
	}
	to.InferredXYZ.Set(axis, v)
	return true
}

func effectiveAxisKnown(f *model.Feature, axis model.Axis) (float64, bool) {
	if v, ok := f.LockedXYZ.Get(axis); ok {
		return v, true
	}
	if v, ok := f.InferredXYZ.Get(axis); ok {
		return v, true
	}
	return 0, false
}

// propagateConstrainedAxis handles the axis the Line itself constrains:
// if exactly one endpoint knows it, copy to the other; if neither knows
// it, the sign is ambiguous and requires a branch decision.
func propagateConstrainedAxis(a, b *model.Feature, axis model.Axis, lineID model.ID, branches map[model.ID]InferenceBranch, ambiguous *[]model.ID) bool {
	aKnown, aOK := effectiveAxisKnown(a, axis)
	bKnown, bOK := effectiveAxisKnown(b, axis)
	switch {
	case aOK && !bOK:
		b.InferredXYZ.Set(axis, aKnown)
		return true
	case bOK && !aOK:
		a.InferredXYZ.Set(axis, bKnown)
		return true
	case !aOK && !bOK:
		branch, hasBranch := branches[lineID]
		if !hasBranch {
			*ambiguous = append(*ambiguous, lineID)
			return false
		}
		// A supplied branch is not applied: neither the sign nor the
		// magnitude of either endpoint on this axis is set here.
		_ = branch
		return false
	default:
		return false
	}
}

func dedupeIDs(ids []model.ID) []model.ID {
	seen := map[model.ID]bool{}
	var out []model.ID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
