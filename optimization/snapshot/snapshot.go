// Package snapshot implements the scope-bound state snapshot/restore
// guard of spec §4.11: before Stage-1 and before the full solve, every
// feature's optimized/inferred coordinates and every viewpoint's full
// mutable state (plus observation outlier flags) are captured so a
// divergent or cancelled phase can roll back without partial writes.
package snapshot

import (
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"gonum.org/v1/gonum/num/quat"
)

type featureCopy struct {
	optimizedXYZ r3.Vector
	inferredXYZ  model.AxisValues
}

type viewpointCopy struct {
	position       r3.Vector
	rotation       quat.Number
	intrinsics     model.Intrinsics
	enabledInSolve bool
	isPoseLocked   bool
	isZReflected   bool
}

// Snapshot is a point-in-time copy of every mutable field the solver
// touches. It owns its own copies; Restore never aliases live project
// state, so mutating the project after Capture cannot corrupt it.
type Snapshot struct {
	proj *model.Project

	features     map[model.ID]featureCopy
	viewpoints   map[model.ID]viewpointCopy
	observations map[model.ID]bool // IsOutlier
}

// Capture records the current state of every feature, viewpoint, and
// observation in proj. The returned Snapshot is independent of any
// subsequent mutation of proj.
func Capture(proj *model.Project) *Snapshot {
	s := &Snapshot{
		proj:         proj,
		features:     map[model.ID]featureCopy{},
		viewpoints:   map[model.ID]viewpointCopy{},
		observations: map[model.ID]bool{},
	}
	for _, f := range proj.Features() {
		s.features[f.ID] = featureCopy{optimizedXYZ: f.OptimizedXYZ, inferredXYZ: f.InferredXYZ}
	}
	for _, vp := range proj.Viewpoints() {
		s.viewpoints[vp.ID] = viewpointCopy{
			position:       vp.Position,
			rotation:       vp.Rotation,
			intrinsics:     vp.Intrinsics,
			enabledInSolve: vp.EnabledInSolve,
			isPoseLocked:   vp.IsPoseLocked,
			isZReflected:   vp.IsZReflected,
		}
	}
	for _, o := range proj.Observations() {
		s.observations[o.ID] = o.IsOutlier
	}
	return s
}

// Restore writes every captured value back into the project the
// snapshot was taken from, undoing any mutation made since Capture.
func (s *Snapshot) Restore() {
	for id, fc := range s.features {
		f, ok := s.proj.Feature(id)
		if !ok {
			continue
		}
		f.OptimizedXYZ = fc.optimizedXYZ
		f.InferredXYZ = fc.inferredXYZ
	}
	for id, vc := range s.viewpoints {
		vp, ok := s.proj.Viewpoint(id)
		if !ok {
			continue
		}
		vp.Position = vc.position
		vp.Rotation = vc.rotation
		vp.Intrinsics = vc.intrinsics
		vp.EnabledInSolve = vc.enabledInSolve
		vp.IsPoseLocked = vc.isPoseLocked
		vp.IsZReflected = vc.isZReflected
	}
	for id, outlier := range s.observations {
		o, ok := s.proj.Observation(id)
		if !ok {
			continue
		}
		o.IsOutlier = outlier
	}
}

// Guard is a scope-bound snapshot: call Commit once the phase
// completes successfully, or let RestoreIfUncommitted undo the phase's
// mutations on any other exit path (the "save state / restore state"
// pattern of §9, expressed as an owned-copy guard rather than a
// finalizer, since Go has no implicit drop).
type Guard struct {
	snap      *Snapshot
	committed bool
}

// NewGuard captures proj's state and returns a guard over it.
func NewGuard(proj *model.Project) *Guard {
	return &Guard{snap: Capture(proj)}
}

// Commit marks the guard's snapshot as no longer needed; RestoreIfUncommitted
// becomes a no-op after this call.
func (g *Guard) Commit() { g.committed = true }

// RestoreIfUncommitted restores the captured state unless Commit was
// already called. Intended to be called via defer immediately after
// NewGuard, mirroring the teacher's defer-cleanup idiom.
func (g *Guard) RestoreIfUncommitted() {
	if !g.committed {
		g.snap.Restore()
	}
}

// Snapshot exposes the guard's underlying snapshot, e.g. so a caller can
// restore it explicitly mid-phase (§4.9's "restore the Stage-1 snapshot")
// without waiting for scope exit.
func (g *Guard) Snapshot() *Snapshot { return g.snap }
