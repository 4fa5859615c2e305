package model

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/pkg/errors"
)

// Project owns every Feature, Line, Viewpoint, ImageObservation, and
// Constraint in semantic containers keyed by ID. Cross-references
// (line<->feature, observation<->feature, observation<->viewpoint) are
// relations resolved through Project's lookup methods, never ownership
// (§3). A connectivity graph over features (edges are Lines) backs
// optimization/worldpoint's search for a back-projection anchor.
type Project struct {
	features      map[ID]*Feature
	lines         map[ID]*Line
	viewpoints    map[ID]*Viewpoint
	observations  map[ID]*ImageObservation
	vanishingLines map[ID]*VanishingLine
	constraints   []*Constraint

	connectivity *core.Graph
	nextID       int
}

// NewProject returns an empty project arena.
func NewProject() *Project {
	return &Project{
		features:       make(map[ID]*Feature),
		lines:          make(map[ID]*Line),
		viewpoints:     make(map[ID]*Viewpoint),
		observations:   make(map[ID]*ImageObservation),
		vanishingLines: make(map[ID]*VanishingLine),
		connectivity:   core.NewGraph(core.WithLoops()),
	}
}

func (p *Project) genID(prefix string) ID {
	p.nextID++
	return ID(fmt.Sprintf("%s%d", prefix, p.nextID))
}

// AddFeature inserts a feature, assigning an ID if empty.
func (p *Project) AddFeature(f *Feature) *Feature {
	if f.ID == "" {
		f.ID = p.genID("feat")
	}
	p.features[f.ID] = f
	if err := p.connectivity.AddVertex(string(f.ID)); err != nil && !errors.Is(err, core.ErrEmptyVertexID) {
		// vertex already present is not an error condition here
		_ = err
	}
	return f
}

// Feature looks up a feature by ID.
func (p *Project) Feature(id ID) (*Feature, bool) {
	f, ok := p.features[id]
	return f, ok
}

// Features returns all features, ordered by ID for determinism.
func (p *Project) Features() []*Feature {
	out := make([]*Feature, 0, len(p.features))
	for _, f := range p.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddLine inserts a line between two existing features, registering the
// back-references on both endpoints and an edge in the connectivity graph.
func (p *Project) AddLine(l *Line) (*Line, error) {
	if _, ok := p.features[l.EndpointA]; !ok {
		return nil, errors.Errorf("line endpoint A %q not found", l.EndpointA)
	}
	if _, ok := p.features[l.EndpointB]; !ok {
		return nil, errors.Errorf("line endpoint B %q not found", l.EndpointB)
	}
	if l.EndpointA == l.EndpointB {
		return nil, errors.New("line endpoints must be distinct")
	}
	if l.ID == "" {
		l.ID = p.genID("line")
	}
	p.lines[l.ID] = l
	p.features[l.EndpointA].lineIDs = append(p.features[l.EndpointA].lineIDs, l.ID)
	p.features[l.EndpointB].lineIDs = append(p.features[l.EndpointB].lineIDs, l.ID)
	if _, err := p.connectivity.AddEdge(string(l.EndpointA), string(l.EndpointB), 0); err != nil {
		return nil, errors.Wrap(err, "registering line in connectivity graph")
	}
	return l, nil
}

// Line looks up a line by ID.
func (p *Project) Line(id ID) (*Line, bool) {
	l, ok := p.lines[id]
	return l, ok
}

// Lines returns all lines, ordered by ID for determinism.
func (p *Project) Lines() []*Line {
	out := make([]*Line, 0, len(p.lines))
	for _, l := range p.lines {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectivityGraph exposes the feature adjacency graph (edges are Lines)
// for worldpoint.ReachableAnchor's BFS.
func (p *Project) ConnectivityGraph() *core.Graph { return p.connectivity }

// AddViewpoint inserts a viewpoint, assigning an ID if empty.
func (p *Project) AddViewpoint(v *Viewpoint) *Viewpoint {
	if v.ID == "" {
		v.ID = p.genID("cam")
	}
	if v.Rotation == (Viewpoint{}).Rotation {
		v.Rotation = IdentityRotation()
	}
	p.viewpoints[v.ID] = v
	return v
}

// Viewpoint looks up a viewpoint by ID.
func (p *Project) Viewpoint(id ID) (*Viewpoint, bool) {
	v, ok := p.viewpoints[id]
	return v, ok
}

// Viewpoints returns all viewpoints, ordered by ID for determinism.
func (p *Project) Viewpoints() []*Viewpoint {
	out := make([]*Viewpoint, 0, len(p.viewpoints))
	for _, v := range p.viewpoints {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddObservation inserts an image observation, enforcing the
// (viewpoint, feature) uniqueness invariant (§3).
func (p *Project) AddObservation(o *ImageObservation) (*ImageObservation, error) {
	vp, ok := p.viewpoints[o.Viewpoint]
	if !ok {
		return nil, errors.Errorf("observation viewpoint %q not found", o.Viewpoint)
	}
	feat, ok := p.features[o.Feature]
	if !ok {
		return nil, errors.Errorf("observation feature %q not found", o.Feature)
	}
	for _, existingID := range vp.observationIDs {
		if p.observations[existingID].Feature == o.Feature {
			return nil, errors.Errorf("viewpoint %q already observes feature %q", o.Viewpoint, o.Feature)
		}
	}
	if o.ID == "" {
		o.ID = p.genID("obs")
	}
	p.observations[o.ID] = o
	vp.observationIDs = append(vp.observationIDs, o.ID)
	feat.observationIDs = append(feat.observationIDs, o.ID)
	return o, nil
}

// Observation looks up an image observation by ID.
func (p *Project) Observation(id ID) (*ImageObservation, bool) {
	o, ok := p.observations[id]
	return o, ok
}

// Observations returns all image observations, ordered by ID for determinism.
func (p *Project) Observations() []*ImageObservation {
	out := make([]*ImageObservation, 0, len(p.observations))
	for _, o := range p.observations {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResetOutlierFlags clears IsOutlier on every observation; called at the
// start of every solve (§3 Image observation lifecycle).
func (p *Project) ResetOutlierFlags() {
	for _, o := range p.observations {
		o.IsOutlier = false
	}
}

// AddConstraint appends a constraint to the ordered constraint list.
func (p *Project) AddConstraint(c *Constraint) *Constraint {
	if c.ID == "" {
		c.ID = p.genID("cst")
	}
	p.constraints = append(p.constraints, c)
	return c
}

// Constraints returns the constraints in insertion order.
func (p *Project) Constraints() []*Constraint {
	return append([]*Constraint(nil), p.constraints...)
}

// ObservationsForViewpoint returns the observations owned by a viewpoint.
func (p *Project) ObservationsForViewpoint(vpID ID) []*ImageObservation {
	vp, ok := p.viewpoints[vpID]
	if !ok {
		return nil
	}
	out := make([]*ImageObservation, 0, len(vp.observationIDs))
	for _, id := range vp.observationIDs {
		out = append(out, p.observations[id])
	}
	return out
}

// AddVanishingLine inserts a user-drawn or virtual vanishing line, owned
// by the given viewpoint.
func (p *Project) AddVanishingLine(vl *VanishingLine, viewpointID ID) (*VanishingLine, error) {
	vp, ok := p.viewpoints[viewpointID]
	if !ok {
		return nil, errors.Errorf("vanishing line viewpoint %q not found", viewpointID)
	}
	if vl.ID == "" {
		vl.ID = p.genID("vl")
	}
	p.vanishingLines[vl.ID] = vl
	vp.vanishingLineIDs = append(vp.vanishingLineIDs, vl.ID)
	return vl, nil
}

// VanishingLinesForViewpoint returns the vanishing lines owned by a viewpoint.
func (p *Project) VanishingLinesForViewpoint(vpID ID) []*VanishingLine {
	vp, ok := p.viewpoints[vpID]
	if !ok {
		return nil
	}
	out := make([]*VanishingLine, 0, len(vp.vanishingLineIDs))
	for _, id := range vp.vanishingLineIDs {
		out = append(out, p.vanishingLines[id])
	}
	return out
}

// Stats is a read-only O(V+E) snapshot of the arena, used for
// configuration validation and solvelog summaries (SPEC_FULL §3).
type Stats struct {
	Features         int
	LockedFeatures   int
	FullyLockedFeatures int
	Lines            int
	Viewpoints       int
	EnabledViewpoints int
	Observations     int
	Constraints      int
}

// Stats computes the current arena snapshot.
func (p *Project) Stats() Stats {
	var s Stats
	s.Features = len(p.features)
	for _, f := range p.features {
		if f.LockedXYZ.Any() {
			s.LockedFeatures++
		}
		if f.LockedXYZ.Full() {
			s.FullyLockedFeatures++
		}
	}
	s.Lines = len(p.lines)
	s.Viewpoints = len(p.viewpoints)
	for _, v := range p.viewpoints {
		if v.EnabledInSolve {
			s.EnabledViewpoints++
		}
	}
	s.Observations = len(p.observations)
	s.Constraints = len(p.constraints)
	return s
}
