// Package model implements the in-memory project arena consumed and
// mutated by the optimization pipeline: features, lines, viewpoints,
// image observations, and constraints, plus their relations.
package model

import "github.com/golang/geo/r3"

// ID identifies an entity within a Project. IDs are never reused within
// a single Project lifetime.
type ID string

// Axis is one of the three world axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// AxisValues holds an optional scalar for each of X, Y, Z independently.
type AxisValues struct {
	X, Y, Z       float64
	HasX, HasY, HasZ bool
}

// Get returns the value and presence flag for a given axis.
func (a AxisValues) Get(axis Axis) (float64, bool) {
	switch axis {
	case AxisX:
		return a.X, a.HasX
	case AxisY:
		return a.Y, a.HasY
	default:
		return a.Z, a.HasZ
	}
}

// Set stores a value for a given axis.
func (a *AxisValues) Set(axis Axis, v float64) {
	switch axis {
	case AxisX:
		a.X, a.HasX = v, true
	case AxisY:
		a.Y, a.HasY = v, true
	case AxisZ:
		a.Z, a.HasZ = v, true
	}
}

// Full reports whether all three axes are present.
func (a AxisValues) Full() bool {
	return a.HasX && a.HasY && a.HasZ
}

// Any reports whether at least one axis is present.
func (a AxisValues) Any() bool {
	return a.HasX || a.HasY || a.HasZ
}

// Vector returns the values as an r3.Vector; axes without a value are zero.
func (a AxisValues) Vector() r3.Vector {
	return r3.Vector{X: a.X, Y: a.Y, Z: a.Z}
}

// Feature is a world point: a scene feature observed by one or more
// viewpoints, possibly partially or fully locked to known coordinates.
type Feature struct {
	ID   ID
	Name string

	LockedXYZ   AxisValues
	InferredXYZ AxisValues
	OptimizedXYZ r3.Vector

	Color  [3]uint8
	Locked bool

	lineIDs        []ID
	observationIDs []ID
}

// IsFullyConstrained reports whether every axis is determined by the
// union of LockedXYZ and InferredXYZ.
func (f *Feature) IsFullyConstrained() bool {
	for _, axis := range [...]Axis{AxisX, AxisY, AxisZ} {
		_, lockedOK := f.LockedXYZ.Get(axis)
		_, inferredOK := f.InferredXYZ.Get(axis)
		if !lockedOK && !inferredOK {
			return false
		}
	}
	return true
}

// EffectiveXYZ returns, per axis, the locked value if present, else the
// inferred value if present, else the optimized value.
func (f *Feature) EffectiveXYZ() r3.Vector {
	pick := func(axis Axis, optimized float64) float64 {
		if v, ok := f.LockedXYZ.Get(axis); ok {
			return v
		}
		if v, ok := f.InferredXYZ.Get(axis); ok {
			return v
		}
		return optimized
	}
	return r3.Vector{
		X: pick(AxisX, f.OptimizedXYZ.X),
		Y: pick(AxisY, f.OptimizedXYZ.Y),
		Z: pick(AxisZ, f.OptimizedXYZ.Z),
	}
}

// LineIDs returns the back-references to lines with this feature as an endpoint.
func (f *Feature) LineIDs() []ID { return append([]ID(nil), f.lineIDs...) }

// ObservationIDs returns the back-references to observations of this feature.
func (f *Feature) ObservationIDs() []ID { return append([]ID(nil), f.observationIDs...) }
