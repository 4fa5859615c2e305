package model

import "github.com/golang/geo/r2"

// ImageObservation is a 2D sighting of a Feature in a Viewpoint.
// (Viewpoint, Feature) pairs are unique within a Project (enforced by
// Project.AddObservation).
type ImageObservation struct {
	ID        ID
	Viewpoint ID
	Feature   ID
	Pixel     r2.Point
	IsOutlier bool
}
