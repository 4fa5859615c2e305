package model

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Intrinsics is the pinhole camera model with Brown-Conrady distortion,
// mirroring the parameter set the teacher's rimage/transform package
// validates (focal length, principal point, aspect, skew, radial x3,
// tangential x2).
type Intrinsics struct {
	FocalLength   float64
	PrincipalX    float64
	PrincipalY    float64
	AspectRatio   float64
	Skew          float64
	RadialK1      float64
	RadialK2      float64
	RadialK3      float64
	TangentialP1  float64
	TangentialP2  float64
}

// DefaultIntrinsics returns an intrinsics block with AspectRatio=1, the
// principal point at the image centre, and every other field zero,
// suitable as a "smells like a default" seed for focal-length estimation
// (§4.2).
func DefaultIntrinsics(imageWidth, imageHeight int) Intrinsics {
	return Intrinsics{
		AspectRatio: 1,
		PrincipalX:  float64(imageWidth) / 2,
		PrincipalY:  float64(imageHeight) / 2,
	}
}

// VanishingLine is a user-drawn or virtual (derived from an axis-labelled
// 3D Line) 2D line segment used for vanishing-point detection (§4.2).
type VanishingLine struct {
	ID     ID
	A, B   r2.Point
	Axis   Axis
	Virtual bool
	SourceLineID ID // set when Virtual
}

// Viewpoint is a camera: pose, intrinsics, and the observations it owns.
type Viewpoint struct {
	ID     ID
	Name   string
	Width  int
	Height int

	Position   r3.Vector
	Rotation   quat.Number // unit quaternion, world-from-camera

	Intrinsics Intrinsics

	EnabledInSolve bool
	IsPoseLocked   bool
	IsZReflected   bool

	vanishingLineIDs  []ID
	observationIDs    []ID
}

// IdentityRotation is the unit quaternion with no rotation.
func IdentityRotation() quat.Number { return quat.Number{Real: 1} }

// VanishingLineIDs returns the back-references to this viewpoint's vanishing lines.
func (v *Viewpoint) VanishingLineIDs() []ID { return append([]ID(nil), v.vanishingLineIDs...) }

// ObservationIDs returns the back-references to this viewpoint's image observations.
func (v *Viewpoint) ObservationIDs() []ID { return append([]ID(nil), v.observationIDs...) }
