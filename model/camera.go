package model

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// rotateByQuat rotates v by unit quaternion q (world-from-camera convention:
// camera-space = q^-1 * v * q when q maps camera axes into world axes).
func rotateByQuat(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// WorldToCamera transforms a world point into the viewpoint's camera frame.
func (v *Viewpoint) WorldToCamera(world r3.Vector) r3.Vector {
	rel := r3.Vector{X: world.X - v.Position.X, Y: world.Y - v.Position.Y, Z: world.Z - v.Position.Z}
	return rotateByQuat(quat.Conj(v.Rotation), rel)
}

// CameraToWorldDirection rotates a camera-space direction into world space.
func (v *Viewpoint) CameraToWorldDirection(camDir r3.Vector) r3.Vector {
	return rotateByQuat(v.Rotation, camDir)
}

// Distort applies the Brown-Conrady radial/tangential distortion model to
// normalized camera coordinates (x, y) (z=1 plane).
func (in Intrinsics) Distort(x, y float64) (float64, float64) {
	r2v := x*x + y*y
	radial := 1 + in.RadialK1*r2v + in.RadialK2*r2v*r2v + in.RadialK3*r2v*r2v*r2v
	xd := x*radial + 2*in.TangentialP1*x*y + in.TangentialP2*(r2v+2*x*x)
	yd := y*radial + in.TangentialP1*(r2v+2*y*y) + 2*in.TangentialP2*x*y
	return xd, yd
}

// ToPixel maps distorted normalized coordinates to pixel coordinates using
// focal length, principal point, aspect ratio, and skew.
func (in Intrinsics) ToPixel(xd, yd float64) r2.Point {
	f := in.FocalLength
	u := f*xd + in.Skew*yd + in.PrincipalX
	vv := f*in.AspectRatio*yd + in.PrincipalY
	return r2.Point{X: u, Y: vv}
}

// Project projects a world point through the full camera model (pose +
// intrinsics + distortion), returning ok=false when the point is behind
// the camera (camera-space z <= 0).
func (v *Viewpoint) Project(world r3.Vector) (r2.Point, bool) {
	cam := v.WorldToCamera(world)
	if cam.Z <= 1e-9 {
		return r2.Point{}, false
	}
	x, y := cam.X/cam.Z, -cam.Y/cam.Z
	xd, yd := v.Intrinsics.Distort(x, y)
	return v.Intrinsics.ToPixel(xd, yd), true
}

// BackProjectRay returns the camera position and the world-space direction
// of the ray through pixel (undistorted approximation: distortion is
// ignored for ray construction, matching the initializer's use of rays as
// a linear approximation before nonlinear refinement).
func (v *Viewpoint) BackProjectRay(pixel r2.Point) (origin, direction r3.Vector) {
	f := v.Intrinsics.FocalLength
	if f == 0 {
		f = 1
	}
	camDir := r3.Vector{
		X: (pixel.X - v.Intrinsics.PrincipalX) / f,
		Y: -(pixel.Y - v.Intrinsics.PrincipalY) / f,
		Z: 1,
	}
	n := math.Sqrt(camDir.X*camDir.X + camDir.Y*camDir.Y + camDir.Z*camDir.Z)
	camDir = r3.Vector{X: camDir.X / n, Y: camDir.Y / n, Z: camDir.Z / n}
	return v.Position, v.CameraToWorldDirection(camDir)
}
