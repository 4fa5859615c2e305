package worldpoint

import (
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"gonum.org/v1/gonum/mat"
)

// ViewObservation pairs a camera (by pose) with the pixel it observed a
// feature at.
type ViewObservation struct {
	Position r3.Vector
	Rotation mathkernel.Matrix3
	Focal    float64
	Aspect   float64
	Principal struct{ X, Y float64 }
	Pixel    struct{ X, Y float64 }
}

// projectionRow builds the two DLT rows (u and v) contributed by one view.
func projectionRow(v ViewObservation) [2][4]float64 {
	w2c := v.Rotation.Transpose()
	// World-to-camera: Xc = w2c*(P - C) = w2c*P - w2c*C.
	t := w2c.MulVec(r3.Vector{X: -v.Position.X, Y: -v.Position.Y, Z: -v.Position.Z})

	// Projection matrix rows for x_cam, y_cam, z_cam in terms of world P (homogeneous).
	row := func(r [3]float64, tVal float64) [4]float64 {
		return [4]float64{r[0], r[1], r[2], tVal}
	}
	xRow := row([3]float64{w2c[0][0], w2c[0][1], w2c[0][2]}, t.X)
	yRow := row([3]float64{w2c[1][0], w2c[1][1], w2c[1][2]}, t.Y)
	zRow := row([3]float64{w2c[2][0], w2c[2][1], w2c[2][2]}, t.Z)

	f, a := v.Focal, v.Aspect
	u, vv := v.Pixel.X-v.Principal.X, v.Pixel.Y-v.Principal.Y

	// u*z_cam = f*x_cam  =>  (f*xRow - u/f... ) derived directly:
	// pixel.u = f*Xc/Zc + cx  -> (pixel.u-cx)*Zc - f*Xc = 0
	var rowU, rowV [4]float64
	for i := 0; i < 4; i++ {
		rowU[i] = u*zRow[i] - f*xRow[i]
		rowV[i] = vv*zRow[i] - f*a*(-yRow[i])
	}
	return [2][4]float64{rowU, rowV}
}

// Triangulate solves the linear DLT system for a feature visible in ≥2
// initialized cameras, then is expected to be polished by one
// Gauss-Newton refinement pass by the caller (§4.6 phase 2).
func Triangulate(views []ViewObservation) (r3.Vector, bool) {
	if len(views) < 2 {
		return r3.Vector{}, false
	}
	a := mat.NewDense(2*len(views), 4, nil)
	for i, v := range views {
		rows := projectionRow(v)
		a.SetRow(2*i, rows[0][:])
		a.SetRow(2*i+1, rows[1][:])
	}
	var ata mat.Dense
	ata.Mul(a.T(), a)
	sym := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sym.SetSym(i, j, ata.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return r3.Vector{}, false
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	minIdx := 0
	for i := 1; i < 4; i++ {
		if values[i] < values[minIdx] {
			minIdx = i
		}
	}
	w := vecs.At(3, minIdx)
	if w*w < mathkernel.SingularEpsilon {
		return r3.Vector{}, false
	}
	return r3.Vector{X: vecs.At(0, minIdx) / w, Y: vecs.At(1, minIdx) / w, Z: vecs.At(2, minIdx) / w}, true
}

// RefineTriangulation runs one Gauss-Newton step minimizing reprojection
// error across all views, the "one Gauss-Newton refinement" named in §4.6.
func RefineTriangulation(point r3.Vector, views []ViewObservation) r3.Vector {
	var jtj mathkernel.Matrix3
	var jtr r3.Vector
	for _, v := range views {
		w2c := v.Rotation.Transpose()
		rel := mathkernel.Sub(point, v.Position)
		cam := w2c.MulVec(rel)
		if cam.Z <= mathkernel.SingularEpsilon {
			continue
		}
		invZ := 1 / cam.Z
		predU := v.Focal*cam.X*invZ + v.Principal.X
		predV := v.Focal*v.Aspect*(-cam.Y*invZ) + v.Principal.Y
		resU := predU - v.Pixel.X
		resV := predV - v.Pixel.Y

		dxdP := r3.Vector{X: w2c[0][0], Y: w2c[0][1], Z: w2c[0][2]}
		dydP := r3.Vector{X: w2c[1][0], Y: w2c[1][1], Z: w2c[1][2]}
		dzdP := r3.Vector{X: w2c[2][0], Y: w2c[2][1], Z: w2c[2][2]}

		dUdP := mathkernel.Scale(mathkernel.Sub(mathkernel.Scale(dxdP, invZ), mathkernel.Scale(dzdP, cam.X*invZ*invZ)), v.Focal)
		dVdP := mathkernel.Scale(mathkernel.Sub(mathkernel.Scale(dzdP, cam.Y*invZ*invZ), mathkernel.Scale(dydP, invZ)), v.Focal*v.Aspect)

		accumulate(&jtj, &jtr, dUdP, resU)
		accumulate(&jtj, &jtr, dVdP, resV)
	}
	delta, ok := mathkernel.Solve3x3(jtj, jtr)
	if !ok {
		return point
	}
	return mathkernel.Sub(point, delta)
}

func accumulate(jtj *mathkernel.Matrix3, jtr *r3.Vector, row r3.Vector, residual float64) {
	cols := [3]float64{row.X, row.Y, row.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			jtj[i][j] += cols[i] * cols[j]
		}
	}
	jtr.X += row.X * residual
	jtr.Y += row.Y * residual
	jtr.Z += row.Z * residual
}

// ViewsForFeature collects the ViewObservations for a feature across the
// given initialized camera poses, skipping cameras without an observation.
func ViewsForFeature(proj *model.Project, featureID model.ID, poses map[model.ID]ViewObservationPose) []ViewObservation {
	var out []ViewObservation
	for _, obs := range allObservationsFor(proj, featureID) {
		pose, ok := poses[obs.Viewpoint]
		if !ok {
			continue
		}
		vp, _ := proj.Viewpoint(obs.Viewpoint)
		out = append(out, ViewObservation{
			Position:  pose.Position,
			Rotation:  pose.Rotation,
			Focal:     vp.Intrinsics.FocalLength,
			Aspect:    vp.Intrinsics.AspectRatio,
			Principal: struct{ X, Y float64 }{vp.Intrinsics.PrincipalX, vp.Intrinsics.PrincipalY},
			Pixel:     struct{ X, Y float64 }{obs.Pixel.X, obs.Pixel.Y},
		})
	}
	return out
}

// ViewObservationPose is the initialized pose of a camera, keyed by
// viewpoint ID in the caller's pose map.
type ViewObservationPose struct {
	Position r3.Vector
	Rotation mathkernel.Matrix3
}

func allObservationsFor(proj *model.Project, featureID model.ID) []*model.ImageObservation {
	feat, ok := proj.Feature(featureID)
	if !ok {
		return nil
	}
	var out []*model.ImageObservation
	for _, id := range feat.ObservationIDs() {
		if o, ok := proj.Observation(id); ok {
			out = append(out, o)
		}
	}
	return out
}
