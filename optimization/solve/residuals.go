package solve

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
)

// Residual is one scalar row of the least-squares system: its value and
// the sparse set of parameter indices it depends on, analytic partials
// computed in closed form (§4.8: "Jacobians are analytic").
type Residual struct {
	Value    float64
	Partials map[int]float64
}

func newResidual(value float64) Residual {
	return Residual{Value: value, Partials: map[int]float64{}}
}

func (r *Residual) add(index int, partial float64) {
	if partial == 0 {
		return
	}
	r.Partials[index] += partial
}

// axisUnit returns the world unit vector for an axis.
func axisUnit(axis model.Axis) r3.Vector {
	switch axis {
	case model.AxisX:
		return r3.Vector{X: 1}
	case model.AxisY:
		return r3.Vector{Y: 1}
	default:
		return r3.Vector{Z: 1}
	}
}

// featurePartials returns, for a feature's world position built from the
// parameter vector, the {paramIndex: d(axis)/d(param)} map for each axis
// that is a free parameter (identity, since OptimizedXYZ axes map
// directly onto the parameter vector).
func featurePartials(l *Layout, featureID model.ID) map[model.Axis]int {
	return l.featureIndex[featureID]
}

// Evaluate builds every active residual for the current parameter vector
// x: reprojection (one per non-outlier observation on an enabled
// viewpoint), every enabled Constraint, axis-line direction and line
// target length for Lines, and a diagnostic quaternion unit-norm row per
// free camera (§4.8).
func Evaluate(proj *model.Project, l *Layout, x []float64, opts Options) []Residual {
	var out []Residual
	out = append(out, reprojectionResiduals(proj, l, x, opts)...)
	out = append(out, constraintResiduals(proj, l, x)...)
	out = append(out, lineResiduals(proj, l, x)...)
	out = append(out, quaternionResiduals(proj, l, x)...)
	return out
}

// --- Reprojection -----------------------------------------------------

func reprojectionResiduals(proj *model.Project, l *Layout, x []float64, opts Options) []Residual {
	var out []Residual
	for _, vp := range proj.Viewpoints() {
		if !vp.EnabledInSolve {
			continue
		}
		rotation, position, focal := l.CameraPose(vp, x)
		rot := mathkernel.MatrixFromQuat(rotation)
		rt := rot.Transpose()
		aspect := vp.Intrinsics.AspectRatio
		if aspect == 0 {
			aspect = 1
		}
		cx, cy := vp.Intrinsics.PrincipalX, vp.Intrinsics.PrincipalY

		for _, obs := range proj.ObservationsForViewpoint(vp.ID) {
			if obs.IsOutlier {
				continue
			}
			pos := l.FeaturePosition(proj, obs.Feature, x)
			rel := mathkernel.Sub(pos, position)
			cam := rt.MulVec(rel)
			if cam.Z <= mathkernel.SingularEpsilon {
				continue
			}
			invZ := 1 / cam.Z
			predU := focal*cam.X*invZ + cx
			predV := focal*aspect*(-cam.Y*invZ) + cy

			ru := newResidual(predU - obs.Pixel.X)
			rv := newResidual(predV - obs.Pixel.Y)

			// d(cam)/dPosition (world) = rt; d(cam)/dCameraTranslation = -rt;
			// d(cam)/dTheta = rt*skew(rel) (tangent-space rotation Jacobian).
			dCamDFeature := [3]r3.Vector{mathkernel.Col(rt, 0), mathkernel.Col(rt, 1), mathkernel.Col(rt, 2)}
			skewRel := skew(rel)
			dCamDTheta := rt.Mul(skewRel)

			dUdCam := r3.Vector{X: focal * invZ, Y: 0, Z: -focal * cam.X * invZ * invZ}
			dVdCam := r3.Vector{X: 0, Y: -focal * aspect * invZ, Z: focal * aspect * cam.Y * invZ * invZ}

			applyFeatureChain(&ru, &rv, l, obs.Feature, dCamDFeature, dUdCam, dVdCam)
			applyCameraChain(&ru, &rv, l, vp.ID, rt, dCamDTheta, dUdCam, dVdCam, cam, focal, aspect, invZ)

			out = append(out, ru, rv)
		}
	}
	return out
}

// applyFeatureChain folds d(cam)/d(featureAxis) through d(u,v)/d(cam) for
// each of the feature's free axes.
func applyFeatureChain(ru, rv *Residual, l *Layout, featureID model.ID, dCamDFeature [3]r3.Vector, dUdCam, dVdCam r3.Vector) {
	axes := featurePartials(l, featureID)
	for axis, paramIdx := range axes {
		dCam := axisColumn(dCamDFeature, axis)
		ru.add(paramIdx, mathkernel.Dot(dUdCam, dCam))
		rv.add(paramIdx, mathkernel.Dot(dVdCam, dCam))
	}
}

// axisColumn returns the column of a feature-position Jacobian (3
// rows, one per camera coordinate) corresponding to one world axis.
func axisColumn(cols [3]r3.Vector, axis model.Axis) r3.Vector {
	switch axis {
	case model.AxisX:
		return cols[0]
	case model.AxisY:
		return cols[1]
	default:
		return cols[2]
	}
}

// applyCameraChain folds the camera rotation/position/focal Jacobian
// through d(u,v)/d(cam).
func applyCameraChain(ru, rv *Residual, l *Layout, vpID model.ID, rt mathkernel.Matrix3, dCamDTheta mathkernel.Matrix3, dUdCam, dVdCam, cam r3.Vector, focal, aspect, invZ float64) {
	cp, ok := l.cameras[vpID]
	if !ok {
		return
	}
	negRt := negate3(rt)
	for axisIdx := 0; axisIdx < 3; axisIdx++ {
		thetaCol := mathkernel.Col(dCamDTheta, axisIdx)
		ru.add(cp.base+axisIdx, mathkernel.Dot(dUdCam, thetaCol))
		rv.add(cp.base+axisIdx, mathkernel.Dot(dVdCam, thetaCol))
	}
	for axisIdx := 0; axisIdx < 3; axisIdx++ {
		posCol := mathkernel.Col(negRt, axisIdx)
		ru.add(cp.base+3+axisIdx, mathkernel.Dot(dUdCam, posCol))
		rv.add(cp.base+3+axisIdx, mathkernel.Dot(dVdCam, posCol))
	}
	if cp.optimizeFocal {
		ru.add(cp.focalIndex, cam.X*invZ)
		rv.add(cp.focalIndex, aspect*(-cam.Y*invZ))
	}
}

// skew returns the skew-symmetric cross-product matrix of v, so that
// skew(v)*w == v×w.
func skew(v r3.Vector) mathkernel.Matrix3 {
	return mathkernel.Matrix3{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

// negate3 returns -m.
func negate3(m mathkernel.Matrix3) mathkernel.Matrix3 {
	var out mathkernel.Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = -m[i][j]
		}
	}
	return out
}

// --- Constraints -------------------------------------------------------

func constraintResiduals(proj *model.Project, l *Layout, x []float64) []Residual {
	var out []Residual
	for _, c := range proj.Constraints() {
		if !c.Enabled {
			continue
		}
		switch c.Kind {
		case model.ConstraintPointsDistance:
			out = append(out, distanceResidual(proj, l, x, c.PointA, c.PointB, c.Distance, c.Weight))
		case model.ConstraintPointsEqualDistance:
			out = append(out, equalDistanceResiduals(proj, l, x, c.Points, c.Weight)...)
		case model.ConstraintPointsColinear:
			out = append(out, collinearResiduals(proj, l, x, c.Points, c.Weight)...)
		case model.ConstraintPointsCoplanar:
			out = append(out, coplanarResiduals(proj, l, x, c.Points, c.Weight)...)
		case model.ConstraintLinesParallel:
			out = append(out, parallelResiduals(proj, l, x, c.LineA, c.LineB, c.Weight)...)
		case model.ConstraintLinesPerpendicular:
			out = append(out, perpendicularResidual(proj, l, x, c.LineA, c.LineB, c.Weight))
		case model.ConstraintPointFixedCoord:
			out = append(out, fixedCoordResidual(l, x, c.Point, c.Axis, c.Value, c.Weight))
		}
	}
	return out
}

func pointVec(proj *model.Project, l *Layout, x []float64, id model.ID) r3.Vector {
	return l.FeaturePosition(proj, id, x)
}

// pointPartials returns, for feature id's world vector built above, the
// {axis: paramIndex} map of its free parameters (identity Jacobian).
func pointPartials(l *Layout, id model.ID) map[model.Axis]int {
	return l.featureIndex[id]
}

func addVectorChain(r *Residual, l *Layout, id model.ID, coeff r3.Vector) {
	for axis, idx := range pointPartials(l, id) {
		r.add(idx, axisOf(coeff, axis))
	}
}

func distanceResidual(proj *model.Project, l *Layout, x []float64, a, b model.ID, target, weight float64) Residual {
	pa, pb := pointVec(proj, l, x, a), pointVec(proj, l, x, b)
	diff := mathkernel.Sub(pb, pa)
	length := mathkernel.Norm(diff)
	r := newResidual((length - target) * weight)
	if length > mathkernel.SingularEpsilon {
		unit := mathkernel.Scale(diff, 1/length)
		addVectorChain(&r, l, a, mathkernel.Scale(unit, -weight))
		addVectorChain(&r, l, b, mathkernel.Scale(unit, weight))
	}
	return r
}

// equalDistanceResiduals enforces that consecutive point pairs
// (points[0],points[1]), (points[2],points[3]), ... share the first
// pair's distance (§4.8 "equal-distance").
func equalDistanceResiduals(proj *model.Project, l *Layout, x []float64, points []model.ID, weight float64) []Residual {
	if len(points) < 4 || len(points)%2 != 0 {
		return nil
	}
	p0, p1 := pointVec(proj, l, x, points[0]), pointVec(proj, l, x, points[1])
	base := mathkernel.Norm(mathkernel.Sub(p1, p0))
	var out []Residual
	for i := 2; i+1 < len(points)+1 && i+1 <= len(points); i += 2 {
		out = append(out, distanceResidual(proj, l, x, points[i], points[i+1], base, weight))
	}
	return out
}

// collinearResiduals penalizes, for each point beyond the first two, the
// perpendicular offset from the line through points[0]/points[1] via the
// cross-product vector (3 scalar rows per extra point).
func collinearResiduals(proj *model.Project, l *Layout, x []float64, points []model.ID, weight float64) []Residual {
	if len(points) < 3 {
		return nil
	}
	p0, p1 := pointVec(proj, l, x, points[0]), pointVec(proj, l, x, points[1])
	dir := mathkernel.Sub(p1, p0)
	var out []Residual
	for _, id := range points[2:] {
		pi := pointVec(proj, l, x, id)
		rel := mathkernel.Sub(pi, p0)
		cross := mathkernel.Cross(dir, rel)
		out = append(out, crossComponentResiduals(l, points[0], points[1], id, p0, p1, pi, cross, weight)...)
	}
	return out
}

// crossComponentResiduals linearizes one component of cross(dir, rel)
// where dir=p1-p0, rel=pi-p0, treating each of p0/p1/pi's free axes via
// the product rule over the two vector factors.
func crossComponentResiduals(l *Layout, id0, id1, id2 model.ID, p0, p1, pi r3.Vector, cross r3.Vector, weight float64) []Residual {
	dir := mathkernel.Sub(p1, p0)
	rel := mathkernel.Sub(pi, p0)
	components := [3]float64{cross.X, cross.Y, cross.Z}
	var out []Residual
	for c := 0; c < 3; c++ {
		r := newResidual(components[c] * weight)
		// d(cross)/d(dir) = -skew(rel), d(cross)/d(rel) = skew(dir); both
		// dir and rel depend on p0 (with a -1-1 coefficient), p1 (+1 via
		// dir), pi (+1 via rel).
		dDir := rowOfSkew(rel, c, -1)
		dRel := rowOfSkew(dir, c, 1)
		addVectorChain(&r, l, id1, mathkernel.Scale(dDir, weight))
		addVectorChain(&r, l, id2, mathkernel.Scale(dRel, weight))
		addVectorChain(&r, l, id0, mathkernel.Scale(mathkernel.Add(mathkernel.Scale(dDir, -1), mathkernel.Scale(dRel, -1)), weight))
		out = append(out, r)
	}
	return out
}

// rowOfSkew returns row c of sign*skew(v), the coefficient vector for
// d(cross_c)/d(other-factor).
func rowOfSkew(v r3.Vector, c int, sign float64) r3.Vector {
	s := skew(v)
	return mathkernel.Scale(r3.Vector{X: s[c][0], Y: s[c][1], Z: s[c][2]}, sign)
}

// coplanarResiduals penalizes, for points beyond the first three, the
// signed distance from the plane through points[0..2].
func coplanarResiduals(proj *model.Project, l *Layout, x []float64, points []model.ID, weight float64) []Residual {
	if len(points) < 4 {
		return nil
	}
	p0, p1, p2 := pointVec(proj, l, x, points[0]), pointVec(proj, l, x, points[1]), pointVec(proj, l, x, points[2])
	normal := mathkernel.Cross(mathkernel.Sub(p1, p0), mathkernel.Sub(p2, p0))
	norm := mathkernel.Norm(normal)
	var out []Residual
	if norm < mathkernel.SingularEpsilon {
		return out
	}
	unitNormal := mathkernel.Scale(normal, 1/norm)
	for _, id := range points[3:] {
		pi := pointVec(proj, l, x, id)
		dist := mathkernel.Dot(unitNormal, mathkernel.Sub(pi, p0))
		r := newResidual(dist * weight)
		addVectorChain(&r, l, id, mathkernel.Scale(unitNormal, weight))
		addVectorChain(&r, l, points[0], mathkernel.Scale(unitNormal, -weight))
		out = append(out, r)
	}
	return out
}

func lineDirection(proj *model.Project, l *Layout, x []float64, lineID model.ID) (r3.Vector, model.ID, model.ID, bool) {
	line, ok := proj.Line(lineID)
	if !ok {
		return r3.Vector{}, "", "", false
	}
	a, b := pointVec(proj, l, x, line.EndpointA), pointVec(proj, l, x, line.EndpointB)
	return mathkernel.Sub(b, a), line.EndpointA, line.EndpointB, true
}

func parallelResiduals(proj *model.Project, l *Layout, x []float64, lineA, lineB model.ID, weight float64) []Residual {
	dirA, a0, a1, ok1 := lineDirection(proj, l, x, lineA)
	dirB, b0, b1, ok2 := lineDirection(proj, l, x, lineB)
	if !ok1 || !ok2 {
		return nil
	}
	cross := mathkernel.Cross(dirA, dirB)
	components := [3]float64{cross.X, cross.Y, cross.Z}
	var out []Residual
	for c := 0; c < 3; c++ {
		r := newResidual(components[c] * weight)
		dDirA := rowOfSkew(dirB, c, -1)
		dDirB := rowOfSkew(dirA, c, 1)
		addVectorChain(&r, l, a1, mathkernel.Scale(dDirA, weight))
		addVectorChain(&r, l, a0, mathkernel.Scale(dDirA, -weight))
		addVectorChain(&r, l, b1, mathkernel.Scale(dDirB, weight))
		addVectorChain(&r, l, b0, mathkernel.Scale(dDirB, -weight))
		out = append(out, r)
	}
	return out
}

func perpendicularResidual(proj *model.Project, l *Layout, x []float64, lineA, lineB model.ID, weight float64) Residual {
	dirA, a0, a1, ok1 := lineDirection(proj, l, x, lineA)
	dirB, b0, b1, ok2 := lineDirection(proj, l, x, lineB)
	if !ok1 || !ok2 {
		return newResidual(0)
	}
	value := mathkernel.Dot(dirA, dirB)
	r := newResidual(value * weight)
	addVectorChain(&r, l, a1, mathkernel.Scale(dirB, weight))
	addVectorChain(&r, l, a0, mathkernel.Scale(dirB, -weight))
	addVectorChain(&r, l, b1, mathkernel.Scale(dirA, weight))
	addVectorChain(&r, l, b0, mathkernel.Scale(dirA, -weight))
	return r
}

func fixedCoordResidual(l *Layout, x []float64, pointID model.ID, axis model.Axis, value, weight float64) Residual {
	idx, free := l.featureIndex[pointID][axis]
	if !free {
		return newResidual(0)
	}
	r := newResidual((x[idx] - value) * weight)
	r.add(idx, weight)
	return r
}

// --- Line constraints (axis-line direction, target length) ------------

func lineResiduals(proj *model.Project, l *Layout, x []float64) []Residual {
	var out []Residual
	for _, line := range proj.Lines() {
		a, b := pointVec(proj, l, x, line.EndpointA), pointVec(proj, l, x, line.EndpointB)
		dir := mathkernel.Sub(b, a)

		if axis, ok := line.Direction.SingleAxis(); ok {
			unit := axisUnit(axis)
			cross := mathkernel.Cross(dir, unit)
			components := [3]float64{cross.X, cross.Y, cross.Z}
			for c := 0; c < 3; c++ {
				if components[c] == 0 && cross.X == 0 && cross.Y == 0 && cross.Z == 0 {
					continue
				}
				r := newResidual(components[c])
				dDir := rowOfSkew(unit, c, -1)
				addVectorChain(&r, l, line.EndpointB, dDir)
				addVectorChain(&r, l, line.EndpointA, mathkernel.Scale(dDir, -1))
				out = append(out, r)
			}
		}

		if line.TargetLength != nil {
			scale := 1.0
			if line.Tolerance != nil && *line.Tolerance > mathkernel.SingularEpsilon {
				scale = 1 / *line.Tolerance
			}
			length := mathkernel.Norm(dir)
			r := newResidual((length - *line.TargetLength) * scale)
			if length > mathkernel.SingularEpsilon {
				unit := mathkernel.Scale(dir, 1/length)
				addVectorChain(&r, l, line.EndpointB, mathkernel.Scale(unit, scale))
				addVectorChain(&r, l, line.EndpointA, mathkernel.Scale(unit, -scale))
			}
			out = append(out, r)
		}
	}
	return out
}

// --- Quaternion unit-norm ----------------------------------------------

// quaternionResiduals reports |q|^2-1 per free camera. Because rotation
// is parametrized as a tangent-space perturbation that is renormalized
// on every evaluation (CameraPose -> perturb -> QuatNormalize), this
// value is always 0 to floating-point precision and contributes a zero
// Jacobian; it is retained as a diagnostic row so §8 property 1 (unit
// quaternions after every phase) is directly checked by the residual
// vector, not just asserted separately.
func quaternionResiduals(proj *model.Project, l *Layout, x []float64) []Residual {
	var out []Residual
	for _, vp := range proj.Viewpoints() {
		if _, ok := l.cameras[vp.ID]; !ok {
			continue
		}
		q, _, _ := l.CameraPose(vp, x)
		normSq := q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag
		out = append(out, newResidual(normSq-1))
	}
	return out
}

// RMS returns the root-mean-square of residual values, used for
// convergence and quality reporting.
func RMS(residuals []Residual) float64 {
	if len(residuals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range residuals {
		sum += r.Value * r.Value
	}
	return math.Sqrt(sum / float64(len(residuals)))
}
