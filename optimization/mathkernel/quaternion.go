package mathkernel

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// QuatFromMatrix converts a rotation matrix to a unit quaternion using
// Shepperd's trace-based branch selection, grounded on the quat.Mul/quat.Conj
// composition style used throughout kinmath's quaternion tests: the branch
// with the largest denominator is picked to avoid dividing by a small number.
func QuatFromMatrix(m Matrix3) quat.Number {
	trace := m[0][0] + m[1][1] + m[2][2]

	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		return quat.Number{
			Real: 0.25 / s,
			Imag: (m[2][1] - m[1][2]) * s,
			Jmag: (m[0][2] - m[2][0]) * s,
			Kmag: (m[1][0] - m[0][1]) * s,
		}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * math.Sqrt(1+m[0][0]-m[1][1]-m[2][2])
		return quat.Number{
			Real: (m[2][1] - m[1][2]) / s,
			Imag: 0.25 * s,
			Jmag: (m[0][1] + m[1][0]) / s,
			Kmag: (m[0][2] + m[2][0]) / s,
		}
	case m[1][1] > m[2][2]:
		s := 2 * math.Sqrt(1+m[1][1]-m[0][0]-m[2][2])
		return quat.Number{
			Real: (m[0][2] - m[2][0]) / s,
			Imag: (m[0][1] + m[1][0]) / s,
			Jmag: 0.25 * s,
			Kmag: (m[1][2] + m[2][1]) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m[2][2]-m[0][0]-m[1][1])
		return quat.Number{
			Real: (m[1][0] - m[0][1]) / s,
			Imag: (m[0][2] + m[2][0]) / s,
			Jmag: (m[1][2] + m[2][1]) / s,
			Kmag: 0.25 * s,
		}
	}
}

// MatrixFromQuat converts a unit quaternion to a rotation matrix.
func MatrixFromQuat(q quat.Number) Matrix3 {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n > SingularEpsilon {
		q.Real, q.Imag, q.Jmag, q.Kmag = q.Real/n, q.Imag/n, q.Jmag/n, q.Kmag/n
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Matrix3{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// QuatMul composes two quaternion rotations, q1 applied after q0 (q1*q0).
func QuatMul(q1, q0 quat.Number) quat.Number { return quat.Mul(q1, q0) }

// QuatNormalize returns q scaled to unit norm; used to re-project the
// quaternion state vector back onto the unit sphere after an LM step (§4.8).
func QuatNormalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n < SingularEpsilon {
		return quat.Number{Real: 1}
	}
	return quat.Number{Real: q.Real / n, Imag: q.Imag / n, Jmag: q.Jmag / n, Kmag: q.Kmag / n}
}
