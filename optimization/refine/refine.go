// Package refine wraps go-nlopt's local SLSQP solver for small, dense
// nonlinear refinements (a handful of free scalars, a caller-supplied
// gradient, a fixed evaluation budget). Its only caller is pnp's inlier
// refinement; vp's camera-position refinement uses its own fixed-iteration
// Gauss-Newton loop instead. This is the same role nlopt plays for the
// teacher's motionplan/ik solvers.
package refine

import (
	"github.com/go-nlopt/nlopt"
)

// Problem is a local nonlinear least-squares refinement problem over a
// fixed-size parameter vector.
type Problem struct {
	Dims      int
	Initial   []float64
	MaxIter   int
	// Cost returns the objective value at x, and if grad is non-nil,
	// fills it with the analytic gradient.
	Cost func(x, grad []float64) float64
}

// Result is the outcome of a refinement attempt.
type Result struct {
	X        []float64
	Cost     float64
	Converged bool
}

// Run minimizes p.Cost starting from p.Initial using NLopt's SLSQP
// algorithm with the gradient p.Cost supplies, for up to p.MaxIter
// evaluations. Returns Converged=false (with X set to p.Initial) on any
// nlopt error so
// callers can fall back to the initial estimate rather than propagating
// a fault (§7: refinement failure is a degeneracy, not a configuration
// error).
func Run(p Problem) Result {
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(p.Dims))
	if err != nil {
		return Result{X: p.Initial, Converged: false}
	}
	defer opt.Destroy()

	if err := opt.SetMinObjective(p.Cost); err != nil {
		return Result{X: p.Initial, Converged: false}
	}
	_ = opt.SetXtolRel(1e-8)
	if p.MaxIter > 0 {
		_ = opt.SetMaxEval(p.MaxIter)
	}

	x, minf, err := opt.Optimize(append([]float64(nil), p.Initial...))
	if err != nil {
		return Result{X: p.Initial, Converged: false}
	}
	return Result{X: x, Cost: minf, Converged: true}
}
