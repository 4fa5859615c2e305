package solve

// Options configures one Levenberg-Marquardt run (§4.8).
type Options struct {
	// MaxIterations caps LM iterations before giving up without
	// converging.
	MaxIterations int
	// Tolerance is the minimum relative drop in RMS residual between
	// iterations below which the solve is considered converged.
	Tolerance float64
	// Damping is the initial LM lambda; it is scaled up on rejected
	// steps and down on accepted ones.
	Damping float64
	// OptimizeIntrinsics includes each free camera's focal length in
	// the parameter vector when true.
	OptimizeIntrinsics bool
	// Sparse selects the Schur-complement fast path over features
	// instead of the dense normal-equations solve. The caller is
	// responsible for only requesting it when no cross-feature
	// constraint (equal-distance, colinear, coplanar, parallel,
	// perpendicular) is enabled; Run forces dense mode itself when it
	// detects one, so a caller-requested sparse mode is a best-effort
	// hint, not a hard guarantee.
	Sparse bool
}

// DefaultOptions returns the spec's default tolerances (§4.8).
func DefaultOptions() Options {
	return Options{
		MaxIterations: 100,
		Tolerance:     1e-6,
		Damping:       1e-3,
	}
}

// Result is the outcome of one LM run.
type Result struct {
	Converged  bool
	Iterations int
	RMS        float64
	// Mode reports which normal-equations path actually ran ("dense" or
	// "sparse"), since Run may override a caller's Sparse request.
	Mode string
}
