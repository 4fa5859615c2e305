// Package optimize implements the top-level scene-solver entry point
// (spec §2, §6): the phase-sequencing orchestrator that ties camera
// initialization, world-point initialization, coordinate alignment, the
// LM constraint solver, outlier handling, and the handedness corrector
// together into a single optimize_project call.
package optimize

import "github.com/mfagerlund/rotera/model"

// IntrinsicsMode selects whether camera intrinsics are free parameters
// during the full solve (§4.8, §6).
type IntrinsicsMode int

const (
	IntrinsicsAuto IntrinsicsMode = iota
	IntrinsicsAlways
	IntrinsicsNever
)

// YieldFunc is called between phases so a host UI can redraw; returning
// an error cancels the solve (§5 "Cancellation").
type YieldFunc func(phase string) error

// Options configures one optimize_project call (§6).
type Options struct {
	AutoInitializeCameras     bool
	AutoInitializeWorldPoints bool
	DetectOutliers            bool
	OutlierThresholdPx        float64
	Tolerance                 float64
	MaxIterations             int
	MaxAttempts               int
	Damping                   float64
	OptimizeCameraIntrinsics  IntrinsicsMode
	LockVPCameras             bool
	ForceRightHanded          bool
	YieldToUI                 YieldFunc

	// HandednessAnchors names the axis-anchor features used by phase 8
	// when no feature carries a locked coordinate (§4.10 step 2).
	HandednessAnchors Anchors

	// Seed is the base PRNG seed for deterministic strategies; the
	// candidate driver reseeds per probe (§5, §4.12).
	Seed uint64

	// skipCandidateTesting, when set, makes Optimize skip enumeration and
	// run the pipeline once with a zero-value candidate (§4.12
	// "_skip_candidate_testing"). Nothing in this package sets it: the
	// candidate driver's probes call runPipeline directly.
	skipCandidateTesting bool
}

// Anchors is a local struct with the same fields as handedness.Anchors,
// so callers don't need to import optimization/handedness directly.
type Anchors struct {
	Origin, PlusX, PlusZ model.ID
}

// DefaultOptions returns the spec's documented defaults (§6).
func DefaultOptions() Options {
	return Options{
		AutoInitializeCameras:     true,
		AutoInitializeWorldPoints: true,
		DetectOutliers:            true,
		OutlierThresholdPx:        3.0,
		Tolerance:                 1e-6,
		MaxIterations:             500,
		MaxAttempts:               3,
		Damping:                   0.1,
		OptimizeCameraIntrinsics:  IntrinsicsAuto,
		ForceRightHanded:          true,
		Seed:                      42,
	}
}

// Quality is the human-facing summary of a solve's result (§6 "quality{stars, label}").
type Quality struct {
	Stars int
	Label string
}

// Result is the outcome of optimize_project (§6).
type Result struct {
	Converged           bool
	Iterations          int
	Residual            float64
	Error               string
	CamerasInitialized  []model.ID
	CamerasExcluded     []model.ID
	Outliers            []model.ID
	RMSReprojectionPx   float64
	MedianReprojectionPx float64
	SolveTimeMs         float64
	Quality             Quality
}

// qualityFor maps a converged RMS reprojection error (in pixels) onto
// the star rating shown to the user, loosely mirroring the teacher's
// tiered rating conventions.
func qualityFor(converged bool, rms float64) Quality {
	switch {
	case !converged:
		return Quality{Stars: 0, Label: "failed"}
	case rms <= 0.5:
		return Quality{Stars: 5, Label: "excellent"}
	case rms <= 1.5:
		return Quality{Stars: 4, Label: "good"}
	case rms <= 3:
		return Quality{Stars: 3, Label: "fair"}
	case rms <= 8:
		return Quality{Stars: 2, Label: "poor"}
	default:
		return Quality{Stars: 1, Label: "bad"}
	}
}
