package optimize

import (
	"math"
	"time"

	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/caminit"
	"github.com/mfagerlund/rotera/optimization/candidates"
	"github.com/mfagerlund/rotera/optimization/handedness"
	"github.com/mfagerlund/rotera/optimization/outliers"
	"github.com/mfagerlund/rotera/optimization/snapshot"
	"github.com/mfagerlund/rotera/optimization/solve"
	"github.com/mfagerlund/rotera/optimization/worldpoint"
	"github.com/mfagerlund/rotera/solvelog"
)

// cancelledError marks a YieldToUI rejection so Optimize can tell it apart
// from an ordinary solve failure.
type cancelledError struct{ phase string }

func (e cancelledError) Error() string { return "cancelled during phase " + e.phase }

// outcome is runPipeline's internal result, carrying everything Optimize
// needs to assemble the public Result plus what the candidate driver
// needs to score the attempt.
type outcome struct {
	converged    bool
	iterations   int
	residual     float64
	camerasInit  []model.ID
	camerasExcl  []model.ID
	outlierObs   []model.ID
	rms          float64
	median       float64
	err          error
	cancelled    bool
}

// Optimize runs optimize_project (spec §2, §6): camera initialization,
// world-point initialization, late PnP, coordinate alignment, the LM
// constraint solve (two-stage, with outlier handling), and the final
// handedness correction. When more than one (strategy, seed, inference
// branch, alignment sign) combination is viable, the candidate-testing
// driver (§4.12) probes each and keeps the lowest-residual winner;
// otherwise the single viable combination runs directly.
func Optimize(proj *model.Project, opts Options) Result {
	start := timeNow()
	log := solvelog.New(nil)

	strategies := viableStrategyInts(proj)
	branches := ambiguousBranchChoices(proj)
	seeds := []uint64{opts.Seed, opts.Seed + 1, opts.Seed + 2}

	var candList []candidates.Candidate
	if !opts.skipCandidateTesting {
		candList = candidates.Enumerate(strategies, func(s int) candidates.StrategyMetadata {
			m := caminit.Strategy(s).Metadata()
			return candidates.StrategyMetadata{IsDeterministic: m.IsDeterministic, HasAlignmentAmbiguity: m.HasAlignmentAmbiguity}
		}, seeds, branches)
	}

	var last outcome

	run := func(c candidates.Candidate, maxIterations int) outcome {
		var strategyOverride *caminit.Strategy
		if len(strategies) > 0 {
			s := caminit.Strategy(c.Strategy)
			strategyOverride = &s
		}
		branchMap := branchMapFor(proj, c.InferenceBranch)
		o := runPipeline(proj, opts, branchMap, strategyOverride, c.AlignmentSign, maxIterations, log)
		last = o
		return o
	}

	if len(candList) <= 1 {
		var c candidates.Candidate
		if len(candList) == 1 {
			c = candList[0]
		}
		run(c, opts.MaxIterations)
	} else {
		probe := func(c candidates.Candidate, maxIter int) candidates.ProbeResult {
			o := run(c, maxIter)
			return candidates.ProbeResult{Residual: o.residual, Converged: o.converged}
		}
		candidates.Drive(proj, candList, probe, opts.MaxIterations)
	}

	elapsed := timeSince(start)

	if last.cancelled {
		return Result{Error: last.err.Error(), Quality: Quality{Label: "cancelled"}}
	}
	if last.err != nil {
		return Result{Error: last.err.Error(), Residual: math.Inf(1), Quality: Quality{Label: "failed"}}
	}

	return Result{
		Converged:            last.converged,
		Iterations:           last.iterations,
		Residual:             last.residual,
		CamerasInitialized:   last.camerasInit,
		CamerasExcluded:      last.camerasExcl,
		Outliers:             last.outlierObs,
		RMSReprojectionPx:    last.rms,
		MedianReprojectionPx: last.median,
		SolveTimeMs:          elapsed,
		Quality:              qualityFor(last.converged, last.rms),
	}
}

// runPipeline runs phases 1-8 once against proj's current state. branches
// and strategyOverride pin the candidate-testing driver's enumeration axes
// for camera init / world-point init; alignSign is reserved for the
// translation-direction ambiguity of the essential-matrix bootstrap.
func runPipeline(proj *model.Project, opts Options, branches map[model.ID]worldpoint.InferenceBranch, strategyOverride *caminit.Strategy, alignSign float64, maxIterations int, log *solvelog.Buffer) outcome {
	yield := func(phase string) error {
		if opts.YieldToUI == nil {
			return nil
		}
		return opts.YieldToUI(phase)
	}

	entry := snapshot.NewGuard(proj)
	defer entry.RestoreIfUncommitted()

	if err := yield("camera_init"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"camera_init"}}
	}
	var camerasInit []model.ID
	if opts.AutoInitializeCameras {
		if strategyOverride != nil {
			camerasInit = initializeCamerasForced(proj, *strategyOverride, opts.Seed, log)
		} else {
			initialized, _ := initializeCameras(proj, opts.Seed, log)
			camerasInit = initialized
		}
	}

	if err := yield("world_point_init"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"world_point_init"}}
	}
	if opts.AutoInitializeWorldPoints {
		initializeWorldPoints(proj, branches, log)
	}

	if err := yield("late_pnp"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"late_pnp"}}
	}
	lateInitialized := map[model.ID]bool{}
	if opts.AutoInitializeCameras {
		for _, id := range lateInitializeCameras(proj, log) {
			lateInitialized[id] = true
		}
	}

	if err := yield("alignment"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"alignment"}}
	}
	alignCoordinates(proj)

	if err := yield("stage1_solve"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"stage1_solve"}}
	}
	solveOpts := solve.Options{
		MaxIterations:      stageIterations(maxIterations),
		Tolerance:          opts.Tolerance,
		Damping:            opts.Damping,
		OptimizeIntrinsics: opts.OptimizeCameraIntrinsics == IntrinsicsAlways,
		Sparse:             multiCameraScene(proj),
	}
	stage1Guard := snapshot.NewGuard(proj)
	stage1, err := solve.Run(proj, solveOpts)
	if err != nil {
		stage1Guard.RestoreIfUncommitted()
		return outcome{err: err, camerasInit: camerasInit}
	}
	stage1Guard.Commit()

	if err := yield("full_solve"); err != nil {
		return outcome{cancelled: true, err: cancelledError{"full_solve"}}
	}
	fullOpts := solveOpts
	fullOpts.MaxIterations = maxIterations
	fullOpts.OptimizeIntrinsics = opts.OptimizeCameraIntrinsics != IntrinsicsNever
	fullOpts.Sparse = false
	fullGuard := snapshot.NewGuard(proj)
	full, err := solve.Run(proj, fullOpts)
	if err != nil {
		fullGuard.RestoreIfUncommitted()
		return outcome{err: err, camerasInit: camerasInit, residual: stage1.RMS, converged: stage1.Converged, iterations: stage1.Iterations}
	}
	if stage1.RMS > 0 && full.RMS > 10*stage1.RMS {
		fullGuard.RestoreIfUncommitted()
		if log != nil {
			log.Logf(solvelog.TagSolve, "full solve diverged (rms %.3f > 10x stage-1 %.3f); rolled back to stage-1", full.RMS, stage1.RMS)
		}
		full = stage1
	} else {
		fullGuard.Commit()
	}

	var excluded []model.ID
	var lastReport outliers.Report
	if opts.DetectOutliers {
		for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
			if err := yield("outlier_detection"); err != nil {
				return outcome{cancelled: true, err: cancelledError{"outlier_detection"}}
			}
			lastReport = outliers.Detect(proj, opts.OutlierThresholdPx, log)
			newlyExcluded := outliers.ExcludeFullyFlaggedCameras(proj, lateInitialized, log)
			if len(newlyExcluded) == 0 {
				break
			}
			excluded = append(excluded, newlyExcluded...)
			if outliers.AllCamerasExcluded(proj) {
				return outcome{
					err:         errAllCamerasExcluded{},
					camerasInit: camerasInit,
					camerasExcl: excluded,
					residual:    math.Inf(1),
				}
			}
			outliers.ResetUnderconstrainedFeatures(proj)
			initializeWorldPoints(proj, branches, log)
			resolveGuard := snapshot.NewGuard(proj)
			full, err = solve.Run(proj, fullOpts)
			if err != nil {
				resolveGuard.RestoreIfUncommitted()
				break
			}
			resolveGuard.Commit()
		}
	}

	if opts.ForceRightHanded {
		if err := yield("handedness"); err != nil {
			return outcome{cancelled: true, err: cancelledError{"handedness"}}
		}
		anchors := handedness.Anchors{Origin: opts.HandednessAnchors.Origin, PlusX: opts.HandednessAnchors.PlusX, PlusZ: opts.HandednessAnchors.PlusZ}
		handedness.Correct(proj, anchors, log)
	}

	entry.Commit()

	return outcome{
		converged:   full.Converged,
		iterations:  full.Iterations,
		residual:    full.RMS,
		camerasInit: camerasInit,
		camerasExcl: excluded,
		outlierObs:  lastReport.FlaggedObservations,
		rms:         lastReport.RMS,
		median:      lastReport.Median,
	}
}

// errAllCamerasExcluded signals the §4.9/§7 fatal condition: outlier
// exclusion disabled every camera in the project.
type errAllCamerasExcluded struct{}

func (errAllCamerasExcluded) Error() string { return "all cameras excluded as outliers" }

// initializeCamerasForced runs camera init using one specific strategy for
// every uninitialized, non-pose-locked viewpoint (the candidate driver's
// per-candidate override), instead of initializeCameras' per-camera
// first-viable-strategy default.
func initializeCamerasForced(proj *model.Project, strategy caminit.Strategy, seed uint64, log *solvelog.Buffer) []model.ID {
	var initialized []model.ID
	var inputs []caminit.CameraInput
	var order []model.ID
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.IsPoseLocked {
			continue
		}
		inputs = append(inputs, buildCameraInput(proj, vpObj.ID))
		order = append(order, vpObj.ID)
	}
	if len(inputs) == 0 {
		return nil
	}
	result := caminit.Run(strategy, inputs, log, seed)
	for _, id := range order {
		pose, ok := result.Poses[id]
		if !ok || pose == caminit.UninitializedMarker {
			continue
		}
		vpObj, _ := proj.Viewpoint(id)
		applyPose(vpObj, pose)
		initialized = append(initialized, id)
	}
	return initialized
}

// viableStrategyInts collects the union of viable strategies (as opaque
// ints, for optimization/candidates) across every uninitialized viewpoint.
func viableStrategyInts(proj *model.Project) []int {
	hasLocked := hasFullyLockedPoint(proj)
	uninitCount := 0
	seen := map[caminit.Strategy]bool{}
	var out []int
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.IsPoseLocked {
			continue
		}
		uninitCount++
	}
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.IsPoseLocked {
			continue
		}
		caps := capabilitiesFor(collectAxisLinesFor(proj, vpObj.ID))
		for _, s := range caminit.ViableStrategies(hasLocked, caps, uninitCount) {
			if !seen[s] {
				seen[s] = true
				out = append(out, int(s))
			}
		}
	}
	return out
}

// ambiguousBranchChoices reports the inference-branch indices the
// candidate driver should try: 0 if no Line has an ambiguous sign, or
// {0, 1} (all-positive vs all-negative) when at least one does. A
// per-line cross product is avoided deliberately (§4.12 bounds the
// branch axis to what candidate probing can afford); branchMapFor
// expands whichever index wins back into a full per-line map.
func ambiguousBranchChoices(proj *model.Project) []int {
	scan := worldpoint.Propagate(proj, nil, nil)
	if len(scan.AmbiguousLines) == 0 {
		return nil
	}
	return []int{0, 1}
}

// branchMapFor expands a branch index (0 = every ambiguous line's
// EndpointA takes the positive sign, 1 = EndpointB does) into the
// per-line map worldpoint.Propagate expects.
func branchMapFor(proj *model.Project, branchIdx int) map[model.ID]worldpoint.InferenceBranch {
	scan := worldpoint.Propagate(proj, nil, nil)
	if len(scan.AmbiguousLines) == 0 {
		return nil
	}
	out := map[model.ID]worldpoint.InferenceBranch{}
	for _, lineID := range scan.AmbiguousLines {
		out[lineID] = worldpoint.InferenceBranch{LineID: lineID, PositiveEndA: branchIdx == 0}
	}
	return out
}

// collectAxisLinesFor is a thin indirection so viableStrategyInts doesn't
// need to import optimization/vp directly alongside this file's other
// helpers; phases.go already imports it for the same purpose.
func collectAxisLinesFor(proj *model.Project, vpID model.ID) map[model.Axis][]model.VanishingLine {
	return buildCameraInput(proj, vpID).AxisLines
}

// multiCameraScene reports whether more than one camera is enabled, the
// condition under which the sparse Schur-complement solve path pays off
// (single-camera or fully pose-locked scenes gain nothing from it).
func multiCameraScene(proj *model.Project) bool {
	count := 0
	for _, vpObj := range proj.Viewpoints() {
		if vpObj.EnabledInSolve {
			count++
		}
	}
	return count > 1
}

// stageIterations bounds Stage-1's iteration budget well below the full
// solve's, per §4.8's two-stage design (a cheap multi-camera-only pass
// before the full constraint-aware solve).
func stageIterations(maxIterations int) int {
	if maxIterations <= 0 {
		return 30
	}
	if maxIterations > 30 {
		return 30
	}
	return maxIterations
}

// timeNow/timeSince are indirections over time.Now/time.Since so the rest
// of this package never calls time directly outside these two lines,
// matching the teacher's convention of isolating non-deterministic calls.
func timeNow() time.Time { return time.Now() }
func timeSince(t time.Time) float64 { return float64(time.Since(t).Microseconds()) / 1000.0 }
