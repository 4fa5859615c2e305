// Package outliers implements post-solve outlier detection and the
// late-PnP-camera exclusion/re-solve path of spec §4.9: per-observation
// reprojection error, flagging against max(3*median, threshold), and
// exclusion of any
// camera whose observations are 100% flagged.
package outliers

import (
	"math"
	"sort"

	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/solvelog"
	"gonum.org/v1/gonum/stat"
)

// Report summarizes one detection pass.
type Report struct {
	FlaggedObservations []model.ID
	RMS                  float64
	Median               float64
	// ExcludedCameras lists viewpoints whose observations were all
	// flagged as outliers and which were therefore disabled.
	ExcludedCameras []model.ID
}

// Detect computes reprojection error for every observation on an
// enabled viewpoint, flags observations whose error exceeds
// max(3*median, thresholdPx), and returns a report. It does not exclude
// cameras or mutate anything beyond ImageObservation.IsOutlier; the
// camera-exclusion policy is ExcludeFullyFlaggedCameras' job (called separately so a
// caller can inspect the report before deciding to re-solve).
func Detect(proj *model.Project, thresholdPx float64, log *solvelog.Buffer) Report {
	type sample struct {
		obs   *model.ImageObservation
		error float64
	}

	var samples []sample
	for _, vp := range proj.Viewpoints() {
		if !vp.EnabledInSolve {
			continue
		}
		for _, obs := range proj.ObservationsForViewpoint(vp.ID) {
			feat, ok := proj.Feature(obs.Feature)
			if !ok {
				continue
			}
			pred, ok := vp.Project(feat.EffectiveXYZ())
			if !ok {
				samples = append(samples, sample{obs: obs, error: math.Inf(1)})
				continue
			}
			dx, dy := pred.X-obs.Pixel.X, pred.Y-obs.Pixel.Y
			samples = append(samples, sample{obs: obs, error: math.Hypot(dx, dy)})
		}
	}

	report := Report{}
	if len(samples) == 0 {
		return report
	}

	errs := make([]float64, len(samples))
	for i, s := range samples {
		errs[i] = s.error
	}
	sortedErrs := append([]float64(nil), errs...)
	sort.Float64s(sortedErrs)
	median := stat.Quantile(0.5, stat.Empirical, sortedErrs, nil)
	threshold := math.Max(3*median, thresholdPx)

	var sumSq float64
	for i, s := range samples {
		obs := s.obs
		obs.IsOutlier = errs[i] > threshold
		if obs.IsOutlier {
			report.FlaggedObservations = append(report.FlaggedObservations, obs.ID)
		}
		if !math.IsInf(errs[i], 1) {
			sumSq += errs[i] * errs[i]
		}
	}
	report.RMS = math.Sqrt(sumSq / float64(len(samples)))
	report.Median = median

	if log != nil {
		log.Logf(solvelog.TagOutliers, "flagged %d/%d observations (median=%.3fpx, threshold=%.3fpx)",
			len(report.FlaggedObservations), len(samples), median, threshold)
	}
	return report
}

// ExcludeFullyFlaggedCameras disables (EnabledInSolve=false) every
// viewpoint whose every observation is flagged as an outlier, per §4.9's
// "if late-PnP-initialized cameras reach 100% outliers, exclude them".
// lateInitialized restricts exclusion to the camera IDs the caller
// considers late-PnP-initialized; pass nil to consider every camera.
func ExcludeFullyFlaggedCameras(proj *model.Project, lateInitialized map[model.ID]bool, log *solvelog.Buffer) []model.ID {
	var excluded []model.ID
	for _, vp := range proj.Viewpoints() {
		if !vp.EnabledInSolve {
			continue
		}
		if lateInitialized != nil && !lateInitialized[vp.ID] {
			continue
		}
		obs := proj.ObservationsForViewpoint(vp.ID)
		if len(obs) == 0 {
			continue
		}
		allOutliers := true
		for _, o := range obs {
			if !o.IsOutlier {
				allOutliers = false
				break
			}
		}
		if allOutliers {
			vp.EnabledInSolve = false
			excluded = append(excluded, vp.ID)
			if log != nil {
				log.Logf(solvelog.TagOutliers, "camera %s excluded: 100%% of its observations are outliers", vp.ID)
			}
		}
	}
	return excluded
}

// ResetUnderconstrainedFeatures clears OptimizedXYZ/InferredXYZ on any
// feature that is no longer fully constrained after cameras were
// excluded, so world-point initialization can run again from scratch
// (§4.9: "reset any features that are not fully constrained").
func ResetUnderconstrainedFeatures(proj *model.Project) []model.ID {
	var reset []model.ID
	for _, f := range proj.Features() {
		if f.IsFullyConstrained() {
			continue
		}
		f.InferredXYZ = model.AxisValues{}
		f.OptimizedXYZ = f.LockedXYZ.Vector()
		reset = append(reset, f.ID)
	}
	return reset
}

// AllCamerasExcluded reports whether every viewpoint in proj has been
// disabled, the §4.9/§7 fatal condition that forces a residual=∞ result.
func AllCamerasExcluded(proj *model.Project) bool {
	any := false
	for _, vp := range proj.Viewpoints() {
		any = true
		if vp.EnabledInSolve {
			return false
		}
	}
	return any
}
