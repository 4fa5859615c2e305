// Package caminit orchestrates per-camera initialization strategy
// selection (spec §4.5): vanishing-point PnP, stepped VP, essential
// matrix, and late-PnP-only, picking among the viable strategies for the
// project's current state.
package caminit

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/essential"
	"github.com/mfagerlund/rotera/optimization/mathkernel"
	"github.com/mfagerlund/rotera/optimization/pnp"
	"github.com/mfagerlund/rotera/optimization/vp"
	"github.com/mfagerlund/rotera/randx"
	"github.com/mfagerlund/rotera/solvelog"
)

// Strategy is a tagged camera-initialization approach.
type Strategy int

const (
	StrategyVPPnP Strategy = iota
	StrategySteppedVP
	StrategyEssentialMatrix
	StrategyLatePnPOnly
)

// Metadata describes a strategy's determinism and alignment-ambiguity
// properties, consumed by the candidate-testing driver (§4.12).
type Metadata struct {
	IsDeterministic       bool
	HasAlignmentAmbiguity bool
}

// Metadata returns the strategy's determinism/ambiguity properties.
func (s Strategy) Metadata() Metadata {
	switch s {
	case StrategyEssentialMatrix:
		return Metadata{IsDeterministic: false, HasAlignmentAmbiguity: true}
	default:
		return Metadata{IsDeterministic: true, HasAlignmentAmbiguity: false}
	}
}

// Pose is a camera pose produced by any initialization path.
type Pose struct {
	Position r3.Vector
	Rotation mathkernel.Matrix3
}

// UninitializedMarker is the pose assigned to a camera whose
// initialization attempt failed (§4.5: "still uninitialized" marker).
var UninitializedMarker = Pose{Position: r3.Vector{}, Rotation: mathkernel.Identity3()}

// Diagnostics records which fallback paths were taken during init (§4.5).
type Diagnostics struct {
	UsedEssentialMatrix bool
	SteppedVPReverted   bool
	VPEMHybridApplied   bool
}

// Result is the outcome of running camera initialization.
type Result struct {
	CamerasInitialized []model.ID
	CamerasViaVP       map[model.ID]bool
	Poses              map[model.ID]Pose
	Diagnostics        Diagnostics
}

func newResult() Result {
	return Result{CamerasViaVP: map[model.ID]bool{}, Poses: map[model.ID]Pose{}}
}

// Capabilities flags which VP-based approaches an uninitialized camera
// in the project can attempt.
type Capabilities struct {
	AnyVPStrict  bool // >=2 axis correspondences
	AnyVPRelaxed bool // >=1 axis correspondence
}

// ViableStrategies returns the subset of strategies applicable given the
// project's uninitialized cameras, fully-constrained features, and VP
// capability flags.
func ViableStrategies(hasLockedPoints bool, capabilities Capabilities, uninitializedCount int) []Strategy {
	var out []Strategy
	if capabilities.AnyVPStrict || capabilities.AnyVPRelaxed {
		out = append(out, StrategyVPPnP, StrategySteppedVP)
	}
	if !hasLockedPoints && uninitializedCount >= 2 {
		out = append(out, StrategyEssentialMatrix)
	}
	out = append(out, StrategyLatePnPOnly)
	return out
}

// CameraInput bundles the per-camera data a strategy needs.
type CameraInput struct {
	ID                      model.ID
	Width, Height           int
	AxisLines               map[model.Axis][]model.VanishingLine
	PositionCorrespondences []vp.Correspondence
	ReprojCorrespondences   []vp.Correspondence
	PnPCorrespondences      []pnp.Correspondence
}

func pnpCamera(cam CameraInput) pnp.Camera {
	return pnp.Camera{Focal: float64(cam.Width), Aspect: 1, Principal: r2.Point{X: float64(cam.Width) / 2, Y: float64(cam.Height) / 2}}
}

// Run executes strategy over the given cameras, returning the initialized
// poses keyed by camera ID and diagnostics about fallbacks taken.
// Cameras that fail every attempt are recorded with UninitializedMarker.
func Run(strategy Strategy, cameras []CameraInput, log *solvelog.Buffer, seed uint64) Result {
	result := newResult()
	src := randx.New(seed)

	for _, cam := range cameras {
		pose, viaVP, ok := initOne(strategy, cam, src, &result.Diagnostics)
		result.CamerasInitialized = append(result.CamerasInitialized, cam.ID)
		if ok {
			result.Poses[cam.ID] = pose
			if viaVP {
				result.CamerasViaVP[cam.ID] = true
			}
			if log != nil {
				log.Logf(solvelog.TagInit, "camera %s initialized (viaVP=%v)", cam.ID, viaVP)
			}
		} else {
			result.Poses[cam.ID] = UninitializedMarker
			if log != nil {
				log.Logf(solvelog.TagInit, "camera %s failed to initialize under strategy %d", cam.ID, strategy)
			}
		}
	}
	return result
}

func initOne(strategy Strategy, cam CameraInput, src *randx.Source, diag *Diagnostics) (Pose, bool, bool) {
	switch strategy {
	case StrategyVPPnP, StrategySteppedVP:
		if pose, ok := tryVP(cam, src); ok {
			return pose, true, true
		}
		if pose, ok := tryPnP(cam); ok {
			diag.SteppedVPReverted = true
			return pose, false, true
		}
		return Pose{}, false, false

	case StrategyLatePnPOnly:
		pose, ok := tryPnP(cam)
		return pose, false, ok

	case StrategyEssentialMatrix:
		diag.UsedEssentialMatrix = true
		return Pose{}, false, false

	default:
		return Pose{}, false, false
	}
}

func tryPnP(cam CameraInput) (Pose, bool) {
	if len(cam.PnPCorrespondences) < 3 {
		return Pose{}, false
	}
	result := pnp.Solve(pnpCamera(cam), cam.PnPCorrespondences, pnp.DefaultOptions())
	if !result.Success {
		return Pose{}, false
	}
	return Pose{Position: result.Pose.Position, Rotation: result.Pose.Rotation}, true
}

// tryVP attempts vanishing-point-based initialization for one camera:
// detect VPs per axis, estimate focal length, derive rotation candidates,
// estimate position, and disambiguate sign.
func tryVP(cam CameraInput, src *randx.Source) (Pose, bool) {
	vps := map[model.Axis]r2.Point{}
	for axis, lines := range cam.AxisLines {
		if len(lines) < 2 {
			continue
		}
		point, ok := vp.Detect(lines, src)
		if !ok || !vp.Validate(point) {
			continue
		}
		vps[axis] = point
	}
	if len(vps) < 2 {
		return Pose{}, false
	}

	principal := r2.Point{X: float64(cam.Width) / 2, Y: float64(cam.Height) / 2}
	focal, ok := vp.EstimateFocalLength(vps, principal, float64(cam.Width))
	if !ok {
		focal = float64(cam.Width)
	}

	candidates := vp.DeriveRotationCandidates(vps, principal, focal)
	for _, rotation := range candidates {
		signResult, ok := vp.Disambiguate(rotation, focal, 1, principal, cam.PositionCorrespondences, cam.ReprojCorrespondences, nil, nil)
		if ok {
			return Pose{Position: signResult.Position, Rotation: signResult.Rotation}, true
		}
	}
	return Pose{}, false
}

// EssentialMatrixBootstrap runs the two-view essential-matrix fallback
// between a reference camera (held fixed at the identity pose) and one
// other camera, returning the derived relative pose (§4.4, §4.5). The
// result's AlignmentSign is the ambiguity the candidate driver searches.
func EssentialMatrixBootstrap(camA, camB pnp.Camera, corr []essential.Correspondence) (essential.Result, bool) {
	r := essential.Solve(essential.Camera(camA), essential.Camera(camB), corr)
	return r, r.Success
}
