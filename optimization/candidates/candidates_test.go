package candidates

import (
	"testing"

	"github.com/mfagerlund/rotera/model"
	"go.viam.com/test"
)

func TestEnumerateDeterministicStrategyUsesSeed42Only(t *testing.T) {
	meta := func(int) StrategyMetadata { return StrategyMetadata{IsDeterministic: true} }
	cands := Enumerate([]int{0}, meta, []uint64{42, 12345, 98765}, nil)
	test.That(t, len(cands), test.ShouldEqual, 1)
	test.That(t, cands[0].Seed, test.ShouldEqual, uint64(42))
}

func TestEnumerateAmbiguousStrategyEmitsBothSigns(t *testing.T) {
	meta := func(int) StrategyMetadata { return StrategyMetadata{IsDeterministic: false, HasAlignmentAmbiguity: true} }
	cands := Enumerate([]int{2}, meta, []uint64{42, 12345, 98765}, nil)
	test.That(t, len(cands), test.ShouldEqual, 6) // 3 seeds x 2 signs

	signs := map[float64]int{}
	for _, c := range cands {
		signs[c.AlignmentSign]++
	}
	test.That(t, signs[1.0], test.ShouldEqual, 3)
	test.That(t, signs[-1.0], test.ShouldEqual, 3)
}

func TestDriveSingleCandidateRoundTrip(t *testing.T) {
	proj := model.NewProject()
	proj.AddFeature(&model.Feature{ID: "f1"})

	called := 0
	probe := func(c Candidate, maxIter int) ProbeResult {
		called++
		return ProbeResult{Residual: 0.5, Converged: true}
	}

	winner, result := Drive(proj, []Candidate{{Strategy: 1, Seed: 42}}, probe, 100)
	test.That(t, winner.Strategy, test.ShouldEqual, 1)
	test.That(t, result.Residual, test.ShouldEqual, 0.5)
	// One probe pass plus the final re-run.
	test.That(t, called, test.ShouldEqual, 2)
}

func TestDriveStopsEarlyBelowGoodEnoughThreshold(t *testing.T) {
	proj := model.NewProject()
	residuals := map[uint64]float64{1: 50, 2: 5, 3: 40}
	calledSeeds := []uint64{}
	probe := func(c Candidate, maxIter int) ProbeResult {
		calledSeeds = append(calledSeeds, c.Seed)
		return ProbeResult{Residual: residuals[c.Seed]}
	}
	cands := []Candidate{{Seed: 1}, {Seed: 2}, {Seed: 3}}
	winner, result := Drive(proj, cands, probe, 100)
	test.That(t, winner.Seed, test.ShouldEqual, uint64(2))
	test.That(t, result.Residual, test.ShouldEqual, float64(5))
	// Seed 3 is never probed: the early exit on seed 2 short-circuits
	// the remaining candidates in this probing pass.
	test.That(t, calledSeeds, test.ShouldResemble, []uint64{1, 2, 2})
}

func TestDrivePicksLowestResidualWithoutEarlyExit(t *testing.T) {
	proj := model.NewProject()
	residuals := map[uint64]float64{1: 50, 2: 30, 3: 80}
	probe := func(c Candidate, maxIter int) ProbeResult {
		return ProbeResult{Residual: residuals[c.Seed]}
	}
	cands := []Candidate{{Seed: 1}, {Seed: 2}, {Seed: 3}}
	winner, _ := Drive(proj, cands, probe, 100)
	test.That(t, winner.Seed, test.ShouldEqual, uint64(2))
}
