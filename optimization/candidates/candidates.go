// Package candidates implements the candidate-testing driver of spec
// §4.12: enumerate strategy x seed x inference-branch x alignment-sign
// combinations, probe each against a snapshot, and re-run the winner at
// full budget.
package candidates

import (
	"sort"

	"github.com/mfagerlund/rotera/model"
	"github.com/mfagerlund/rotera/optimization/snapshot"
)

// GoodEnoughProbe is the residual below which probing stops early and
// the current configuration is accepted as the winner (§4.12).
const GoodEnoughProbe = 10.0

// GoodEnoughBranch is the residual threshold used for branch/attempt
// level early exits, stricter than the probe-level threshold.
const GoodEnoughBranch = 2.0

// tierOneCutover is the candidate count above which two-tier probing
// kicks in (§4.12: "when |candidates| > 24").
const tierOneCutover = 24

// tierOneIterations and tierOneKeep bound the cheap first pass.
const (
	tierOneIterations = 50
	tierOneKeep       = 8
)

// Candidate is one (strategy, seed, inference branch, alignment sign)
// combination the driver can probe. Strategy and InferenceBranch are
// opaque to this package; it only needs to pass them back to Probe.
type Candidate struct {
	Strategy        int
	Seed            uint64
	InferenceBranch int
	AlignmentSign   float64
}

// StrategyMetadata mirrors caminit.Strategy.Metadata(), kept as a local
// interface so this package does not import caminit (avoiding a
// dependency cycle with the orchestrator, which imports both).
type StrategyMetadata struct {
	IsDeterministic       bool
	HasAlignmentAmbiguity bool
}

// Enumerate builds the cross product of strategies x seeds x inference
// branches x alignment signs, applying the per-axis pruning of §4.12:
// deterministic strategies use only seed 42; non-deterministic
// strategies use the three given seeds. Strategies without alignment
// ambiguity emit one candidate per (seed, branch); those with ambiguity
// emit two (+1/-1).
func Enumerate(strategies []int, metadata func(int) StrategyMetadata, seeds []uint64, inferenceBranches []int) []Candidate {
	if len(seeds) == 0 {
		seeds = []uint64{42}
	}
	var out []Candidate
	for _, strat := range strategies {
		meta := metadata(strat)
		stratSeeds := seeds
		if meta.IsDeterministic {
			stratSeeds = []uint64{42}
		}
		branches := inferenceBranches
		if len(branches) == 0 {
			branches = []int{0}
		}
		signs := []float64{1}
		if meta.HasAlignmentAmbiguity {
			signs = []float64{1, -1}
		}
		for _, seed := range stratSeeds {
			for _, branch := range branches {
				for _, sign := range signs {
					out = append(out, Candidate{Strategy: strat, Seed: seed, InferenceBranch: branch, AlignmentSign: sign})
				}
			}
		}
	}
	return out
}

// ProbeResult is what one candidate's pipeline run produced.
type ProbeResult struct {
	Residual  float64
	Converged bool
}

// ProbeFunc runs the full pipeline against proj's current (already
// restored) state for one candidate at the given iteration budget.
type ProbeFunc func(c Candidate, maxIterations int) ProbeResult

// Drive runs the candidate-testing procedure of §4.12 against proj:
// two-tier probing when len(candidates) > 24, single-tier otherwise,
// snapshot-restored between every probe, with early exit on
// GoodEnoughProbe. After probing, the snapshot is restored and the
// winner is re-run once at callerBudget. Returns the winning candidate
// and its full-budget result.
//
// If len(candidates) == 0, probe is still called once with a zero-value
// Candidate so callers that don't need enumeration (e.g. a single fixed
// strategy) get a uniform code path; if len(candidates) == 1, Drive's
// output is exactly probe's direct output (§8 "round-trip of candidate
// driver").
func Drive(proj *model.Project, candidatesIn []Candidate, probe ProbeFunc, callerBudget int) (Candidate, ProbeResult) {
	cands := candidatesIn
	if len(cands) == 0 {
		cands = []Candidate{{}}
	}

	entry := snapshot.Capture(proj)

	type scored struct {
		c Candidate
		r ProbeResult
	}

	runTier := func(set []Candidate, maxIter int) ([]scored, bool) {
		var results []scored
		for _, c := range set {
			entry.Restore()
			r := probe(c, maxIter)
			results = append(results, scored{c, r})
			if r.Residual < GoodEnoughProbe {
				entry.Restore()
				return []scored{{c, r}}, true
			}
		}
		sort.Slice(results, func(i, j int) bool { return results[i].r.Residual < results[j].r.Residual })
		return results, false
	}

	var winner scored
	if len(cands) > tierOneCutover {
		tier1, earlyExit := runTier(cands, tierOneIterations)
		if earlyExit {
			winner = tier1[0]
		} else {
			keep := tier1
			if len(keep) > tierOneKeep {
				keep = keep[:tierOneKeep]
			}
			var tier2Set []Candidate
			for _, s := range keep {
				tier2Set = append(tier2Set, s.c)
			}
			tier2, earlyExit2 := runTier(tier2Set, capIterations(callerBudget, 200))
			winner = tier2[0]
			_ = earlyExit2
		}
	} else {
		single, earlyExit := runTier(cands, capIterations(callerBudget, 200))
		winner = single[0]
		_ = earlyExit
	}

	entry.Restore()
	final := probe(winner.c, callerBudget)
	return winner.c, final
}

// capIterations returns the smaller of budget and cap; a non-positive
// budget (no caller-specified limit) defers to cap.
func capIterations(budget, cap int) int {
	if budget <= 0 || budget > cap {
		return cap
	}
	return budget
}
