package analyzer

import (
	"fmt"
	"math"
)

// Efficiency is the fraction of triggers with at least one hit, measured in
// the whole acquisition window (absolute) and in the muon window.
type Efficiency struct {
	Triggers    int
	FiredAbs    int
	FiredMuon   int
	Absolute    float64
	AbsoluteErr float64
	Muon        float64
	MuonErr     float64
}

// ComputeEfficiency counts, over the validated events, those with hits in
// each window. Errors are binomial standard errors.
func ComputeEfficiency(perEventHitsFull [][]Hit, perEventHitsMuon [][]Hit, nTriggers int) (Efficiency, error) {
	if nTriggers <= 0 {
		return Efficiency{}, fmt.Errorf("efficiency over %d triggers: %w", nTriggers, ErrZeroTriggers)
	}
	eff := Efficiency{
		Triggers:  nTriggers,
		FiredAbs:  countFired(perEventHitsFull),
		FiredMuon: countFired(perEventHitsMuon),
	}
	eff.Absolute, eff.AbsoluteErr = binomial(eff.FiredAbs, nTriggers)
	eff.Muon, eff.MuonErr = binomial(eff.FiredMuon, nTriggers)
	return eff, nil
}

func countFired(perEventHits [][]Hit) int {
	fired := 0
	for _, hits := range perEventHits {
		if len(hits) > 0 {
			fired++
		}
	}
	return fired
}

// binomial returns k/n and sqrt(p(1-p)/n).
func binomial(k int, n int) (float64, float64) {
	p := float64(k) / float64(n)
	return p, math.Sqrt(p * (1 - p) / float64(n))
}
