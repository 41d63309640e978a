package analyzer

import (
	"fmt"
)

// nsToSeconds converts window lengths from the DAQ unit.
const nsToSeconds = 1e-9

// NoiseParams normalise the hit count of the noise window to a rate.
type NoiseParams struct {
	StripArea      float64 // cm2
	WindowLength   float64 // ns
	ValidatedCount int
	TotalStrips    int
	MaskedStrips   int
}

// NoiseParamsFor builds the normalisation of a HV point from its geometry.
func NoiseParamsFor(geo Geometry, window TimeWindow, validated int) NoiseParams {
	return NoiseParams{
		StripArea:      geo.StripArea,
		WindowLength:   window.Length(),
		ValidatedCount: validated,
		TotalStrips:    geo.TotalStrips(),
		MaskedStrips:   geo.MaskedCount(),
	}
}

// exposure is strip area x window length x number of events, in cm2 s.
func (p NoiseParams) exposure() (float64, error) {
	if p.ValidatedCount <= 0 {
		return 0, fmt.Errorf("noise rate over %d events: %w", p.ValidatedCount, ErrZeroTriggers)
	}
	if p.StripArea <= 0 || p.WindowLength <= 0 {
		return 0, fmt.Errorf("noise rate with area %.3f cm2 and window %.1f ns: %w",
			p.StripArea, p.WindowLength, ErrInvalidGeometry)
	}
	return p.StripArea * p.WindowLength * nsToSeconds * float64(p.ValidatedCount), nil
}

// ComputeNoiseRate returns the mean noise rate per unmasked strip in
// Hz/cm2: total hits in the noise window over area, window length, number
// of validated events and active strips.
func ComputeNoiseRate(perEventHitsNoise [][]Hit, params NoiseParams) (float64, error) {
	exposure, err := params.exposure()
	if err != nil {
		return 0, err
	}
	active := params.TotalStrips - params.MaskedStrips
	if active <= 0 {
		return 0, fmt.Errorf("noise rate with %d active strips: %w", active, ErrInvalidGeometry)
	}
	return float64(countHits(perEventHitsNoise)) / (exposure * float64(active)), nil
}

// StripOccupancy counts hits per strip. Strips lists every unmasked strip
// of the geometry, so strips without hits appear with a zero count.
type StripOccupancy struct {
	Strips []int
	Counts map[int]int
}

// StripProfile counts the hits of every event per strip.
func StripProfile(perEventHits [][]Hit, geo Geometry) StripOccupancy {
	occupancy := StripOccupancy{Counts: make(map[int]int)}
	for _, strip := range geo.ActiveStrips() {
		occupancy.Counts[strip] = 0
	}
	for _, hits := range perEventHits {
		for _, hit := range hits {
			occupancy.Counts[hit.Strip]++
		}
	}
	occupancy.Strips = SortedKeys(occupancy.Counts)
	return occupancy
}

// Total number of hits in the profile.
func (o StripOccupancy) Total() int {
	total := 0
	for _, c := range o.Counts {
		total += c
	}
	return total
}

// NoiseProfile scales a strip profile of the noise window to Hz/cm2 per
// strip.
func NoiseProfile(occupancy StripOccupancy, params NoiseParams) (map[int]float64, error) {
	exposure, err := params.exposure()
	if err != nil {
		return nil, err
	}
	rates := make(map[int]float64, len(occupancy.Counts))
	for strip, count := range occupancy.Counts {
		rates[strip] = float64(count) / exposure
	}
	return rates, nil
}
