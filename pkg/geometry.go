package analyzer

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Geometry is the static description of one detector readout: channel to
// strip mapping, masked strips, DAQ window lengths and strip area. It is
// loaded once per run and never mutated; use Prepare to obtain a copy with
// the lookup tables filled in.
type Geometry struct {
	Name               string  `json:"name,omitempty"`
	Channels           []int   `json:"TDC_channels"`
	Strips             []int   `json:"TDC_strips"`
	MaskedStrips       []int   `json:"TDC_strips_mask"`
	MuonTriggerWindow  float64 `json:"muonTriggerWindow"`  // ns
	NoiseTriggerWindow float64 `json:"noiseTriggerWindow"` // ns
	TimeWindowReject   float64 `json:"timeWindowReject"`   // ns
	MuonWindowWidth    float64 `json:"muonWindowWidth"`    // one-sided sigmas
	StripArea          float64 `json:"stripArea"`          // cm2
	TopGapName         string  `json:"topGapName"`
	BotGapName         string  `json:"botGapName"`

	stripByChannel map[int]int
	masked         map[int]struct{}
}

// Prepare validates the table and returns a copy with channel and mask
// lookups built.
func (g Geometry) Prepare() (Geometry, error) {
	if len(g.Channels) == 0 {
		return g, fmt.Errorf("geometry %q has no channels: %w", g.Name, ErrInvalidGeometry)
	}
	if len(g.Channels) != len(g.Strips) {
		return g, fmt.Errorf("geometry %q: %d channels but %d strips: %w",
			g.Name, len(g.Channels), len(g.Strips), ErrInvalidGeometry)
	}
	if g.MuonTriggerWindow <= 0 || g.NoiseTriggerWindow <= 0 {
		return g, fmt.Errorf("geometry %q: trigger windows must be positive: %w", g.Name, ErrInvalidGeometry)
	}
	if g.TimeWindowReject < 0 || g.TimeWindowReject >= g.MuonTriggerWindow {
		return g, fmt.Errorf("geometry %q: rejection window %.1f ns outside muon trigger window: %w",
			g.Name, g.TimeWindowReject, ErrInvalidGeometry)
	}
	if g.StripArea <= 0 {
		return g, fmt.Errorf("geometry %q: strip area must be positive: %w", g.Name, ErrInvalidGeometry)
	}

	prepared := g
	prepared.Channels = slices.Clone(g.Channels)
	prepared.Strips = slices.Clone(g.Strips)
	prepared.MaskedStrips = slices.Clone(g.MaskedStrips)
	prepared.stripByChannel = make(map[int]int, len(g.Channels))
	for i, channel := range g.Channels {
		if _, ok := prepared.stripByChannel[channel]; ok {
			return g, fmt.Errorf("geometry %q: channel %d mapped twice: %w", g.Name, channel, ErrInvalidGeometry)
		}
		prepared.stripByChannel[channel] = g.Strips[i]
	}
	prepared.masked = make(map[int]struct{}, len(g.MaskedStrips))
	for _, strip := range g.MaskedStrips {
		prepared.masked[strip] = struct{}{}
	}
	return prepared, nil
}

// StripOf returns the strip read out by a TDC channel.
func (g Geometry) StripOf(channel int) (int, bool) {
	if g.stripByChannel != nil {
		strip, ok := g.stripByChannel[channel]
		return strip, ok
	}
	idx := slices.Index(g.Channels, channel)
	if idx < 0 {
		return 0, false
	}
	return g.Strips[idx], true
}

// IsMasked reports whether a strip is excluded from the analysis.
func (g Geometry) IsMasked(strip int) bool {
	if g.masked != nil {
		_, ok := g.masked[strip]
		return ok
	}
	return slices.Contains(g.MaskedStrips, strip)
}

// TotalStrips is the number of read out strips, masked ones included.
func (g Geometry) TotalStrips() int {
	return len(g.Strips)
}

// MaskedCount is the number of read out strips that are masked.
func (g Geometry) MaskedCount() int {
	count := 0
	for _, strip := range g.Strips {
		if g.IsMasked(strip) {
			count++
		}
	}
	return count
}

// ActiveStrips lists the unmasked strips in ascending order.
func (g Geometry) ActiveStrips() []int {
	active := make(map[int]struct{}, len(g.Strips))
	for _, strip := range g.Strips {
		if g.IsMasked(strip) {
			continue
		}
		active[strip] = struct{}{}
	}
	return SortedKeys(active)
}

// TriggerWindow is the acquisition window length for the scan type.
func (g Geometry) TriggerWindow(scanType ScanType) float64 {
	if scanType == NoiseScan {
		return g.NoiseTriggerWindow
	}
	return g.MuonTriggerWindow
}
