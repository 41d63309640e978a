package analyzer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gaussianHits builds one event per hit so that the time profile holds
// round(amplitude*gauss(t)) entries at each 1 ns bin center.
func gaussianHits(amplitude, mean, sigma float64) [][]Hit {
	var events [][]Hit
	for t := 100; t < 600; t++ {
		x := float64(t) + 0.5
		z := (x - mean) / sigma
		n := int(math.Round(amplitude * math.Exp(-0.5*z*z)))
		for i := 0; i < n; i++ {
			events = append(events, []Hit{{Strip: 1 + i%7, Time: x}})
		}
	}
	return events
}

func TestTimeProfile(t *testing.T) {
	t.Parallel()

	events := [][]Hit{{{1, 100.2}, {2, 100.7}}, {{3, 599.9}, {4, 600}}, {{5, 50}}}
	h := TimeProfile(events, 100, 600)
	require.Len(t, h.Counts, 500)
	assert.Equal(t, 1.0, h.BinWidth)
	assert.Equal(t, 2.0, h.Counts[0])
	assert.Equal(t, 1.0, h.Counts[499])
	assert.Equal(t, 3, h.Entries)
	assert.Equal(t, 100.5, h.BinCenter(0))

	nan := TimeProfile([][]Hit{{{1, math.NaN()}, {2, 300.5}}}, 100, 600)
	assert.Equal(t, 1, nan.Entries)
	assert.Equal(t, 1.0, nan.Counts[200])

	empty := TimeProfile(nil, 100, 600)
	assert.Equal(t, 0, empty.Entries)
	assert.Equal(t, 0.0, empty.Max())
}

func TestFitGaussianRecoversPeak(t *testing.T) {
	t.Parallel()

	h := TimeProfile(gaussianHits(1000, 267, 9), 100, 600)
	fit, err := FitGaussian(h)
	require.NoError(t, err)
	assert.InDelta(t, 267, fit.Mean, 0.1)
	assert.InDelta(t, 9, fit.Sigma, 0.1)
	assert.InDelta(t, 1000, fit.Amplitude, 10)
	assert.Greater(t, fit.MeanErr, 0.0)
}

// flatHits spreads n hits evenly over [100, 600) ns.
func flatHits(n int) [][]Hit {
	events := make([][]Hit, n)
	for i := range events {
		events[i] = []Hit{{Strip: 1 + i%7, Time: 100 + (float64(i)+0.5)*500/float64(n)}}
	}
	return events
}

func TestFitGaussianWithNoiseFloor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		background int
		sigmaDelta float64
	}{
		{name: "sparse", background: 100, sigmaDelta: 0.2},
		{name: "two per bin", background: 1000, sigmaDelta: 0.6},
		{name: "six per bin", background: 3000, sigmaDelta: 1.2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events := append(gaussianHits(133, 267, 9), flatHits(tt.background)...)
			fit, err := FitGaussian(TimeProfile(events, 100, 600))
			require.NoError(t, err)
			assert.InDelta(t, 267, fit.Mean, 0.2)
			assert.InDelta(t, 9, fit.Sigma, tt.sigmaDelta)
			assert.InDelta(t, 133, fit.Amplitude, 5)
		})
	}

	t.Run("random background", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewSource(3))
		var events [][]Hit
		for i := 0; i < 3000; i++ {
			events = append(events, []Hit{{Strip: 1, Time: 267 + 9*rng.NormFloat64()}})
		}
		for i := 0; i < 3000; i++ {
			events = append(events, []Hit{{Strip: 2, Time: 100 + 500*rng.Float64()}})
		}
		fit, err := FitGaussian(TimeProfile(events, 100, 600))
		require.NoError(t, err)
		assert.InDelta(t, 267, fit.Mean, 1)
		assert.InDelta(t, 9, fit.Sigma, 1.5)
	})
}

func TestEstimateWindowsWithNoiseFloor(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	events := append(gaussianHits(1000, 300, 10), flatHits(3000)...)
	w, err := EstimateWindows(FittedPeak{}, events, geo, EfficiencyScan)
	require.NoError(t, err)
	assert.InDelta(t, 300, w.PeakMean, 0.2)
	assert.InDelta(t, 10, w.PeakSigma, 0.3)
	assert.InDelta(t, 280, w.Muon.Begin, 1)
	assert.InDelta(t, 320, w.Muon.End, 1)
}

func TestFitGaussianEmptyProfile(t *testing.T) {
	t.Parallel()

	_, err := FitGaussian(TimeProfile(nil, 100, 600))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFitNonConvergence))
	var fitErr *FitError
	assert.True(t, errors.As(err, &fitErr))
}

func TestEstimateWindows(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	t.Run("supplied peak", func(t *testing.T) {
		t.Parallel()
		w, err := EstimateWindows(SuppliedPeak{Mean: 267, Sigma: 9}, nil, geo, EfficiencyScan)
		require.NoError(t, err)
		assert.False(t, w.Fitted)
		assert.Equal(t, TimeWindow{Begin: 249, End: 285}, w.Muon)
		assert.Equal(t, TimeWindow{Begin: 305, End: 600}, w.Noise)
		assert.Equal(t, 36.0, w.MuonLength)
	})

	t.Run("fitted peak", func(t *testing.T) {
		t.Parallel()
		w, err := EstimateWindows(FittedPeak{}, gaussianHits(1000, 300, 10), geo, EfficiencyScan)
		require.NoError(t, err)
		assert.True(t, w.Fitted)
		assert.InDelta(t, 280, w.Muon.Begin, 0.5)
		assert.InDelta(t, 320, w.Muon.End, 0.5)
		assert.InDelta(t, 340, w.Noise.Begin, 0.5)
	})

	t.Run("muon window clipped to acquisition", func(t *testing.T) {
		t.Parallel()
		w, err := EstimateWindows(SuppliedPeak{Mean: 10, Sigma: 10}, nil, geo, EfficiencyScan)
		require.NoError(t, err)
		assert.Equal(t, TimeWindow{Begin: 0, End: 30}, w.Muon)
		assert.Equal(t, 40.0, w.MuonLength)
		assert.Equal(t, 50.0, w.Noise.Begin)

		w, err = EstimateWindows(SuppliedPeak{Mean: 590, Sigma: 10}, nil, geo, EfficiencyScan)
		require.NoError(t, err)
		assert.Equal(t, TimeWindow{Begin: 570, End: 600}, w.Muon)
		assert.Equal(t, 0.0, w.Noise.Length())
	})

	t.Run("custom noise offset", func(t *testing.T) {
		t.Parallel()
		w, err := EstimateWindowsWithOffset(SuppliedPeak{Mean: 267, Sigma: 9}, nil, geo, EfficiencyScan, 50)
		require.NoError(t, err)
		assert.Equal(t, 335.0, w.Noise.Begin)
	})

	t.Run("noise scan", func(t *testing.T) {
		t.Parallel()
		w, err := EstimateWindows(FittedPeak{}, nil, geo, NoiseScan)
		require.NoError(t, err)
		assert.Equal(t, TimeWindow{Begin: -1, End: -1}, w.Muon)
		assert.Equal(t, TimeWindow{Begin: 100, End: 10000}, w.Noise)
	})

	t.Run("fit failure", func(t *testing.T) {
		t.Parallel()
		_, err := EstimateWindows(FittedPeak{}, nil, geo, EfficiencyScan)
		assert.ErrorIs(t, err, ErrFitNonConvergence)
	})
}

func TestPeakSource(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FittedPeak{}, PeakSource(-1, -1))
	assert.Equal(t, FittedPeak{}, PeakSource(250, -1))
	assert.Equal(t, SuppliedPeak{Mean: 250, Sigma: 8}, PeakSource(250, 8))
}

func TestScanTypeJSON(t *testing.T) {
	t.Parallel()

	for _, st := range []ScanType{EfficiencyScan, NoiseScan} {
		data, err := st.MarshalJSON()
		require.NoError(t, err)
		var got ScanType
		require.NoError(t, got.UnmarshalJSON(data))
		assert.Equal(t, st, got)
	}
	var bad ScanType
	assert.Error(t, bad.UnmarshalJSON([]byte(`"threshold"`)))
}
