package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointEvents returns n valid events, the first fired of them with a muon
// hit on strip 3 at 270 ns, the first noisy of them with a noise hit on
// strip 5 at 400 ns, plus one corrupted event.
func pointEvents(n, fired, noisy int) []RawEvent {
	events := make([]RawEvent, 0, n+1)
	for i := 0; i < n; i++ {
		var pairs []any
		if i < fired {
			pairs = append(pairs, 4003, 270.0)
		}
		if i < noisy {
			pairs = append(pairs, 4005, 400.0)
		}
		events = append(events, rawEvent(i, 110, pairs...))
	}
	events = append(events, rawEvent(n, 102, 4001, 270.0, 4002, 271.0))
	return events
}

func TestAnalyzePointEfficiencyScan(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	res, err := AnalyzePoint(PointInput{
		ScanID:       5,
		HVPoint:      3,
		ScanType:     EfficiencyScan,
		Events:       pointEvents(10, 8, 5),
		Geometry:     geo,
		Peak:         SuppliedPeak{Mean: 267, Sigma: 9},
		ClusterTimes: ClusterTimes{Nominal: 10, Up: 4, Down: 16},
		NoiseOffset:  NoiseOffsetFromMuonWindow,
		StudyTimes:   []float64{5, 10},
		Top:          GapReading{Current: 1.2, HVeff: 7000},
		Bot:          GapReading{Current: 0.8, HVeff: 6990},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, res.Validated)
	assert.Equal(t, TimeWindow{Begin: 249, End: 285}, res.Windows.Muon)
	assert.Equal(t, TimeWindow{Begin: 305, End: 600}, res.Windows.Noise)
	assert.Equal(t, 0.8, res.Efficiency.Muon)
	assert.Equal(t, 0.8, res.Efficiency.Absolute)
	assert.Equal(t, 1.0, res.Cluster.MeanSize)
	assert.InDelta(t, 0.8, res.Cluster.MeanMultiplicity, 1e-12)
	assert.Len(t, res.Study, 2)

	wantRate := 5 / (10 * 295e-9 * 10 * 7)
	assert.InDelta(t, wantRate, res.NoiseRate, 1e-6)
	assert.InDelta(t, 5/(10*295e-9*10), res.NoiseProfile[5], 1e-6)
	assert.Equal(t, 0.0, res.NoiseProfile[1])

	assert.Equal(t, 7000.0, res.Point.Voltage)
	assert.Equal(t, 1.2, res.Point.CurrentTop)
	assert.Equal(t, 0.8, res.Point.EffMuon)

	out := res.Record.Output
	assert.Equal(t, 267.0, out.MuonWindowMean)
	assert.Equal(t, 36.0, out.MuonTimeWindow)
	assert.Equal(t, 295.0, out.NoiseTimeWindow)
	assert.Equal(t, 0.8, out.EfficiencyMuon)
	assert.Equal(t, 10, out.ValidatedEvents)
	assert.Equal(t, 3, res.Record.Input.HVPoint)
	assert.Equal(t, 600.0, res.Record.Input.TriggerWindow)
}

func TestAnalyzePointDefaultNoiseOffset(t *testing.T) {
	t.Parallel()

	res, err := AnalyzePoint(PointInput{
		ScanType:     EfficiencyScan,
		Events:       pointEvents(10, 8, 5),
		Geometry:     testGeometry(t),
		Peak:         SuppliedPeak{Mean: 267, Sigma: 9},
		ClusterTimes: ClusterTimes{Nominal: 10, Up: 4, Down: 16},
	})
	require.NoError(t, err)
	assert.Equal(t, TimeWindow{Begin: 305, End: 600}, res.Windows.Noise)
	assert.Equal(t, NoiseOffsetFromMuonWindow, res.Record.Input.NoiseOffsetFromMuonWindow)
}

func TestAnalyzePointNoiseScan(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	res, err := AnalyzePoint(PointInput{
		ScanID:   6,
		HVPoint:  1,
		ScanType: NoiseScan,
		Events:   pointEvents(4, 4, 0),
		Geometry: geo,
		Top:      GapReading{HVeff: 3},
		Bot:      GapReading{HVeff: 6500},
	})
	require.NoError(t, err)

	assert.Equal(t, TimeWindow{Begin: 100, End: 10000}, res.Windows.Noise)
	assert.InDelta(t, 4/(10*9900e-9*4*7), res.NoiseRate, 1e-6)
	assert.Equal(t, 6500.0, res.Point.Voltage)
	assert.Equal(t, notComputed, res.Point.EffMuon)
	assert.Equal(t, notComputed, res.Point.ClusterSize)
	assert.Equal(t, notComputed, res.Record.Output.MuonCLS)
	assert.Equal(t, notComputed, res.Record.Output.MuonTimeWindowBegin)
	assert.Equal(t, 10000.0, res.Record.Input.TriggerWindow)
}

func TestAnalyzePointFailures(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	t.Run("no valid events", func(t *testing.T) {
		t.Parallel()
		_, err := AnalyzePoint(PointInput{
			HVPoint:  2,
			Events:   []RawEvent{rawEvent(1, 2, 4001, 270.0)},
			Geometry: geo,
			Peak:     SuppliedPeak{Mean: 267, Sigma: 9},
		})
		assert.ErrorIs(t, err, ErrZeroTriggers)
		var pointErr *PointError
		require.ErrorAs(t, err, &pointErr)
		assert.Equal(t, 2, pointErr.HVPoint)
	})

	t.Run("peak fit failure", func(t *testing.T) {
		t.Parallel()
		_, err := AnalyzePoint(PointInput{
			HVPoint:  2,
			Events:   pointEvents(3, 0, 0),
			Geometry: geo,
		})
		assert.ErrorIs(t, err, ErrFitNonConvergence)
	})

	t.Run("empty noise window", func(t *testing.T) {
		t.Parallel()
		_, err := AnalyzePoint(PointInput{
			HVPoint:     2,
			Events:      pointEvents(3, 3, 0),
			Geometry:    geo,
			Peak:        SuppliedPeak{Mean: 590, Sigma: 10},
			NoiseOffset: NoiseOffsetFromMuonWindow,
		})
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	})
}
