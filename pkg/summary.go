package analyzer

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
)

// ScanSummary is the scan level result. Efficiencies are in percent; values
// that do not apply to the scan type are -1.
type ScanSummary struct {
	ScanID          int         `json:"scanid"`
	ScanType        ScanType    `json:"scanType"`
	WorkingPoint    float64     `json:"workingPoint"`
	WorkingPointErr float64     `json:"workingPoint_err"`
	Efficiency      float64     `json:"eff"`
	EffMax          float64     `json:"effMax"`
	Lambda          float64     `json:"lambda"`
	LambdaErr       float64     `json:"lambda_err"`
	HV50            float64     `json:"hv50"`
	HV50Err         float64     `json:"hv50_err"`
	WorkingPointRaw float64     `json:"workingPoint_raw"`
	EfficiencyRaw   float64     `json:"eff_raw"`
	EffMaxRaw       float64     `json:"effMax_raw"`
	CurrentTop      float64     `json:"iMonTop"`
	CurrentBot      float64     `json:"iMonBot"`
	CurrentTot      float64     `json:"iMonTot"`
	ClusterSize     float64     `json:"muonCLS"`
	ClusterSizeErr  float64     `json:"muonCLS_err"`
	Multiplicity    float64     `json:"muonCMP"`
	MultiplicityErr float64     `json:"muonCMP_err"`
	NoiseRate       float64     `json:"noiseRate"`
	Points          []ScanPoint `json:"points"`
}

func emptySummary(scanID int, scanType ScanType, series ScanSeries) ScanSummary {
	return ScanSummary{
		ScanID:          scanID,
		ScanType:        scanType,
		WorkingPoint:    notComputed,
		WorkingPointErr: notComputed,
		Efficiency:      notComputed,
		EffMax:          notComputed,
		Lambda:          notComputed,
		LambdaErr:       notComputed,
		HV50:            notComputed,
		HV50Err:         notComputed,
		WorkingPointRaw: notComputed,
		EfficiencyRaw:   notComputed,
		EffMaxRaw:       notComputed,
		CurrentTop:      notComputed,
		CurrentBot:      notComputed,
		CurrentTot:      notComputed,
		ClusterSize:     notComputed,
		ClusterSizeErr:  notComputed,
		Multiplicity:    notComputed,
		MultiplicityErr: notComputed,
		NoiseRate:       notComputed,
		Points:          series.Points,
	}
}

// sigmoidPoints converts an efficiency curve to percent fit points.
func sigmoidPoints(c Curve) []SigmoidPoint {
	c = c.Scaled(100)
	points := make([]SigmoidPoint, c.Len())
	for i := range points {
		points[i] = SigmoidPoint{Voltage: c.X[i], Efficiency: c.Y[i], Err: c.YErr[i]}
	}
	return points
}

// noiseReferencePoint is the HV point whose noise rate summarises a noise
// scan.
const noiseReferencePoint = 1

// Summarize derives the scan summary from the ordered points. For efficiency
// scans the muon efficiency curve is fitted and the currents, cluster size
// and multiplicity are interpolated at the working point; a failed fit is
// returned as error. The fit of the absolute efficiency only fills the raw
// fields and does not fail the scan. Noise scans report the noise rate of
// HV point 1, or of the lowest voltage point when point 1 is missing.
func Summarize(scanID int, scanType ScanType, series ScanSeries) (ScanSummary, error) {
	summary := emptySummary(scanID, scanType, series)
	if len(series.Points) == 0 {
		return summary, fmt.Errorf("scan %d has no points", scanID)
	}

	if scanType == NoiseScan {
		summary.NoiseRate = series.Points[0].NoiseRate
		for _, p := range series.Points {
			if p.HVPoint == noiseReferencePoint {
				summary.NoiseRate = p.NoiseRate
				break
			}
		}
		return summary, nil
	}

	muon := sigmoidPoints(series.MuonEfficiencyCurve())
	fit, err := FitSigmoid(muon, DefaultSigmoidSeed(muon, true))
	if err != nil {
		return summary, fmt.Errorf("scan %d muon efficiency: %w", scanID, err)
	}
	wp := NewWorkingPoint(fit)
	summary.WorkingPoint = wp.Voltage
	summary.WorkingPointErr = wp.VoltageErr
	summary.Efficiency = wp.Efficiency
	summary.EffMax = fit.Emax
	summary.Lambda, summary.LambdaErr = fit.Lambda, fit.LambdaErr
	summary.HV50, summary.HV50Err = fit.HV50, fit.HV50Err

	raw := sigmoidPoints(series.EfficiencyCurve())
	if rawFit, err := FitSigmoid(raw, DefaultSigmoidSeed(raw, true)); err == nil {
		wpRaw := NewWorkingPoint(rawFit)
		summary.WorkingPointRaw = wpRaw.Voltage
		summary.EfficiencyRaw = wpRaw.Efficiency
		summary.EffMaxRaw = rawFit.Emax
	} else {
		logger.Error(fmt.Sprintf("scan %d absolute efficiency: %v", scanID, err))
	}

	top, bot := series.CurrentCurves()
	summary.CurrentTop = top.Eval(wp.Voltage)
	summary.CurrentBot = bot.Eval(wp.Voltage)
	summary.CurrentTot = summary.CurrentTop + summary.CurrentBot

	cls := series.ClusterSizeCurve()
	multiplicity := series.ClusterMultiplicityCurve()
	summary.ClusterSize = cls.Eval(wp.Voltage)
	summary.ClusterSizeErr = cls.ErrCurve().Eval(wp.Voltage)
	summary.Multiplicity = multiplicity.Eval(wp.Voltage)
	summary.MultiplicityErr = multiplicity.ErrCurve().Eval(wp.Voltage)
	summary.NoiseRate = series.NoiseCurve().Eval(wp.Voltage)
	return summary, nil
}

// ThresholdScan pairs the efficiency and noise scans taken at one front-end
// threshold.
type ThresholdScan struct {
	Threshold  float64 // mV
	Efficiency ScanSummary
	Noise      ScanSummary
}

// ThresholdSummary holds the scan results against the front-end threshold.
type ThresholdSummary struct {
	WorkingPoint Curve `json:"workingPoint"`
	ClusterSize  Curve `json:"muonCLS"`
	Multiplicity Curve `json:"muonCMP"`
	NoiseRate    Curve `json:"noiseRate"`
}

var errNoThresholds = errors.New("no threshold scans")

// SummarizeThresholds builds the threshold curves, ordered by threshold.
func SummarizeThresholds(scans []ThresholdScan) (ThresholdSummary, error) {
	if len(scans) == 0 {
		return ThresholdSummary{}, errNoThresholds
	}
	sorted := slices.Clone(scans)
	slices.SortStableFunc(sorted, func(a, b ThresholdScan) int {
		switch {
		case a.Threshold < b.Threshold:
			return -1
		case a.Threshold > b.Threshold:
			return 1
		}
		return 0
	})

	n := len(sorted)
	newCurve := func() Curve {
		return Curve{X: make([]float64, n), Y: make([]float64, n), YErr: make([]float64, n)}
	}
	summary := ThresholdSummary{
		WorkingPoint: newCurve(),
		ClusterSize:  newCurve(),
		Multiplicity: newCurve(),
		NoiseRate:    newCurve(),
	}
	for i, scan := range sorted {
		for _, c := range []Curve{summary.WorkingPoint, summary.ClusterSize, summary.Multiplicity, summary.NoiseRate} {
			c.X[i] = scan.Threshold
		}
		summary.WorkingPoint.Y[i] = scan.Efficiency.WorkingPoint
		summary.WorkingPoint.YErr[i] = scan.Efficiency.WorkingPointErr
		summary.ClusterSize.Y[i] = scan.Efficiency.ClusterSize
		summary.ClusterSize.YErr[i] = scan.Efficiency.ClusterSizeErr
		summary.Multiplicity.Y[i] = scan.Efficiency.Multiplicity
		summary.Multiplicity.YErr[i] = scan.Efficiency.MultiplicityErr
		summary.NoiseRate.Y[i] = scan.Noise.NoiseRate
	}
	return summary, nil
}
