package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScanType selects the DAQ trigger window and which quantities are measured.
type ScanType int

const (
	EfficiencyScan ScanType = iota
	NoiseScan
)

func (s ScanType) String() string {
	switch s {
	case EfficiencyScan:
		return "efficiency"
	case NoiseScan:
		return "noise"
	default:
		return "unknown"
	}
}

// ParseScanType accepts the names printed by String.
func ParseScanType(name string) (ScanType, error) {
	switch name {
	case "efficiency":
		return EfficiencyScan, nil
	case "noise":
		return NoiseScan, nil
	}
	return EfficiencyScan, fmt.Errorf("unknown scan type %q", name)
}

func (s ScanType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ScanType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseScanType(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NoiseOffsetFromMuonWindow is the gap in ns between the end of the muon
// window and the start of the noise window in efficiency scans.
const NoiseOffsetFromMuonWindow = 20.0

// Windows are the time windows used by one HV point.
type Windows struct {
	PeakMean  float64
	PeakSigma float64
	Fitted    bool
	Muon      TimeWindow
	Noise     TimeWindow
	// MuonLength is the unclipped muon window length, 2*k*sigma.
	MuonLength float64
}

// WindowSource resolves the muon peak position for a HV point: either a
// Gaussian fit of the time profile or values supplied by the user.
type WindowSource interface {
	peak(perEventHits [][]Hit, geo Geometry) (mean float64, sigma float64, err error)
	fitted() bool
}

// FittedPeak fits a Gaussian to the 1 ns time profile.
type FittedPeak struct{}

func (FittedPeak) fitted() bool { return true }

func (FittedPeak) peak(perEventHits [][]Hit, geo Geometry) (float64, float64, error) {
	profile := TimeProfile(perEventHits, geo.TimeWindowReject, geo.MuonTriggerWindow)
	fit, err := FitGaussian(profile)
	if err != nil {
		return 0, 0, err
	}
	return fit.Mean, fit.Sigma, nil
}

// SuppliedPeak uses a known peak mean and width, skipping the fit.
type SuppliedPeak struct {
	Mean  float64
	Sigma float64
}

func (SuppliedPeak) fitted() bool { return false }

func (s SuppliedPeak) peak([][]Hit, Geometry) (float64, float64, error) {
	if s.Sigma <= 0 {
		return 0, 0, fmt.Errorf("supplied peak width %.2f ns must be positive", s.Sigma)
	}
	return s.Mean, s.Sigma, nil
}

// PeakSource returns SuppliedPeak when both values are given (not
// negative) and FittedPeak otherwise.
func PeakSource(mean float64, width float64) WindowSource {
	if mean < 0 || width < 0 {
		return FittedPeak{}
	}
	return SuppliedPeak{Mean: mean, Sigma: width}
}

// EstimateWindows derives the muon and noise windows. perEventHits are the
// hits of each validated event over the whole acquisition window.
func EstimateWindows(source WindowSource, perEventHits [][]Hit, geo Geometry, scanType ScanType) (Windows, error) {
	return EstimateWindowsWithOffset(source, perEventHits, geo, scanType, NoiseOffsetFromMuonWindow)
}

// EstimateWindowsWithOffset is EstimateWindows with a custom gap between the
// muon and noise windows.
func EstimateWindowsWithOffset(source WindowSource, perEventHits [][]Hit, geo Geometry, scanType ScanType, noiseOffset float64) (Windows, error) {
	if scanType == NoiseScan {
		return Windows{
			PeakMean:  -1,
			PeakSigma: -1,
			Muon:      TimeWindow{Begin: -1, End: -1},
			Noise:     TimeWindow{Begin: geo.TimeWindowReject, End: geo.NoiseTriggerWindow},
		}, nil
	}

	mean, sigma, err := source.peak(perEventHits, geo)
	if err != nil {
		return Windows{}, err
	}

	begin := mean - geo.MuonWindowWidth*sigma
	end := mean + geo.MuonWindowWidth*sigma
	w := Windows{
		PeakMean:   mean,
		PeakSigma:  sigma,
		Fitted:     source.fitted(),
		MuonLength: end - begin,
		// the noise window follows the unclipped muon window
		Noise: TimeWindow{Begin: end + noiseOffset, End: geo.TriggerWindow(scanType)},
	}
	w.Muon = TimeWindow{
		Begin: math.Max(begin, 0),
		End:   math.Min(end, geo.MuonTriggerWindow),
	}
	if w.Muon.Begin > w.Muon.End {
		return Windows{}, fmt.Errorf("muon window [%.1f, %.1f] ns is empty", w.Muon.Begin, w.Muon.End)
	}
	if w.Noise.Begin > w.Noise.End {
		w.Noise.Begin = w.Noise.End
	}
	return w, nil
}

// Histogram is a fixed-width binned distribution of hit times.
type Histogram struct {
	Low      float64
	High     float64
	BinWidth float64
	Counts   []float64
	Entries  int
	Mean     float64
	RMS      float64
}

// BinCenter of bin i.
func (h Histogram) BinCenter(i int) float64 {
	return h.Low + (float64(i)+0.5)*h.BinWidth
}

// Max is the largest bin content.
func (h Histogram) Max() float64 {
	if len(h.Counts) == 0 {
		return 0
	}
	return floats.Max(h.Counts)
}

// TimeProfile histograms the hit times in [low, high) with 1 ns bins.
func TimeProfile(perEventHits [][]Hit, low float64, high float64) Histogram {
	nBins := int(math.Round(high - low))
	if nBins < 1 {
		nBins = 1
	}
	h := Histogram{Low: low, High: high, BinWidth: (high - low) / float64(nBins)}

	times := make([]float64, 0, countHits(perEventHits))
	for _, hits := range perEventHits {
		for _, hit := range hits {
			if !(hit.Time >= low && hit.Time < high) {
				continue
			}
			times = append(times, hit.Time)
		}
	}
	h.Entries = len(times)
	dividers := floats.Span(make([]float64, nBins+1), low, high)
	if len(times) == 0 {
		h.Counts = make([]float64, nBins)
		return h
	}
	slices.Sort(times)
	h.Counts = stat.Histogram(nil, dividers, times, nil)
	h.Mean, h.RMS = stat.MeanStdDev(times, nil)
	if len(times) == 1 {
		h.RMS = 0
	}
	return h
}

// GaussianFit holds the parameters of A*exp(-(x-mean)^2/(2 sigma^2)).
type GaussianFit struct {
	Amplitude    float64
	Mean         float64
	Sigma        float64
	AmplitudeErr float64
	MeanErr      float64
	SigmaErr     float64
	Chi2         float64
	NDF          int
}

var gaussianModel = fitModel{
	name: "gaussian peak",
	eval: func(x float64, p []float64) float64 {
		z := (x - p[1]) / p[2]
		return p[0] * math.Exp(-0.5*z*z)
	},
	grad: func(dst []float64, x float64, p []float64) {
		d := x - p[1]
		s := p[2]
		e := math.Exp(-0.5 * d * d / (s * s))
		dst[0] = e
		dst[1] = p[0] * e * d / (s * s)
		dst[2] = p[0] * e * d * d / (s * s * s)
	},
}

// peakFitRange is the half width of the Gaussian fit range, in units of
// the seed sigma.
const peakFitRange = 3.0

// fwhmToSigma converts a Gaussian full width at half maximum to sigma.
var fwhmToSigma = 1 / (2 * math.Sqrt(2*math.Ln2))

// peakSeed locates the highest bin and measures the width of the peak at
// half height above the median bin content, which stands for the flat
// noise floor. The returned sigma is at least one bin wide.
func peakSeed(h Histogram) (amplitude float64, mean float64, sigma float64) {
	peak := floats.MaxIdx(h.Counts)
	sorted := slices.Clone(h.Counts)
	slices.Sort(sorted)
	floor := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	half := floor + (h.Counts[peak]-floor)/2

	left, right := peak, peak
	for left > 0 && h.Counts[left-1] > half {
		left--
	}
	for right < len(h.Counts)-1 && h.Counts[right+1] > half {
		right++
	}
	fwhm := float64(right-left+1) * h.BinWidth
	return h.Counts[peak], h.BinCenter(peak), math.Max(fwhm*fwhmToSigma, h.BinWidth)
}

// FitGaussian fits the muon peak of the profile with a Gaussian, weighting
// each non-empty bin by its Poisson variance. The seed comes from the
// highest bin and its width at half height, and only bins within
// peakFitRange seed sigmas of it are fitted so that the noise floor does
// not pull the fit away from the peak.
func FitGaussian(h Histogram) (GaussianFit, error) {
	if h.Entries == 0 || len(h.Counts) == 0 {
		return GaussianFit{}, &FitError{Fit: gaussianModel.name, Err: errors.New("time profile is empty")}
	}
	amplitude, mean, sigma := peakSeed(h)
	low, high := mean-peakFitRange*sigma, mean+peakFitRange*sigma

	points := make([]fitPoint, 0, len(h.Counts))
	for i, c := range h.Counts {
		x := h.BinCenter(i)
		if c <= 0 || x < low || x > high {
			continue
		}
		points = append(points, fitPoint{X: x, Y: c, W: 1 / c})
	}
	if len(points) < 3 {
		return GaussianFit{}, &FitError{Fit: gaussianModel.name,
			Err: fmt.Errorf("%d filled bins in [%.1f, %.1f] ns around the peak", len(points), low, high)}
	}

	p0 := []float64{amplitude, mean, sigma}
	scale := []float64{math.Max(amplitude, 1), sigma, sigma}
	res, err := leastSquares(gaussianModel, points, p0, scale, fitOptions{})
	if err != nil {
		return GaussianFit{}, err
	}
	fit := GaussianFit{
		Amplitude:    res.Params[0],
		Mean:         res.Params[1],
		Sigma:        math.Abs(res.Params[2]),
		AmplitudeErr: res.Errors[0],
		MeanErr:      res.Errors[1],
		SigmaErr:     res.Errors[2],
		Chi2:         res.Chi2,
		NDF:          res.NDF,
	}
	if fit.Mean < h.Low || fit.Mean > h.High || fit.Sigma == 0 {
		return GaussianFit{}, &FitError{Fit: gaussianModel.name,
			Err: fmt.Errorf("peak at %.1f ns (sigma %.2f) outside [%.0f, %.0f]", fit.Mean, fit.Sigma, h.Low, h.High)}
	}
	return fit, nil
}
