package analyzer

import (
	"golang.org/x/exp/slices"
)

// minGapVoltage is the reading below which a gap is considered switched
// off; the effective voltage of the point is then taken from the bottom gap.
const minGapVoltage = 20.0

// EffectiveVoltage returns the top gap HVeff, or the bottom gap one when the
// top gap is off.
func EffectiveVoltage(top GapReading, bot GapReading) float64 {
	if top.HVeff < minGapVoltage {
		return bot.HVeff
	}
	return top.HVeff
}

// ScanPoint is the per HV point result handed to the aggregator. Values
// that were not measured for the scan type are -1.
type ScanPoint struct {
	HVPoint         int     `json:"HVPoint"`
	Voltage         float64 `json:"HVeff"`
	CurrentTop      float64 `json:"iMonTop"`
	CurrentBot      float64 `json:"iMonBot"`
	EffAbs          float64 `json:"efficiencyAbs"`
	EffAbsErr       float64 `json:"efficiencyAbs_err"`
	EffMuon         float64 `json:"efficiencyMuon"`
	EffMuonErr      float64 `json:"efficiencyMuon_err"`
	ClusterSize     float64 `json:"muonCLS"`
	ClusterSizeErr  float64 `json:"muonCLS_err"`
	Multiplicity    float64 `json:"muonCMP"`
	MultiplicityErr float64 `json:"muonCMP_err"`
	NoiseRate       float64 `json:"noiseRate"`
}

// Curve is a graph of Y(X) with errors on Y, X ascending.
type Curve struct {
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
	YErr []float64 `json:"yErr"`
}

// Len is the number of points.
func (c Curve) Len() int {
	return len(c.X)
}

// Eval interpolates linearly between the two points surrounding x. Outside
// the range the first or last two points are extrapolated.
func (c Curve) Eval(x float64) float64 {
	switch len(c.X) {
	case 0:
		return 0
	case 1:
		return c.Y[0]
	}
	hi, _ := slices.BinarySearch(c.X, x)
	if hi == 0 {
		hi = 1
	}
	if hi >= len(c.X) {
		hi = len(c.X) - 1
	}
	lo := hi - 1
	x0, x1 := c.X[lo], c.X[hi]
	y0, y1 := c.Y[lo], c.Y[hi]
	if x1 == x0 {
		return y0
	}
	return y0 + (x-x0)*(y1-y0)/(x1-x0)
}

// ErrCurve returns the curve of the Y errors against X.
func (c Curve) ErrCurve() Curve {
	return Curve{X: c.X, Y: c.YErr, YErr: make([]float64, len(c.X))}
}

// Scaled multiplies Y and YErr by f.
func (c Curve) Scaled(f float64) Curve {
	scaled := Curve{X: slices.Clone(c.X), Y: make([]float64, len(c.Y)), YErr: make([]float64, len(c.YErr))}
	for i := range c.Y {
		scaled.Y[i] = c.Y[i] * f
	}
	for i := range c.YErr {
		scaled.YErr[i] = c.YErr[i] * f
	}
	return scaled
}

// ScanSeries is the ordered set of points of one scan.
type ScanSeries struct {
	Points []ScanPoint
}

// Voltages returns the effective voltages in ascending order.
func (s ScanSeries) Voltages() []float64 {
	v := make([]float64, len(s.Points))
	for i, p := range s.Points {
		v[i] = p.Voltage
	}
	return v
}

func (s ScanSeries) curve(y func(ScanPoint) float64, yErr func(ScanPoint) float64) Curve {
	c := Curve{
		X:    s.Voltages(),
		Y:    make([]float64, len(s.Points)),
		YErr: make([]float64, len(s.Points)),
	}
	for i, p := range s.Points {
		c.Y[i] = y(p)
		if yErr != nil {
			c.YErr[i] = yErr(p)
		}
	}
	return c
}

// EfficiencyCurve is the absolute efficiency against voltage.
func (s ScanSeries) EfficiencyCurve() Curve {
	return s.curve(
		func(p ScanPoint) float64 { return p.EffAbs },
		func(p ScanPoint) float64 { return p.EffAbsErr })
}

// MuonEfficiencyCurve is the muon window efficiency against voltage.
func (s ScanSeries) MuonEfficiencyCurve() Curve {
	return s.curve(
		func(p ScanPoint) float64 { return p.EffMuon },
		func(p ScanPoint) float64 { return p.EffMuonErr })
}

// ClusterSizeCurve is the mean cluster size against voltage.
func (s ScanSeries) ClusterSizeCurve() Curve {
	return s.curve(
		func(p ScanPoint) float64 { return p.ClusterSize },
		func(p ScanPoint) float64 { return p.ClusterSizeErr })
}

// ClusterMultiplicityCurve is the mean cluster multiplicity against voltage.
func (s ScanSeries) ClusterMultiplicityCurve() Curve {
	return s.curve(
		func(p ScanPoint) float64 { return p.Multiplicity },
		func(p ScanPoint) float64 { return p.MultiplicityErr })
}

// CurrentCurves are the top and bottom gap currents against voltage.
func (s ScanSeries) CurrentCurves() (top Curve, bot Curve) {
	top = s.curve(func(p ScanPoint) float64 { return p.CurrentTop }, nil)
	bot = s.curve(func(p ScanPoint) float64 { return p.CurrentBot }, nil)
	return top, bot
}

// NoiseCurve is the noise rate against voltage.
func (s ScanSeries) NoiseCurve() Curve {
	return s.curve(func(p ScanPoint) float64 { return p.NoiseRate }, nil)
}

// ScanAggregator collects the points of a scan in whatever order they are
// produced. It is not safe for concurrent use.
type ScanAggregator struct {
	points []ScanPoint
}

func NewScanAggregator() *ScanAggregator {
	return &ScanAggregator{}
}

// Add stores a point.
func (a *ScanAggregator) Add(point ScanPoint) {
	a.points = append(a.points, point)
}

// Len is the number of points added so far.
func (a *ScanAggregator) Len() int {
	return len(a.points)
}

// Series returns the points ordered by effective voltage. Points with the
// same voltage keep the order in which they were added.
func (a *ScanAggregator) Series() ScanSeries {
	points := slices.Clone(a.points)
	slices.SortStableFunc(points, func(x, y ScanPoint) int {
		switch {
		case x.Voltage < y.Voltage:
			return -1
		case x.Voltage > y.Voltage:
			return 1
		}
		return 0
	})
	return ScanSeries{Points: points}
}
