package analyzer

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PointInput is everything needed to analyse one HV point. Geometry must
// come from Geometry.Prepare. A zero NoiseOffset stands for
// NoiseOffsetFromMuonWindow.
type PointInput struct {
	ScanID       int
	HVPoint      int
	ScanType     ScanType
	Events       []RawEvent
	Geometry     Geometry
	Peak         WindowSource
	ClusterTimes ClusterTimes
	NoiseOffset  float64
	StudyTimes   []float64
	Top          GapReading
	Bot          GapReading
}

// PointResult is the outcome of AnalyzePoint. Cluster and efficiency
// results are only filled for efficiency scans.
type PointResult struct {
	ScanID       int
	HVPoint      int
	Validated    int
	Windows      Windows
	Profile      Histogram
	Cluster      ClusterResult
	Efficiency   Efficiency
	NoiseRate    float64
	NoiseProfile map[int]float64
	Study        []ClusterStudyPoint
	Point        ScanPoint
	Record       Record
}

// AnalyzePoint validates the events of a HV point, derives its time windows
// and runs the cluster, efficiency and noise passes. The three passes only
// read the extracted hits and run concurrently.
func AnalyzePoint(in PointInput) (PointResult, error) {
	res := PointResult{ScanID: in.ScanID, HVPoint: in.HVPoint}
	wrap := func(err error) error {
		return &PointError{ScanID: in.ScanID, HVPoint: in.HVPoint, Err: err}
	}

	geo := in.Geometry
	valid := ValidatedEvents(in.Events)
	res.Validated = len(valid)
	if verbosity > 1 {
		message := fmt.Sprintf("HV point %d: %d of %d events validated", in.HVPoint, len(valid), len(in.Events))
		logger.Info(message, "pipeline")
	}
	if len(valid) == 0 {
		return res, wrap(fmt.Errorf("%d events read: %w", len(in.Events), ErrZeroTriggers))
	}

	peak := in.Peak
	if peak == nil {
		peak = FittedPeak{}
	}
	if in.NoiseOffset == 0 {
		in.NoiseOffset = NoiseOffsetFromMuonWindow
	}
	acquisition := TimeWindow{Begin: geo.TimeWindowReject, End: geo.TriggerWindow(in.ScanType)}
	all := ExtractEvents(valid, geo, acquisition)
	if in.ScanType == EfficiencyScan {
		res.Profile = TimeProfile(all, geo.TimeWindowReject, geo.MuonTriggerWindow)
	}
	windows, err := EstimateWindowsWithOffset(peak, all, geo, in.ScanType, in.NoiseOffset)
	if err != nil {
		return res, wrap(err)
	}
	res.Windows = windows
	if verbosity > 0 {
		message := fmt.Sprintf("HV point %d: muon window [%.1f, %.1f] ns, noise window [%.1f, %.1f] ns",
			in.HVPoint, windows.Muon.Begin, windows.Muon.End, windows.Noise.Begin, windows.Noise.End)
		logger.Info(message, "pipeline")
	}

	var g errgroup.Group
	if in.ScanType == EfficiencyScan {
		muon := ExtractEvents(valid, geo, windows.Muon)
		g.Go(func() error {
			res.Cluster = ClusterWithVariations(muon, in.ClusterTimes)
			if len(in.StudyTimes) > 0 {
				res.Study = ClusterStudy(muon, in.StudyTimes)
			}
			return nil
		})
		g.Go(func() error {
			full := ExtractEvents(valid, geo, TimeWindow{Begin: geo.TimeWindowReject, End: geo.MuonTriggerWindow})
			eff, err := ComputeEfficiency(full, muon, len(valid))
			if err != nil {
				return err
			}
			res.Efficiency = eff
			return nil
		})
	}
	g.Go(func() error {
		noise := ExtractEvents(valid, geo, windows.Noise)
		params := NoiseParamsFor(geo, windows.Noise, len(valid))
		rate, err := ComputeNoiseRate(noise, params)
		if err != nil {
			return err
		}
		profile, err := NoiseProfile(StripProfile(noise, geo), params)
		if err != nil {
			return err
		}
		res.NoiseRate = rate
		res.NoiseProfile = profile
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, wrap(err)
	}

	res.Point = scanPoint(in, res)
	res.Record = pointRecord(in, res)
	return res, nil
}

func scanPoint(in PointInput, res PointResult) ScanPoint {
	p := ScanPoint{
		HVPoint:         in.HVPoint,
		Voltage:         EffectiveVoltage(in.Top, in.Bot),
		CurrentTop:      in.Top.Current,
		CurrentBot:      in.Bot.Current,
		EffAbs:          notComputed,
		EffAbsErr:       notComputed,
		EffMuon:         notComputed,
		EffMuonErr:      notComputed,
		ClusterSize:     notComputed,
		ClusterSizeErr:  notComputed,
		Multiplicity:    notComputed,
		MultiplicityErr: notComputed,
		NoiseRate:       res.NoiseRate,
	}
	if in.ScanType == EfficiencyScan {
		p.EffAbs, p.EffAbsErr = res.Efficiency.Absolute, res.Efficiency.AbsoluteErr
		p.EffMuon, p.EffMuonErr = res.Efficiency.Muon, res.Efficiency.MuonErr
		p.ClusterSize, p.ClusterSizeErr = res.Cluster.MeanSize, res.Cluster.MeanSizeErr
		p.Multiplicity, p.MultiplicityErr = res.Cluster.MeanMultiplicity, res.Cluster.MeanMultiplicityErr
	}
	return p
}

func pointRecord(in PointInput, res PointResult) Record {
	geo := in.Geometry
	record := newRecord(InputParameters{
		ScanType:                  in.ScanType,
		ScanID:                    in.ScanID,
		HVPoint:                   in.HVPoint,
		TimeWindowReject:          geo.TimeWindowReject,
		TriggerWindow:             geo.TriggerWindow(in.ScanType),
		MuonWindowWidth:           geo.MuonWindowWidth,
		NoiseOffsetFromMuonWindow: in.NoiseOffset,
	})
	out := &record.Output
	out.ValidatedEvents = res.Validated
	out.NoiseTimeWindowBegin = res.Windows.Noise.Begin
	out.NoiseTimeWindowEnd = res.Windows.Noise.End
	out.NoiseTimeWindow = res.Windows.Noise.Length()
	out.NoiseRate = res.NoiseRate
	out.NoiseProfile = res.NoiseProfile
	if in.ScanType != EfficiencyScan {
		return record
	}

	out.MuonWindowMean = res.Windows.PeakMean
	out.MuonWindowSigma = res.Windows.PeakSigma
	out.MuonTimeWindowBegin = res.Windows.Muon.Begin
	out.MuonTimeWindowEnd = res.Windows.Muon.End
	out.MuonTimeWindow = res.Windows.MuonLength
	out.MuonCLS = res.Cluster.MeanSize
	out.MuonCLSErr = res.Cluster.MeanSizeErr
	out.MuonCMP = res.Cluster.MeanMultiplicity
	out.MuonCMPErr = res.Cluster.MeanMultiplicityErr
	out.MuonCLSCMP1 = res.Cluster.Nominal.MeanSizeCMP1
	out.EfficiencyAbs = res.Efficiency.Absolute
	out.EfficiencyAbsErr = res.Efficiency.AbsoluteErr
	out.EfficiencyMuon = res.Efficiency.Muon
	out.EfficiencyMuonErr = res.Efficiency.MuonErr
	out.ClusterStudy = res.Study
	return record
}
