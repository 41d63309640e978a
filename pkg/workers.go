package analyzer

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// ScanInput describes a whole HV scan.
type ScanInput struct {
	ScanID       int
	ScanType     ScanType
	Geometry     Geometry
	Events       EventSource
	Monitor      MonitoringSource
	Sink         RecordSink
	Peak         WindowSource
	ClusterTimes ClusterTimes
	NoiseOffset  float64
	StudyTimes   []float64
	HVMin        float64
	HVMax        float64
	NumWorkers   int
}

// ScanReport collects the outcome of RunScan.
type ScanReport struct {
	HVPoints []int
	Results  []PointResult
	Series   ScanSeries
	Summary  ScanSummary
}

type pointOutcome struct {
	hvPoint int
	result  PointResult
	err     error
}

func pointWorker(id int, in ScanInput, jobs <-chan int, results chan<- pointOutcome, wg *sync.WaitGroup) {
	defer wg.Done()
	var current int
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker %d recovered from panic: %v", id, r)
			results <- pointOutcome{hvPoint: current, err: &PointError{ScanID: in.ScanID, HVPoint: current, Err: err}}
		}
	}()

	for hvPoint := range jobs {
		current = hvPoint
		if verbosity > 1 {
			message := fmt.Sprintf("Worker %d processing HV point %d", id, hvPoint)
			logger.Info(message, "workers")
		}
		result, err := processPoint(in, hvPoint)
		results <- pointOutcome{hvPoint: hvPoint, result: result, err: err}
	}
}

func sendPointsToWorkers(hvPoints []int, jobs chan<- int, stop <-chan struct{}) {
	defer close(jobs)
	for _, hvPoint := range hvPoints {
		select {
		case jobs <- hvPoint:
		case <-stop:
			return
		}
	}
}

func processPoint(in ScanInput, hvPoint int) (PointResult, error) {
	wrap := func(err error) error {
		return &PointError{ScanID: in.ScanID, HVPoint: hvPoint, Err: err}
	}
	events, err := in.Events.ReadEvents(in.ScanID, hvPoint)
	if err != nil {
		return PointResult{}, wrap(err)
	}
	top, err := in.Monitor.ReadGap(in.ScanID, hvPoint, in.Geometry.TopGapName)
	if err != nil {
		return PointResult{}, wrap(err)
	}
	bot, err := in.Monitor.ReadGap(in.ScanID, hvPoint, in.Geometry.BotGapName)
	if err != nil {
		return PointResult{}, wrap(err)
	}
	return AnalyzePoint(PointInput{
		ScanID:       in.ScanID,
		HVPoint:      hvPoint,
		ScanType:     in.ScanType,
		Events:       events,
		Geometry:     in.Geometry,
		Peak:         in.Peak,
		ClusterTimes: in.ClusterTimes,
		NoiseOffset:  in.NoiseOffset,
		StudyTimes:   in.StudyTimes,
		Top:          top,
		Bot:          bot,
	})
}

// checkRawData fails when the event source lists its points and some
// monitored point has no raw data.
func checkRawData(in ScanInput, hvPoints []int) error {
	lister, ok := in.Events.(PointLister)
	if !ok {
		return nil
	}
	available, err := lister.HVPoints(in.ScanID)
	if err != nil {
		return fmt.Errorf("listing raw data of scan %d: %w", in.ScanID, err)
	}
	var missing []int
	for _, hvPoint := range hvPoints {
		if !slices.Contains(available, hvPoint) {
			missing = append(missing, hvPoint)
		}
	}
	if len(missing) > 0 {
		return &ErrInputMissing{
			Filename: fmt.Sprintf("scan %d raw data", in.ScanID),
			Err:      fmt.Errorf("no events for HV points %v", missing),
		}
	}
	return nil
}

// RunScan analyses every HV point of a scan with a pool of workers. Each
// finished point is handed to the sink at once, so points completed before
// a failure keep their records. After the first failure no new points are
// started and the error is returned once the running ones finish. For
// efficiency scans the summary comes from the sigmoid fit of the ordered
// points.
func RunScan(in ScanInput) (ScanReport, error) {
	var report ScanReport
	hvPoints, err := in.Monitor.HVPoints(in.ScanID)
	if err != nil {
		return report, fmt.Errorf("listing HV points of scan %d: %w", in.ScanID, err)
	}
	if len(hvPoints) == 0 {
		return report, &ErrInputMissing{
			Filename: fmt.Sprintf("scan %d", in.ScanID),
			Err:      errors.New("no HV points found"),
		}
	}
	if err := checkRawData(in, hvPoints); err != nil {
		return report, err
	}
	report.HVPoints = hvPoints
	if verbosity > 0 {
		logger.Info(fmt.Sprintf("Scan %d: %d HV points", in.ScanID, len(hvPoints)), "scan")
	}

	numWorkers := max(1, min(in.NumWorkers, len(hvPoints)))
	jobs := make(chan int, numWorkers)
	results := make(chan pointOutcome, numWorkers)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 1; w <= numWorkers; w++ {
		wg.Add(1)
		go pointWorker(w, in, jobs, results, &wg)
	}
	go sendPointsToWorkers(hvPoints, jobs, stop)
	go func() {
		wg.Wait()
		close(results)
	}()

	aggregator := NewScanAggregator()
	var errs []error
	fail := func(err error) {
		if len(errs) == 0 {
			close(stop)
		}
		errs = append(errs, err)
		logger.Error(err.Error())
	}
	for outcome := range results {
		if outcome.err != nil {
			fail(outcome.err)
			continue
		}
		if in.Sink != nil {
			if err := in.Sink.WritePoint(outcome.result); err != nil {
				fail(&PointError{ScanID: in.ScanID, HVPoint: outcome.hvPoint, Err: err})
				continue
			}
		}
		report.Results = append(report.Results, outcome.result)
		point := outcome.result.Point
		if in.HVMax > in.HVMin && (point.Voltage < in.HVMin || point.Voltage > in.HVMax) {
			message := fmt.Sprintf("HV point %d at %.0f V outside [%.0f, %.0f] V, not aggregated",
				point.HVPoint, point.Voltage, in.HVMin, in.HVMax)
			logger.Info(message, "scan")
			continue
		}
		aggregator.Add(point)
		if verbosity > 0 {
			message := fmt.Sprintf("HV point %d done: HVeff %.0f V", outcome.hvPoint, point.Voltage)
			logger.Info(message, "scan")
		}
	}

	report.Series = aggregator.Series()
	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	report.Summary, err = Summarize(in.ScanID, in.ScanType, report.Series)
	if err != nil {
		return report, err
	}
	return report, nil
}
