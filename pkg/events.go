package analyzer

// RawEvent is one detector trigger as stored by the DAQ. Channels and
// Timestamps are parallel slices.
type RawEvent struct {
	EventID     int
	QualityFlag int
	Channels    []int
	Timestamps  []float64 // ns
}

// Hit is a fired strip inside a time window.
type Hit struct {
	Strip int
	Time  float64 // ns
}

// EventSource gives access to the raw events of one (scan, HV point) pair.
type EventSource interface {
	ReadEvents(scanID int, hvPoint int) ([]RawEvent, error)
}

// PointLister is implemented by event sources that know which HV points
// they hold.
type PointLister interface {
	HVPoints(scanID int) ([]int, error)
}

// GapReading holds the mean monitoring values of one gas gap.
type GapReading struct {
	Current float64 // uA
	HVeff   float64 // V
}

// MonitoringSource gives access to the CAEN monitoring values of a scan.
type MonitoringSource interface {
	HVPoints(scanID int) ([]int, error)
	ReadGap(scanID int, hvPoint int, gapName string) (GapReading, error)
}

// ValidatedEvents returns the events whose quality flag marks them usable,
// in their original order.
func ValidatedEvents(events []RawEvent) []RawEvent {
	valid := make([]RawEvent, 0, len(events))
	for _, event := range events {
		if !IsValid(event.QualityFlag) {
			continue
		}
		valid = append(valid, event)
	}
	return valid
}
