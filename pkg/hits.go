package analyzer

// Bounds of the default extraction window, wide enough to keep every hit.
const (
	FullRangeStart = -1e9
	FullRangeEnd   = 1e9
)

// TimeWindow is a closed time interval in ns.
type TimeWindow struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

// Length of the window in ns.
func (w TimeWindow) Length() float64 {
	return w.End - w.Begin
}

// Contains reports whether t lies in [Begin, End].
func (w TimeWindow) Contains(t float64) bool {
	return t >= w.Begin && t <= w.End
}

// FullRange is the unbounded extraction window.
var FullRange = TimeWindow{Begin: FullRangeStart, End: FullRangeEnd}

// ExtractHits converts raw TDC channel/timestamp pairs into strip hits
// inside [windowStart, windowEnd]. Hits on channels outside the geometry or
// on masked strips are dropped. The input order is preserved.
func ExtractHits(channels []int, timestamps []float64, geo Geometry, windowStart float64, windowEnd float64) []Hit {
	n := min(len(channels), len(timestamps))
	hits := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		strip, ok := geo.StripOf(channels[i])
		if !ok {
			continue
		}
		ts := timestamps[i]
		// NaN fails every comparison and must not pass as in-window
		if !(ts >= windowStart && ts <= windowEnd) {
			continue
		}
		if geo.IsMasked(strip) {
			continue
		}
		hits = append(hits, Hit{Strip: strip, Time: ts})
	}
	return hits
}

// ExtractEvents runs ExtractHits on every event with the same window.
func ExtractEvents(events []RawEvent, geo Geometry, window TimeWindow) [][]Hit {
	perEvent := make([][]Hit, len(events))
	for i, event := range events {
		perEvent[i] = ExtractHits(event.Channels, event.Timestamps, geo, window.Begin, window.End)
	}
	return perEvent
}

// countHits is the total number of hits over all events.
func countHits(perEvent [][]Hit) int {
	total := 0
	for _, hits := range perEvent {
		total += len(hits)
	}
	return total
}
