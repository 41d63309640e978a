package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testGeometry reads 8 strips on channels 4001-4008; strip 8 is masked.
func testGeometry(t *testing.T) Geometry {
	t.Helper()
	geo := Geometry{
		Name:               "RE11",
		Channels:           []int{4001, 4002, 4003, 4004, 4005, 4006, 4007, 4008},
		Strips:             []int{1, 2, 3, 4, 5, 6, 7, 8},
		MaskedStrips:       []int{8},
		MuonTriggerWindow:  600,
		NoiseTriggerWindow: 10000,
		TimeWindowReject:   100,
		MuonWindowWidth:    2,
		StripArea:          10,
		TopGapName:         "TOP",
		BotGapName:         "BOT",
	}
	prepared, err := geo.Prepare()
	require.NoError(t, err)
	return prepared
}

func rawEvent(id int, flag int, pairs ...any) RawEvent {
	event := RawEvent{EventID: id, QualityFlag: flag}
	for i := 0; i+1 < len(pairs); i += 2 {
		event.Channels = append(event.Channels, pairs[i].(int))
		event.Timestamps = append(event.Timestamps, pairs[i+1].(float64))
	}
	return event
}
