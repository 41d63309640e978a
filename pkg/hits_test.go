package analyzer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestExtractHits(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	tests := []struct {
		name       string
		channels   []int
		timestamps []float64
		begin, end float64
		want       []Hit
	}{
		{
			name:       "bounds are inclusive",
			channels:   []int{4001, 4002, 4003},
			timestamps: []float64{100, 300, 600},
			begin:      100,
			end:        600,
			want:       []Hit{{1, 100}, {2, 300}, {3, 600}},
		},
		{
			name:       "outside the window",
			channels:   []int{4001, 4002},
			timestamps: []float64{99.9, 600.1},
			begin:      100,
			end:        600,
			want:       []Hit{},
		},
		{
			name:       "non-finite timestamps",
			channels:   []int{4001, 4002, 4003, 4004},
			timestamps: []float64{math.NaN(), 300, math.Inf(1), math.Inf(-1)},
			begin:      100,
			end:        600,
			want:       []Hit{{2, 300}},
		},
		{
			name:       "masked strip and unknown channel",
			channels:   []int{4008, 5000, 4004},
			timestamps: []float64{200, 200, 200},
			begin:      100,
			end:        600,
			want:       []Hit{{4, 200}},
		},
		{
			name:       "input order preserved",
			channels:   []int{4005, 4001, 4003},
			timestamps: []float64{400, 150, 250},
			begin:      0,
			end:        1000,
			want:       []Hit{{5, 400}, {1, 150}, {3, 250}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExtractHits(tt.channels, tt.timestamps, geo, tt.begin, tt.end)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("hits mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractHitsRandom(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(30)
		channels := make([]int, n)
		timestamps := make([]float64, n)
		for i := range channels {
			channels[i] = 4000 + rng.Intn(10)
			timestamps[i] = rng.Float64() * 800
		}
		hits := ExtractHits(channels, timestamps, geo, 100, 600)
		assert.LessOrEqual(t, len(hits), n)
		for _, hit := range hits {
			assert.True(t, hit.Time >= 100 && hit.Time <= 600, "time %f", hit.Time)
			assert.False(t, geo.IsMasked(hit.Strip), "strip %d masked", hit.Strip)
			assert.True(t, hit.Strip >= 1 && hit.Strip <= 7, "strip %d", hit.Strip)
		}
	}
}

func TestExtractEvents(t *testing.T) {
	t.Parallel()
	geo := testGeometry(t)

	events := []RawEvent{
		rawEvent(1, 0, 4001, 120.0, 4002, 700.0),
		rawEvent(2, 0),
		rawEvent(3, 0, 4003, 50.0),
	}
	got := ExtractEvents(events, geo, TimeWindow{Begin: 100, End: 600})
	want := [][]Hit{{{1, 120}}, {}, {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, countHits(got))
}
