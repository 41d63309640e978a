package analyzer

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordMarksOutputsNotComputed(t *testing.T) {
	t.Parallel()

	record := newRecord(InputParameters{ScanID: 3, HVPoint: 1})
	assert.Equal(t, notComputed, record.Output.MuonCLS)
	assert.Equal(t, notComputed, record.Output.EfficiencyAbs)
	assert.Equal(t, notComputed, record.Output.NoiseTimeWindow)
	assert.Equal(t, 0, record.Output.ValidatedEvents)
}

func TestSummaryFile(t *testing.T) {
	t.Parallel()

	summary, err := Summarize(42, EfficiencyScan, syntheticSeries())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, WriteSummary(path, summary))
	got, err := ReadSummary(path)
	require.NoError(t, err)
	if diff := cmp.Diff(summary, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadSummary(filepath.Join(t.TempDir(), "missing.json"))
	var inputErr *ErrInputMissing
	assert.ErrorAs(t, err, &inputErr)
}
