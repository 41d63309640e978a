package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
	"github.com/cms-rpc/analyzer_go/pkg/store"
)

const testGeometryFile = `{
	"RE11": {
		"TDC_channels": [4001, 4002, 4003, 4004],
		"TDC_strips": [1, 2, 3, 4],
		"TDC_strips_mask": [4],
		"muonTriggerWindow": 600,
		"noiseTriggerWindow": 10000,
		"timeWindowReject": 100,
		"muonWindowWidth": 2,
		"stripArea": 10,
		"topGapName": "TOP",
		"botGapName": "BOT"
	}
}`

// writeScan writes DAQ and CAEN files for HV points 1 and 2 of scan 77.
func writeScan(t *testing.T, dir string) {
	t.Helper()
	for hv := 1; hv <= 2; hv++ {
		events := make([]analyzer.RawEvent, 20)
		for i := range events {
			events[i] = analyzer.RawEvent{
				EventID:     i,
				QualityFlag: 110,
				Channels:    []int{4001, 4002},
				Timestamps:  []float64{270, 1500 + float64(i*hv)},
			}
		}
		require.NoError(t, store.WriteEventFile(filepath.Join(dir, store.DAQFileName(77, hv)), events))

		v := 6500 + 100*float64(hv)
		err := store.WriteMonitoringFile(filepath.Join(dir, store.CAENFileName(77, hv)), map[string]store.GapSamples{
			"TOP": {Currents: []float64{0.1 * float64(hv)}, Voltages: []float64{v}},
			"BOT": {Currents: []float64{0.2 * float64(hv)}, Voltages: []float64{v - 10}},
		})
		require.NoError(t, err)
	}
}

func writeConfig(t *testing.T, dir string, config map[string]any) string {
	t.Helper()
	data, err := json.Marshal(config)
	require.NoError(t, err)
	filename := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(filename, data, 0o644))
	return filename
}

func TestNoiseCommand(t *testing.T) {
	dir := t.TempDir()
	writeScan(t, dir)
	geometry := filepath.Join(dir, "geometry.json")
	require.NoError(t, os.WriteFile(geometry, []byte(testGeometryFile), 0o644))
	config := writeConfig(t, dir, map[string]any{
		"input_dir":     dir,
		"output_dir":    dir,
		"geometry":      "RE11",
		"geometry_file": geometry,
		"write_hdf5":    true,
	})

	cmd := RootCommand()
	cmd.SetArgs([]string{"noise", "-c", config, "-s", "77", "-t", "noise77", "-w", "2"})
	require.NoError(t, cmd.Execute())

	root := filepath.Join(dir, "noise77")
	summary, err := analyzer.ReadSummary(filepath.Join(root, "results.json"))
	require.NoError(t, err)
	assert.Equal(t, 77, summary.ScanID)
	assert.Equal(t, analyzer.NoiseScan, summary.ScanType)
	require.Len(t, summary.Points, 2)
	assert.Equal(t, 6600.0, summary.Points[0].Voltage)
	// two unmasked hits per event over 9900 ns, 10 cm2 and 3 active strips
	assert.InDelta(t, 2/(10*9900e-9*3), summary.NoiseRate, 1e-6)

	record, err := analyzer.ReadRecord(filepath.Join(root, "HV2", "output.json"))
	require.NoError(t, err)
	assert.Equal(t, 20, record.Output.ValidatedEvents)
	assert.Equal(t, 9900.0, record.Output.NoiseTimeWindow)

	values, points, err := store.ReadSummaryFile(filepath.Join(root, "scan.h5"))
	require.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, 77.0, values["scanid"])
}

func TestClusterStudyCommand(t *testing.T) {
	dir := t.TempDir()
	writeScan(t, dir)
	geometry := filepath.Join(dir, "geometry.json")
	require.NoError(t, os.WriteFile(geometry, []byte(testGeometryFile), 0o644))
	config := writeConfig(t, dir, map[string]any{
		"input_dir":           dir,
		"output_dir":          dir,
		"geometry":            "RE11",
		"geometry_file":       geometry,
		"peak_mean":           267,
		"peak_width":          9,
		"cluster_study_times": []float64{10, 5},
	})

	cmd := RootCommand()
	cmd.SetArgs([]string{"clusterstudy", "1", "-c", config, "-s", "77", "-t", "study"})
	require.NoError(t, cmd.Execute())

	record, err := analyzer.ReadRecord(filepath.Join(dir, "study", "HV1", "output.json"))
	require.NoError(t, err)
	require.Len(t, record.Output.ClusterStudy, 2)
	assert.Equal(t, 5.0, record.Output.ClusterStudy[0].TimeConstant)
	assert.Equal(t, 1.0, record.Output.EfficiencyMuon)
	assert.Equal(t, 1.0, record.Output.MuonCLS)
}

func TestSummaryCommand(t *testing.T) {
	dir := t.TempDir()
	var dirs []string
	for i, wp := range []float64{7300, 7100} {
		scanDir := filepath.Join(dir, "thr", string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(scanDir, 0o755))
		summary := analyzer.ScanSummary{WorkingPoint: wp, ClusterSize: 2, Multiplicity: 1, NoiseRate: 3}
		require.NoError(t, analyzer.WriteSummary(filepath.Join(scanDir, "results.json"), summary))
		dirs = append(dirs, scanDir)
	}
	config := writeConfig(t, dir, map[string]any{
		"output_dir":     dir,
		"tag":            "thresholds",
		"thresholds":     []float64{60, 40},
		"threshold_dirs": dirs,
	})

	cmd := RootCommand()
	cmd.SetArgs([]string{"summary", "-c", config})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "thresholds", "thresholds.json"))
	require.NoError(t, err)
	var got analyzer.ThresholdSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []float64{40, 60}, got.WorkingPoint.X)
	assert.Equal(t, []float64{7100, 7300}, got.WorkingPoint.Y)
	assert.Equal(t, []float64{3, 3}, got.NoiseRate.Y)
}

func TestMonitoringImportCommand(t *testing.T) {
	dir := t.TempDir()
	writeScan(t, dir)
	geometry := filepath.Join(dir, "geometry.json")
	require.NoError(t, os.WriteFile(geometry, []byte(testGeometryFile), 0o644))
	dbFile := filepath.Join(dir, "runs.db")
	config := writeConfig(t, dir, map[string]any{
		"input_dir":  dir,
		"output_dir": dir,
		"geometry":   "RE11",
		"no_db":      false,
		"db_driver":  "sqlite",
		"dbname":     dbFile,
		"monitoring": "db",
	})

	cmd := RootCommand()
	cmd.SetArgs([]string{"geometry", "-c", config, "--import", geometry, "--init-schema"})
	require.NoError(t, cmd.Execute())
	cmd = RootCommand()
	cmd.SetArgs([]string{"monitoring", "-c", config, "-s", "77"})
	require.NoError(t, cmd.Execute())

	db, err := store.ConnectToDatabase("sqlite", "", "", "", dbFile)
	require.NoError(t, err)
	monitor := store.DBMonitor{DB: db}
	points, err := monitor.HVPoints(77)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, points)
	bot, err := monitor.ReadGap(77, 2, "BOT")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, bot.Current, 1e-12)
	assert.InDelta(t, 6690, bot.HVeff, 1e-9)
	require.NoError(t, db.Close())

	cmd = RootCommand()
	cmd.SetArgs([]string{"noise", "-c", config, "-s", "77", "-t", "fromdb"})
	require.NoError(t, cmd.Execute())
	summary, err := analyzer.ReadSummary(filepath.Join(dir, "fromdb", "results.json"))
	require.NoError(t, err)
	require.Len(t, summary.Points, 2)
	assert.Equal(t, 6600.0, summary.Points[0].Voltage)
	assert.Equal(t, 6700.0, summary.Points[1].Voltage)
}

func TestMonitoringImportWithoutDatabase(t *testing.T) {
	config := writeConfig(t, t.TempDir(), map[string]any{"geometry": "RE11", "geometry_file": "geo.json"})
	cmd := RootCommand()
	cmd.SetArgs([]string{"monitoring", "-c", config, "-s", "77"})
	assert.Error(t, cmd.Execute())
}

func TestInvalidConfiguration(t *testing.T) {
	config := writeConfig(t, t.TempDir(), map[string]any{"num_workers": 0})
	cmd := RootCommand()
	cmd.SetArgs([]string{"noise", "-c", config})
	assert.Error(t, cmd.Execute())
}
