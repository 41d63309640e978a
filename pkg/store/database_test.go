package store

import (
	"path/filepath"
	"testing"

	sqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

func memoryDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := ConnectToDatabase("sqlite", "", "", "", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, CreateSchema(db))
	return db
}

func testGeometry() analyzer.Geometry {
	return analyzer.Geometry{
		Name:               "RE11",
		Channels:           []int{4003, 4001, 4002},
		Strips:             []int{3, 1, 2},
		MaskedStrips:       []int{2},
		MuonTriggerWindow:  600,
		NoiseTriggerWindow: 10000,
		TimeWindowReject:   100,
		MuonWindowWidth:    2,
		StripArea:          10,
		TopGapName:         "TOP",
		BotGapName:         "BOT",
	}
}

func TestGeometryDatabase(t *testing.T) {
	t.Parallel()
	db := memoryDB(t)

	require.NoError(t, StoreGeometry(db, testGeometry(), 100, 200))

	geo, err := GeometryFromDB(db, "RE11", 150)
	require.NoError(t, err)
	assert.Equal(t, []int{4001, 4002, 4003}, geo.Channels)
	assert.Equal(t, []int{1, 2, 3}, geo.Strips)
	assert.Equal(t, []int{2}, geo.MaskedStrips)
	assert.True(t, geo.IsMasked(2))
	assert.Equal(t, 600.0, geo.MuonTriggerWindow)
	assert.Equal(t, "BOT", geo.BotGapName)
	strip, ok := geo.StripOf(4003)
	assert.True(t, ok)
	assert.Equal(t, 3, strip)

	_, err = GeometryFromDB(db, "RE11", 300)
	assert.Error(t, err)
	_, err = GeometryFromDB(db, "RE42", 150)
	assert.Error(t, err)

	unnamed := testGeometry()
	unnamed.Name = ""
	assert.Error(t, StoreGeometry(db, unnamed, 0, 1))
}

func TestDBMonitor(t *testing.T) {
	t.Parallel()
	db := memoryDB(t)

	require.NoError(t, StoreMonitoring(db, []MonitoringEntry{
		{ScanID: 5, HVPoint: 2, GapName: "TOP", Imon: 1.0, HVeff: 7000},
		{ScanID: 5, HVPoint: 2, GapName: "TOP", Imon: 2.0, HVeff: 7010},
		{ScanID: 5, HVPoint: 1, GapName: "TOP", Imon: 0.5, HVeff: 6500},
		{ScanID: 5, HVPoint: 1, GapName: "BOT", Imon: 0.4, HVeff: 6490},
		{ScanID: 6, HVPoint: 9, GapName: "TOP", Imon: 0.1, HVeff: 1000},
	}))

	monitor := DBMonitor{DB: db}
	points, err := monitor.HVPoints(5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, points)

	reading, err := monitor.ReadGap(5, 2, "TOP")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, reading.Current, 1e-12)
	assert.InDelta(t, 7005, reading.HVeff, 1e-12)

	_, err = monitor.ReadGap(5, 2, "BOT")
	var inputErr *analyzer.ErrInputMissing
	assert.ErrorAs(t, err, &inputErr)
}

func TestImportMonitoringFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for hv := 1; hv <= 2; hv++ {
		err := WriteMonitoringFile(filepath.Join(dir, CAENFileName(12, hv)), map[string]GapSamples{
			"TOP": {Currents: []float64{1, 2, 3}, Voltages: []float64{6990, 7000, 7010}},
			"BOT": {Currents: []float64{0.5, 0.7}, Voltages: []float64{6980, 6982, 6984}},
		})
		require.NoError(t, err)
	}
	files := HDF5Monitor{Dir: dir}
	entries, err := files.Entries(12, "TOP", "BOT")
	require.NoError(t, err)
	// three TOP and two paired BOT samples per HV point
	assert.Len(t, entries, 10)
	assert.Equal(t, MonitoringEntry{ScanID: 12, HVPoint: 1, GapName: "TOP", Imon: 1, HVeff: 6990}, entries[0])

	db := memoryDB(t)
	require.NoError(t, StoreMonitoring(db, entries))
	fromDB := DBMonitor{DB: db}
	points, err := fromDB.HVPoints(12)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, points)

	want, err := files.ReadGap(12, 2, "TOP")
	require.NoError(t, err)
	got, err := fromDB.ReadGap(12, 2, "TOP")
	require.NoError(t, err)
	assert.InDelta(t, want.Current, got.Current, 1e-12)
	assert.InDelta(t, want.HVeff, got.HVeff, 1e-9)

	_, err = files.Entries(12, "MID")
	assert.Error(t, err)
}

func TestConnectUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := ConnectToDatabase("postgres", "", "", "", "runs")
	assert.Error(t, err)
}
