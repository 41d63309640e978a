package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

func currentDataset(gap string) string { return "Imon_" + gap }
func voltageDataset(gap string) string { return "HVeff_" + gap }

// HDF5Monitor reads the CAEN monitoring files Scan<id>_HV<point>_CAEN.h5 in
// Dir. Each gap has one dataset of current and one of effective voltage
// samples; a reading is the mean of the samples.
type HDF5Monitor struct {
	Dir string
}

// HVPoints lists the HV points of a scan in natural file order.
func (m HDF5Monitor) HVPoints(scanID int) ([]int, error) {
	files, err := scanFiles(m.Dir, scanID, "CAEN.h5")
	if err != nil {
		return nil, err
	}
	return hvPointsOf(files)
}

func (m HDF5Monitor) ReadGap(scanID int, hvPoint int, gapName string) (analyzer.GapReading, error) {
	samples, err := m.ReadSamples(scanID, hvPoint, gapName)
	if err != nil {
		return analyzer.GapReading{}, err
	}
	return analyzer.GapReading{Current: meanOf(samples.Currents), HVeff: meanOf(samples.Voltages)}, nil
}

// ReadSamples loads the current and voltage samples of one gap.
func (m HDF5Monitor) ReadSamples(scanID int, hvPoint int, gapName string) (GapSamples, error) {
	filename := filepath.Join(m.Dir, CAENFileName(scanID, hvPoint))
	if _, err := os.Stat(filename); err != nil {
		return GapSamples{}, &analyzer.ErrInputMissing{Filename: filename, Err: err}
	}
	file, err := openFile(filename)
	if err != nil {
		return GapSamples{}, err
	}
	defer file.Close()

	currents, err := readTable[float64](file, currentDataset(gapName))
	if err != nil {
		return GapSamples{}, err
	}
	voltages, err := readTable[float64](file, voltageDataset(gapName))
	if err != nil {
		return GapSamples{}, err
	}
	return GapSamples{Currents: currents, Voltages: voltages}, nil
}

// Entries flattens the samples of the given gaps at every HV point of a
// scan into CAENMonitoring rows. Samples are paired by index.
func (m HDF5Monitor) Entries(scanID int, gapNames ...string) ([]MonitoringEntry, error) {
	hvPoints, err := m.HVPoints(scanID)
	if err != nil {
		return nil, err
	}
	var entries []MonitoringEntry
	for _, hvPoint := range hvPoints {
		for _, gap := range gapNames {
			samples, err := m.ReadSamples(scanID, hvPoint, gap)
			if err != nil {
				return nil, err
			}
			n := min(len(samples.Currents), len(samples.Voltages))
			for i := 0; i < n; i++ {
				entries = append(entries, MonitoringEntry{
					ScanID:  scanID,
					HVPoint: hvPoint,
					GapName: gap,
					Imon:    samples.Currents[i],
					HVeff:   samples.Voltages[i],
				})
			}
		}
	}
	return entries, nil
}

func meanOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

// GapSamples are the monitoring samples of one gap.
type GapSamples struct {
	Currents []float64
	Voltages []float64
}

// WriteMonitoringFile writes a CAEN monitoring file with one current and
// one voltage dataset per gap.
func WriteMonitoringFile(filename string, gaps map[string]GapSamples) error {
	file, err := createFile(filename)
	if err != nil {
		return err
	}
	for _, gap := range analyzer.SortedKeys(gaps) {
		samples := gaps[gap]
		if err := writeFloatArray(file, currentDataset(gap), samples.Currents); err != nil {
			return errors.Join(err, file.Close())
		}
		if err := writeFloatArray(file, voltageDataset(gap), samples.Voltages); err != nil {
			return errors.Join(err, file.Close())
		}
	}
	return file.Close()
}

// DBMonitor reads monitoring values from the CAENMonitoring table.
type DBMonitor struct {
	DB Querier
}

// HVPoints lists the distinct HV points recorded for a scan.
func (m DBMonitor) HVPoints(scanID int) ([]int, error) {
	var points []int
	query := "SELECT DISTINCT HVPoint FROM CAENMonitoring WHERE ScanID = ? ORDER BY HVPoint"
	if err := m.DB.Select(&points, query, scanID); err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	return points, nil
}

type monitoringRow struct {
	Imon  float64 `db:"Imon"`
	HVeff float64 `db:"HVeff"`
}

func (m DBMonitor) ReadGap(scanID int, hvPoint int, gapName string) (analyzer.GapReading, error) {
	query := "SELECT Imon, HVeff FROM CAENMonitoring WHERE ScanID = ? AND HVPoint = ? AND GapName = ?"
	rows, err := m.DB.Queryx(query, scanID, hvPoint, gapName)
	if err != nil {
		return analyzer.GapReading{}, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var currents, voltages []float64
	for rows.Next() {
		result := monitoringRow{}
		if err := rows.StructScan(&result); err != nil {
			return analyzer.GapReading{}, fmt.Errorf("error scanning DB row: %w", err)
		}
		currents = append(currents, result.Imon)
		voltages = append(voltages, result.HVeff)
	}
	if err := rows.Err(); err != nil {
		return analyzer.GapReading{}, fmt.Errorf("error reading DB rows: %w", err)
	}
	if len(currents) == 0 {
		source := fmt.Sprintf("CAENMonitoring scan %d HV %d gap %s", scanID, hvPoint, gapName)
		return analyzer.GapReading{}, &analyzer.ErrInputMissing{Filename: source, Err: errors.New("no rows")}
	}
	return analyzer.GapReading{Current: meanOf(currents), HVeff: meanOf(voltages)}, nil
}
