package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	hdf5 "github.com/jmbenlloch/go-hdf5"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

const scanGroup = "Scan"

type scanPointHDF5 struct {
	hv_point     int32
	hv_eff       float64
	imon_top     float64
	imon_bot     float64
	eff_abs      float64
	eff_abs_err  float64
	eff_muon     float64
	eff_muon_err float64
	cls          float64
	cls_err      float64
	cmp          float64
	cmp_err      float64
	noise_rate   float64
}

type summaryParamHDF5 struct {
	param [STRLEN]byte
	value float64
}

// SummaryWriter stores a scan summary as HDF5: the ordered points in
// Scan/points and the scalar results in Scan/summary.
type SummaryWriter struct {
	File         *hdf5.File
	Filename     string
	ScanGroup    *hdf5.Group
	PointsTable  *hdf5.Dataset
	SummaryTable *hdf5.Dataset
}

func NewSummaryWriter(filename string, compression int) (*SummaryWriter, error) {
	hdf5.SetStringLength(STRLEN)

	w := &SummaryWriter{Filename: filename}
	var err error
	if w.File, err = createFile(filename); err != nil {
		return nil, err
	}
	if w.ScanGroup, err = createGroup(w.File, scanGroup); err != nil {
		return nil, errors.Join(err, w.File.Close())
	}
	if w.PointsTable, err = createTable(w.ScanGroup, "points", scanPointHDF5{}, compression); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	if w.SummaryTable, err = createTable(w.ScanGroup, "summary", summaryParamHDF5{}, compression); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	return w, nil
}

// Write stores the points and scalar values of a summary.
func (w *SummaryWriter) Write(summary analyzer.ScanSummary) error {
	points := make([]scanPointHDF5, len(summary.Points))
	for i, p := range summary.Points {
		points[i] = scanPointHDF5{
			hv_point:     int32(p.HVPoint),
			hv_eff:       p.Voltage,
			imon_top:     p.CurrentTop,
			imon_bot:     p.CurrentBot,
			eff_abs:      p.EffAbs,
			eff_abs_err:  p.EffAbsErr,
			eff_muon:     p.EffMuon,
			eff_muon_err: p.EffMuonErr,
			cls:          p.ClusterSize,
			cls_err:      p.ClusterSizeErr,
			cmp:          p.Multiplicity,
			cmp_err:      p.MultiplicityErr,
			noise_rate:   p.NoiseRate,
		}
	}
	if err := writeArrayToTable(w.PointsTable, &points, 0); err != nil {
		return fmt.Errorf("writing scan points: %w", err)
	}
	params := summaryParams(summary)
	if err := writeArrayToTable(w.SummaryTable, &params, 0); err != nil {
		return fmt.Errorf("writing scan summary: %w", err)
	}
	return nil
}

// summaryParams lists the numeric fields of the summary under their JSON
// names.
func summaryParams(summary analyzer.ScanSummary) []summaryParamHDF5 {
	t := reflect.TypeOf(summary)
	v := reflect.ValueOf(summary)
	entries := make([]summaryParamHDF5, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		var value float64
		switch f.Type.Kind() {
		case reflect.Float64:
			value = v.Field(i).Float()
		case reflect.Int:
			value = float64(v.Field(i).Int())
		default:
			continue
		}
		entries = append(entries, summaryParamHDF5{
			param: convertToHdf5String(name),
			value: value,
		})
	}
	return entries
}

func (w *SummaryWriter) Close() error {
	var errs []error
	if w.SummaryTable != nil {
		errs = append(errs, w.SummaryTable.Close())
	}
	if w.PointsTable != nil {
		errs = append(errs, w.PointsTable.Close())
	}
	if w.ScanGroup != nil {
		errs = append(errs, w.ScanGroup.Close())
	}
	if w.File != nil {
		errs = append(errs, w.File.Close())
	}
	return errors.Join(errs...)
}

// WriteSummaryFile writes a summary to a new HDF5 file.
func WriteSummaryFile(filename string, summary analyzer.ScanSummary, compression int) error {
	w, err := NewSummaryWriter(filename, compression)
	if err != nil {
		return err
	}
	return errors.Join(w.Write(summary), w.Close())
}

// ReadSummaryFile reads back the scalar values and the points of a file
// written by SummaryWriter.
func ReadSummaryFile(filename string) (map[string]float64, []analyzer.ScanPoint, error) {
	file, err := openFile(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	group, err := file.OpenGroup(scanGroup)
	if err != nil {
		return nil, nil, fmt.Errorf("opening group %s in %s: %w", scanGroup, filename, err)
	}
	defer group.Close()

	params, err := readTable[summaryParamHDF5](group, "summary")
	if err != nil {
		return nil, nil, err
	}
	values := make(map[string]float64, len(params))
	for _, p := range params {
		values[hdf5StringToGo(p.param)] = p.value
	}

	rows, err := readTable[scanPointHDF5](group, "points")
	if err != nil {
		return nil, nil, err
	}
	points := make([]analyzer.ScanPoint, len(rows))
	for i, r := range rows {
		points[i] = analyzer.ScanPoint{
			HVPoint:         int(r.hv_point),
			Voltage:         r.hv_eff,
			CurrentTop:      r.imon_top,
			CurrentBot:      r.imon_bot,
			EffAbs:          r.eff_abs,
			EffAbsErr:       r.eff_abs_err,
			EffMuon:         r.eff_muon,
			EffMuonErr:      r.eff_muon_err,
			ClusterSize:     r.cls,
			ClusterSizeErr:  r.cls_err,
			Multiplicity:    r.cmp,
			MultiplicityErr: r.cmp_err,
			NoiseRate:       r.noise_rate,
		}
	}
	return values, points, nil
}
