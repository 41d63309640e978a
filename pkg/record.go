package analyzer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// notComputed marks a quantity of a record that does not apply to the scan.
const notComputed = -1.0

// InputParameters echo the settings a record was produced with.
type InputParameters struct {
	ScanType                  ScanType `json:"scanType"`
	ScanID                    int      `json:"scanid"`
	HVPoint                   int      `json:"HVPoint"`
	TimeWindowReject          float64  `json:"timeWindowReject"`
	TriggerWindow             float64  `json:"triggerWindow"`
	MuonWindowWidth           float64  `json:"muonWindowWidth"`
	NoiseOffsetFromMuonWindow float64  `json:"noiseOffsetFromMuonWindow"`
}

// OutputParameters are the measured quantities of one HV point.
type OutputParameters struct {
	MuonWindowSigma      float64 `json:"muonWindowSigma"`
	MuonWindowMean       float64 `json:"muonWindowMean"`
	MuonTimeWindowBegin  float64 `json:"muonTimeWindowBegin"`
	MuonTimeWindowEnd    float64 `json:"muonTimeWindowEnd"`
	MuonTimeWindow       float64 `json:"muonTimeWindow"`
	NoiseTimeWindowBegin float64 `json:"noiseTimeWindowBegin"`
	NoiseTimeWindow      float64 `json:"noiseTimeWindow"`
	NoiseTimeWindowEnd   float64 `json:"noiseTimeWindowEnd"`
	MuonCLS              float64 `json:"muonCLS"`
	MuonCMP              float64 `json:"muonCMP"`
	MuonCLSErr           float64 `json:"muonCLS_err"`
	MuonCMPErr           float64 `json:"muonCMP_err"`
	MuonCLSCMP1          float64 `json:"muonCLS_CMP1"`
	EfficiencyAbs        float64 `json:"efficiencyAbs"`
	EfficiencyMuon       float64 `json:"efficiencyMuon"`
	EfficiencyAbsErr     float64 `json:"efficiencyAbs_err"`
	EfficiencyMuonErr    float64 `json:"efficiencyMuon_err"`
	NoiseRate            float64 `json:"noiseRate"`
	ValidatedEvents      int     `json:"validatedEvents"`

	NoiseProfile map[int]float64     `json:"noiseProfile,omitempty"`
	ClusterStudy []ClusterStudyPoint `json:"clusterStudy,omitempty"`
}

// Record is the result file of one HV point.
type Record struct {
	Input  InputParameters  `json:"input_parameters"`
	Output OutputParameters `json:"output_parameters"`
}

// newRecord returns a record with every output marked as not computed.
func newRecord(input InputParameters) Record {
	return Record{
		Input: input,
		Output: OutputParameters{
			MuonWindowSigma:      notComputed,
			MuonWindowMean:       notComputed,
			MuonTimeWindowBegin:  notComputed,
			MuonTimeWindowEnd:    notComputed,
			MuonTimeWindow:       notComputed,
			NoiseTimeWindowBegin: notComputed,
			NoiseTimeWindow:      notComputed,
			NoiseTimeWindowEnd:   notComputed,
			MuonCLS:              notComputed,
			MuonCMP:              notComputed,
			MuonCLSErr:           notComputed,
			MuonCMPErr:           notComputed,
			MuonCLSCMP1:          notComputed,
			EfficiencyAbs:        notComputed,
			EfficiencyMuon:       notComputed,
			EfficiencyAbsErr:     notComputed,
			EfficiencyMuonErr:    notComputed,
			NoiseRate:            notComputed,
		},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ErrInputMissing{Filename: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// WriteRecord stores the record as indented JSON.
func WriteRecord(path string, record Record) error {
	return writeJSON(path, record)
}

// ReadRecord loads a record written by WriteRecord.
func ReadRecord(path string) (Record, error) {
	var record Record
	err := readJSON(path, &record)
	return record, err
}

// WriteSummary stores a scan summary as indented JSON.
func WriteSummary(path string, summary ScanSummary) error {
	return writeJSON(path, summary)
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (ScanSummary, error) {
	var summary ScanSummary
	err := readJSON(path, &summary)
	return summary, err
}

// WriteThresholdSummary stores the threshold curves as indented JSON.
func WriteThresholdSummary(path string, summary ThresholdSummary) error {
	return writeJSON(path, summary)
}

// RecordSink receives the result of every finished HV point.
type RecordSink interface {
	WritePoint(result PointResult) error
}

// RecordDir writes records as <Root>/HV<point>/output.json.
type RecordDir struct {
	Root string
}

// PointDir is the directory holding the record of a HV point.
func (d RecordDir) PointDir(hvPoint int) string {
	return filepath.Join(d.Root, fmt.Sprintf("HV%d", hvPoint))
}

// RecordPath is the record file of a HV point.
func (d RecordDir) RecordPath(hvPoint int) string {
	return filepath.Join(d.PointDir(hvPoint), "output.json")
}

func (d RecordDir) WritePoint(result PointResult) error {
	dir := d.PointDir(result.HVPoint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return WriteRecord(d.RecordPath(result.HVPoint), result.Record)
}
