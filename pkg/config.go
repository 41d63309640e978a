package analyzer

import (
	"errors"
	"fmt"
)

type Configuration struct {
	InputDir          string    `json:"input_dir"`
	OutputDir         string    `json:"output_dir"`
	Tag               string    `json:"tag"`
	ScanID            int       `json:"scan_id"`
	ScanType          ScanType  `json:"scan_type"`
	Geometry          string    `json:"geometry"`
	GeometryFile      string    `json:"geometry_file"`
	PeakMean          float64   `json:"peak_mean"`
	PeakWidth         float64   `json:"peak_width"`
	ClusterTime       float64   `json:"cluster_time"`
	ClusterTimeUp     float64   `json:"cluster_time_up"`
	ClusterTimeDown   float64   `json:"cluster_time_down"`
	ClusterStudyTimes []float64 `json:"cluster_study_times"`
	Monitoring        string    `json:"monitoring"`
	HVMin             float64   `json:"hv_min"`
	HVMax             float64   `json:"hv_max"`
	NoiseOffset       float64   `json:"noise_offset"`
	Verbosity         int       `json:"verbosity"`
	NumWorkers        int       `json:"num_workers"`
	NoDB              bool      `json:"no_db"`
	DBDriver          string    `json:"db_driver"`
	Host              string    `json:"host"`
	User              string    `json:"user"`
	Passwd            string    `json:"pass"`
	DBName            string    `json:"dbname"`
	WriteHDF5         bool      `json:"write_hdf5"`
	CompressionLevel  int       `json:"compression_level"`
	Thresholds        []float64 `json:"thresholds"`
	ThresholdDirs     []string  `json:"threshold_dirs"`
	NoiseDirs         []string  `json:"noise_dirs"`
}

// DefaultConfiguration holds the values used for keys missing in the
// configuration file.
func DefaultConfiguration() Configuration {
	return Configuration{
		InputDir:          ".",
		OutputDir:         ".",
		Tag:               "analysis",
		ScanType:          EfficiencyScan,
		PeakMean:          -1,
		PeakWidth:         -1,
		ClusterTime:       10,
		ClusterTimeUp:     4,
		ClusterTimeDown:   16,
		ClusterStudyTimes: []float64{0, 2, 4, 6, 8, 10, 15, 20, 25},
		Monitoring:        "hdf5",
		HVMin:             0,
		HVMax:             20000,
		NoiseOffset:       NoiseOffsetFromMuonWindow,
		Verbosity:         0,
		NumWorkers:        1,
		NoDB:              true,
		DBDriver:          "mysql",
		WriteHDF5:         false,
		CompressionLevel:  4,
	}
}

var errInvalidConfiguration = errors.New("invalid configuration")

// Validate checks the ranges of the analysis settings.
func (c Configuration) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.OutputDir != "", "output_dir must be set")
	check(c.Tag != "", "tag must be set")
	check(c.ClusterTime > 0, "cluster_time must be positive, got %v", c.ClusterTime)
	check(c.ClusterTimeUp > 0, "cluster_time_up must be positive, got %v", c.ClusterTimeUp)
	check(c.ClusterTimeDown > 0, "cluster_time_down must be positive, got %v", c.ClusterTimeDown)
	check(c.HVMin < c.HVMax, "hv_min (%v) must be below hv_max (%v)", c.HVMin, c.HVMax)
	check(c.NoiseOffset > 0, "noise_offset must be positive, got %v", c.NoiseOffset)
	check(c.NumWorkers > 0, "num_workers must be positive, got %d", c.NumWorkers)
	check((c.PeakMean < 0) == (c.PeakWidth < 0), "peak_mean and peak_width must be set together")
	check(c.NoDB || c.DBDriver == "mysql" || c.DBDriver == "sqlite", "unknown db_driver %q", c.DBDriver)
	check(c.CompressionLevel >= 0 && c.CompressionLevel <= 9, "compression_level must be in [0, 9], got %d", c.CompressionLevel)
	check(len(c.Thresholds) == len(c.ThresholdDirs), "%d thresholds but %d threshold_dirs", len(c.Thresholds), len(c.ThresholdDirs))
	check(len(c.NoiseDirs) == 0 || len(c.NoiseDirs) == len(c.ThresholdDirs),
		"%d noise_dirs but %d threshold_dirs", len(c.NoiseDirs), len(c.ThresholdDirs))
	check(c.Monitoring == "hdf5" || c.Monitoring == "db", "monitoring must be hdf5 or db, got %q", c.Monitoring)
	check(c.Monitoring != "db" || !c.NoDB, "monitoring from db requires no_db false")
	for _, dt := range c.ClusterStudyTimes {
		check(dt >= 0, "cluster_study_times must not be negative, got %v", dt)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// ClusterTimes returns the clustering time constants.
func (c Configuration) ClusterTimes() ClusterTimes {
	return ClusterTimes{Nominal: c.ClusterTime, Up: c.ClusterTimeUp, Down: c.ClusterTimeDown}
}

// Peak returns the window source for the configured peak values.
func (c Configuration) Peak() WindowSource {
	return PeakSource(c.PeakMean, c.PeakWidth)
}

// ValidateGeometry checks the keys that select the detector table.
func (c Configuration) ValidateGeometry() error {
	if c.Geometry == "" {
		return fmt.Errorf("%w: geometry must name a detector", errInvalidConfiguration)
	}
	if c.NoDB && c.GeometryFile == "" {
		return fmt.Errorf("%w: geometry_file must be set when no_db is true", errInvalidConfiguration)
	}
	return nil
}
