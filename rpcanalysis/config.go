package main

import (
	"encoding/json"
	"fmt"
	"os"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

// LoadConfiguration reads a JSON configuration file on top of the defaults.
// An empty filename returns the defaults.
func LoadConfiguration(filename string) (analyzer.Configuration, error) {
	config := analyzer.DefaultConfiguration()
	if filename == "" {
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func printConfiguration(config analyzer.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Input dir: %s", config.InputDir), "config")
	logger.Info(fmt.Sprintf("Output dir: %s", config.OutputDir), "config")
	logger.Info(fmt.Sprintf("Tag: %s", config.Tag), "config")
	logger.Info(fmt.Sprintf("Scan ID: %d", config.ScanID), "config")
	logger.Info(fmt.Sprintf("Scan type: %v", config.ScanType), "config")
	logger.Info(fmt.Sprintf("Geometry: %s", config.Geometry), "config")
	logger.Info(fmt.Sprintf("Geometry file: %s", config.GeometryFile), "config")
	logger.Info(fmt.Sprintf("Peak mean: %.1f ns", config.PeakMean), "config")
	logger.Info(fmt.Sprintf("Peak width: %.1f ns", config.PeakWidth), "config")
	logger.Info(fmt.Sprintf("Cluster time: %.1f ns (up %.1f, down %.1f)",
		config.ClusterTime, config.ClusterTimeUp, config.ClusterTimeDown), "config")
	logger.Info(fmt.Sprintf("Cluster study times: %v", config.ClusterStudyTimes), "config")
	logger.Info(fmt.Sprintf("Monitoring: %s", config.Monitoring), "config")
	logger.Info(fmt.Sprintf("HV range: [%.0f, %.0f] V", config.HVMin, config.HVMax), "config")
	logger.Info(fmt.Sprintf("Noise offset: %.1f ns", config.NoiseOffset), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Write HDF5: %t", config.WriteHDF5), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Thresholds: %v", config.Thresholds), "config")
}
