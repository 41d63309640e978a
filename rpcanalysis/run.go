package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlx "github.com/jmoiron/sqlx"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
	"github.com/cms-rpc/analyzer_go/pkg/store"
)

func connect(config analyzer.Configuration) (*sqlx.DB, error) {
	db, err := store.ConnectToDatabase(config.DBDriver, config.User, config.Passwd, config.Host, config.DBName)
	if err != nil {
		return nil, fmt.Errorf("Error connection to database: %w", err)
	}
	return db, nil
}

// openGeometry loads the detector table from the geometry file or, unless
// no_db is set, from the database. The returned connection is nil when no
// database is used.
func openGeometry(config analyzer.Configuration) (analyzer.Geometry, *sqlx.DB, error) {
	if err := config.ValidateGeometry(); err != nil {
		return analyzer.Geometry{}, nil, err
	}
	if config.NoDB {
		geo, err := store.LoadGeometry(config.GeometryFile, config.Geometry)
		return geo, nil, err
	}
	db, err := connect(config)
	if err != nil {
		return analyzer.Geometry{}, nil, err
	}
	geo, err := store.GeometryFromDB(db, config.Geometry, config.ScanID)
	if err != nil {
		return geo, nil, errors.Join(err, db.Close())
	}
	return geo, db, nil
}

func monitoringSource(config analyzer.Configuration, db *sqlx.DB) analyzer.MonitoringSource {
	if config.Monitoring == "db" && db != nil {
		return store.DBMonitor{DB: db}
	}
	return store.HDF5Monitor{Dir: config.InputDir}
}

func outputRoot(config analyzer.Configuration) (string, error) {
	root := filepath.Join(config.OutputDir, config.Tag)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return root, nil
}

func runScan(config analyzer.Configuration) (err error) {
	geo, db, err := openGeometry(config)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { err = errors.Join(err, db.Close()) }()
	}
	root, err := outputRoot(config)
	if err != nil {
		return err
	}

	report, err := analyzer.RunScan(analyzer.ScanInput{
		ScanID:       config.ScanID,
		ScanType:     config.ScanType,
		Geometry:     geo,
		Events:       store.EventStore{Dir: config.InputDir},
		Monitor:      monitoringSource(config, db),
		Sink:         analyzer.RecordDir{Root: root},
		Peak:         config.Peak(),
		ClusterTimes: config.ClusterTimes(),
		NoiseOffset:  config.NoiseOffset,
		HVMin:        config.HVMin,
		HVMax:        config.HVMax,
		NumWorkers:   config.NumWorkers,
	})
	if err != nil {
		return fmt.Errorf("scan %d: %w", config.ScanID, err)
	}

	if err := analyzer.WriteSummary(filepath.Join(root, "results.json"), report.Summary); err != nil {
		return err
	}
	if config.WriteHDF5 {
		filename := filepath.Join(root, "scan.h5")
		if err := store.WriteSummaryFile(filename, report.Summary, config.CompressionLevel); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
	}

	if config.ScanType == analyzer.EfficiencyScan {
		s := report.Summary
		message := fmt.Sprintf("Scan %d: working point %.0f +/- %.0f V, efficiency %.2f%%, CLS %.2f, CMP %.2f",
			config.ScanID, s.WorkingPoint, s.WorkingPointErr, s.Efficiency, s.ClusterSize, s.Multiplicity)
		logger.Info(message, "main")
	} else {
		message := fmt.Sprintf("Scan %d: %d HV points analysed", config.ScanID, len(report.Series.Points))
		logger.Info(message, "main")
	}
	return nil
}

func runClusterStudy(config analyzer.Configuration, hvPoint int) (err error) {
	geo, db, err := openGeometry(config)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { err = errors.Join(err, db.Close()) }()
	}
	root, err := outputRoot(config)
	if err != nil {
		return err
	}

	events, err := store.EventStore{Dir: config.InputDir}.ReadEvents(config.ScanID, hvPoint)
	if err != nil {
		return err
	}
	monitor := monitoringSource(config, db)
	top, err := monitor.ReadGap(config.ScanID, hvPoint, geo.TopGapName)
	if err != nil {
		return err
	}
	bot, err := monitor.ReadGap(config.ScanID, hvPoint, geo.BotGapName)
	if err != nil {
		return err
	}

	result, err := analyzer.AnalyzePoint(analyzer.PointInput{
		ScanID:       config.ScanID,
		HVPoint:      hvPoint,
		ScanType:     analyzer.EfficiencyScan,
		Events:       events,
		Geometry:     geo,
		Peak:         config.Peak(),
		ClusterTimes: config.ClusterTimes(),
		NoiseOffset:  config.NoiseOffset,
		StudyTimes:   config.ClusterStudyTimes,
		Top:          top,
		Bot:          bot,
	})
	if err != nil {
		return err
	}
	if err := (analyzer.RecordDir{Root: root}).WritePoint(result); err != nil {
		return err
	}
	for _, p := range result.Study {
		message := fmt.Sprintf("HV point %d, cluster time %4.1f ns: CLS %.3f, CMP %.3f, CLS(CMP=1) %.3f",
			hvPoint, p.TimeConstant, p.MeanSize, p.MeanMultiplicity, p.MeanSizeCMP1)
		logger.Info(message, "clusterstudy")
	}
	return nil
}

func runThresholdSummary(config analyzer.Configuration) error {
	if len(config.ThresholdDirs) == 0 {
		return errors.New("no threshold_dirs configured")
	}
	scans := make([]analyzer.ThresholdScan, len(config.ThresholdDirs))
	for i, dir := range config.ThresholdDirs {
		eff, err := analyzer.ReadSummary(filepath.Join(dir, "results.json"))
		if err != nil {
			return err
		}
		scans[i] = analyzer.ThresholdScan{Threshold: config.Thresholds[i], Efficiency: eff}
		scans[i].Noise.NoiseRate = eff.NoiseRate
		if len(config.NoiseDirs) > 0 {
			noise, err := analyzer.ReadSummary(filepath.Join(config.NoiseDirs[i], "results.json"))
			if err != nil {
				return err
			}
			scans[i].Noise = noise
		}
	}

	summary, err := analyzer.SummarizeThresholds(scans)
	if err != nil {
		return err
	}
	root, err := outputRoot(config)
	if err != nil {
		return err
	}
	filename := filepath.Join(root, "thresholds.json")
	if err := analyzer.WriteThresholdSummary(filename, summary); err != nil {
		return err
	}
	for i, thr := range summary.WorkingPoint.X {
		message := fmt.Sprintf("Threshold %.0f mV: working point %.0f V, CLS %.2f, CMP %.2f, noise %.2f Hz/cm2",
			thr, summary.WorkingPoint.Y[i], summary.ClusterSize.Y[i], summary.Multiplicity.Y[i], summary.NoiseRate.Y[i])
		logger.Info(message, "summary")
	}
	return nil
}

func showGeometry(config analyzer.Configuration) error {
	geo, db, err := openGeometry(config)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	logger.Info(fmt.Sprintf("Geometry %s: %d strips, %d masked, area %.2f cm2",
		geo.Name, geo.TotalStrips(), geo.MaskedCount(), geo.StripArea), "geometry")
	logger.Info(fmt.Sprintf("Trigger windows: muon %.0f ns, noise %.0f ns, reject %.0f ns",
		geo.MuonTriggerWindow, geo.NoiseTriggerWindow, geo.TimeWindowReject), "geometry")
	for i, channel := range geo.Channels {
		strip := geo.Strips[i]
		logger.Info(fmt.Sprintf("Channel %d -> strip %d masked=%t", channel, strip, geo.IsMasked(strip)), "geometry")
	}
	return nil
}

func importGeometries(config analyzer.Configuration, filename string, minScan int, maxScan int, initSchema bool) (err error) {
	if config.NoDB {
		return errors.New("geometry import needs a database, set no_db to false")
	}
	tables, err := store.LoadGeometries(filename)
	if err != nil {
		return err
	}
	db, err := connect(config)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()
	if initSchema {
		if err := store.CreateSchema(db); err != nil {
			return err
		}
	}

	for _, name := range analyzer.SortedKeys(tables) {
		geo, err := tables[name].Prepare()
		if err != nil {
			return err
		}
		if err := store.StoreGeometry(db, geo, minScan, maxScan); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Stored geometry %s for scans [%d, %d]", name, minScan, maxScan), "geometry")
	}
	return nil
}

// importMonitoring copies the CAEN samples of both gaps at every HV point of
// the scan into the CAENMonitoring table.
func importMonitoring(config analyzer.Configuration, initSchema bool) (err error) {
	if config.NoDB {
		return errors.New("monitoring import needs a database, set no_db to false")
	}
	if err := config.ValidateGeometry(); err != nil {
		return err
	}
	db, err := connect(config)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()
	if initSchema {
		if err := store.CreateSchema(db); err != nil {
			return err
		}
	}

	geo, err := store.GeometryFromDB(db, config.Geometry, config.ScanID)
	if err != nil {
		return err
	}
	monitor := store.HDF5Monitor{Dir: config.InputDir}
	entries, err := monitor.Entries(config.ScanID, geo.TopGapName, geo.BotGapName)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return &analyzer.ErrInputMissing{
			Filename: fmt.Sprintf("scan %d monitoring in %s", config.ScanID, config.InputDir),
			Err:      errors.New("no CAEN samples found"),
		}
	}
	if err := store.StoreMonitoring(db, entries); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Stored %d monitoring samples of scan %d", len(entries), config.ScanID), "monitoring")
	return nil
}
