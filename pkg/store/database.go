package store

import (
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

// Querier is the read side shared by *sqlx.DB and *sqlx.Tx.
type Querier interface {
	Select(dest interface{}, query string, args ...interface{}) error
	Get(dest interface{}, query string, args ...interface{}) error
	Queryx(query string, args ...interface{}) (*sqlx.Rows, error)
}

// ConnectToDatabase opens the run database. driver is "mysql" or "sqlite";
// for sqlite dbname is the database file (or ":memory:").
func ConnectToDatabase(driver string, user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	switch driver {
	case "mysql", "":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
		return sqlx.Connect("mysql", dbURI)
	case "sqlite":
		db, err := sqlx.Connect("sqlite", dbname)
		if err != nil {
			return nil, err
		}
		// an in-memory database lives in a single connection
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS StripMapping (
		Detector VARCHAR(64) NOT NULL,
		Channel INTEGER NOT NULL,
		Strip INTEGER NOT NULL,
		Masked INTEGER NOT NULL DEFAULT 0,
		MinScan INTEGER NOT NULL,
		MaxScan INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS DetectorParams (
		Detector VARCHAR(64) NOT NULL,
		MinScan INTEGER NOT NULL,
		MaxScan INTEGER NOT NULL,
		MuonTriggerWindow DOUBLE PRECISION NOT NULL,
		NoiseTriggerWindow DOUBLE PRECISION NOT NULL,
		TimeWindowReject DOUBLE PRECISION NOT NULL,
		MuonWindowWidth DOUBLE PRECISION NOT NULL,
		StripArea DOUBLE PRECISION NOT NULL,
		TopGapName VARCHAR(64) NOT NULL,
		BotGapName VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS CAENMonitoring (
		ScanID INTEGER NOT NULL,
		HVPoint INTEGER NOT NULL,
		GapName VARCHAR(64) NOT NULL,
		Imon DOUBLE PRECISION NOT NULL,
		HVeff DOUBLE PRECISION NOT NULL
	)`,
}

// CreateSchema creates the geometry and monitoring tables if missing.
func CreateSchema(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

type stripMappingEntry struct {
	Channel int  `db:"Channel"`
	Strip   int  `db:"Strip"`
	Masked  bool `db:"Masked"`
}

type detectorParamsEntry struct {
	MuonTriggerWindow  float64 `db:"MuonTriggerWindow"`
	NoiseTriggerWindow float64 `db:"NoiseTriggerWindow"`
	TimeWindowReject   float64 `db:"TimeWindowReject"`
	MuonWindowWidth    float64 `db:"MuonWindowWidth"`
	StripArea          float64 `db:"StripArea"`
	TopGapName         string  `db:"TopGapName"`
	BotGapName         string  `db:"BotGapName"`
}

// GeometryFromDB reads the detector table valid for scanID. Channels come
// ordered by channel number.
func GeometryFromDB(db Querier, detector string, scanID int) (analyzer.Geometry, error) {
	geo := analyzer.Geometry{Name: detector}

	var params detectorParamsEntry
	query := `SELECT MuonTriggerWindow, NoiseTriggerWindow, TimeWindowReject, MuonWindowWidth,
		StripArea, TopGapName, BotGapName FROM DetectorParams
		WHERE Detector = ? AND MinScan <= ? AND MaxScan >= ?`
	if err := db.Get(&params, query, detector, scanID, scanID); err != nil {
		return geo, fmt.Errorf("error reading parameters of detector %q: %w", detector, err)
	}
	geo.MuonTriggerWindow = params.MuonTriggerWindow
	geo.NoiseTriggerWindow = params.NoiseTriggerWindow
	geo.TimeWindowReject = params.TimeWindowReject
	geo.MuonWindowWidth = params.MuonWindowWidth
	geo.StripArea = params.StripArea
	geo.TopGapName = params.TopGapName
	geo.BotGapName = params.BotGapName

	query = `SELECT Channel, Strip, Masked FROM StripMapping
		WHERE Detector = ? AND MinScan <= ? AND MaxScan >= ? ORDER BY Channel`
	rows, err := db.Queryx(query, detector, scanID, scanID)
	if err != nil {
		return geo, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		result := stripMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return geo, fmt.Errorf("error scanning DB row: %w", err)
		}
		geo.Channels = append(geo.Channels, result.Channel)
		geo.Strips = append(geo.Strips, result.Strip)
		if result.Masked {
			geo.MaskedStrips = append(geo.MaskedStrips, result.Strip)
		}
	}
	if err := rows.Err(); err != nil {
		return geo, fmt.Errorf("error reading DB rows: %w", err)
	}
	return geo.Prepare()
}

// StoreGeometry inserts a detector table valid for scans [minScan, maxScan].
func StoreGeometry(db *sqlx.DB, geo analyzer.Geometry, minScan int, maxScan int) (err error) {
	if geo.Name == "" {
		return errors.New("geometry without name")
	}
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	_, err = tx.Exec(`INSERT INTO DetectorParams (Detector, MinScan, MaxScan, MuonTriggerWindow,
		NoiseTriggerWindow, TimeWindowReject, MuonWindowWidth, StripArea, TopGapName, BotGapName)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		geo.Name, minScan, maxScan, geo.MuonTriggerWindow, geo.NoiseTriggerWindow,
		geo.TimeWindowReject, geo.MuonWindowWidth, geo.StripArea, geo.TopGapName, geo.BotGapName)
	if err != nil {
		return fmt.Errorf("error inserting parameters of %q: %w", geo.Name, err)
	}
	for i, channel := range geo.Channels {
		strip := geo.Strips[i]
		_, err = tx.Exec(`INSERT INTO StripMapping (Detector, Channel, Strip, Masked, MinScan, MaxScan)
			VALUES (?, ?, ?, ?, ?, ?)`,
			geo.Name, channel, strip, geo.IsMasked(strip), minScan, maxScan)
		if err != nil {
			return fmt.Errorf("error inserting channel %d of %q: %w", channel, geo.Name, err)
		}
	}
	return tx.Commit()
}

// MonitoringEntry is one row of the CAENMonitoring table.
type MonitoringEntry struct {
	ScanID  int     `db:"ScanID"`
	HVPoint int     `db:"HVPoint"`
	GapName string  `db:"GapName"`
	Imon    float64 `db:"Imon"`
	HVeff   float64 `db:"HVeff"`
}

// StoreMonitoring inserts monitoring samples in one transaction.
func StoreMonitoring(db *sqlx.DB, entries []MonitoringEntry) (err error) {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, e := range entries {
		_, err = tx.NamedExec(`INSERT INTO CAENMonitoring (ScanID, HVPoint, GapName, Imon, HVeff)
			VALUES (:ScanID, :HVPoint, :GapName, :Imon, :HVeff)`, e)
		if err != nil {
			return fmt.Errorf("error inserting monitoring of HV point %d: %w", e.HVPoint, err)
		}
	}
	return tx.Commit()
}
