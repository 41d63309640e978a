package store

import (
	"encoding/json"
	"fmt"
	"os"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

// LoadGeometries reads a JSON object of named detector tables.
func LoadGeometries(filename string) (map[string]analyzer.Geometry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &analyzer.ErrInputMissing{Filename: filename, Err: err}
	}
	var tables map[string]analyzer.Geometry
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("decoding geometry file %s: %w", filename, err)
	}
	for name, geo := range tables {
		geo.Name = name
		tables[name] = geo
	}
	return tables, nil
}

// LoadGeometry returns the named table of a geometry file, prepared.
func LoadGeometry(filename string, name string) (analyzer.Geometry, error) {
	tables, err := LoadGeometries(filename)
	if err != nil {
		return analyzer.Geometry{}, err
	}
	geo, ok := tables[name]
	if !ok {
		names := analyzer.SortedKeys(tables)
		return analyzer.Geometry{}, fmt.Errorf("geometry %q not in %s (have %v): %w",
			name, filename, names, analyzer.ErrInvalidGeometry)
	}
	return geo.Prepare()
}
