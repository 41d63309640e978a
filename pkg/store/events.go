package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	hdf5 "github.com/jmbenlloch/go-hdf5"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

const rawGroup = "RAWData"

type eventHDF5 struct {
	evt_number   int32
	quality_flag int32
	first_hit    int64
	n_hits       int32
}

type hitHDF5 struct {
	channel   int32
	timestamp float64
}

// EventStore reads raw events from Scan<id>_HV<point>_DAQ.h5 files in Dir.
type EventStore struct {
	Dir string
}

func (s EventStore) path(scanID int, hvPoint int) string {
	return filepath.Join(s.Dir, DAQFileName(scanID, hvPoint))
}

// HVPoints lists the HV points with a raw data file.
func (s EventStore) HVPoints(scanID int) ([]int, error) {
	files, err := scanFiles(s.Dir, scanID, "DAQ.h5")
	if err != nil {
		return nil, err
	}
	return hvPointsOf(files)
}

// ReadEvents loads every event of the file, in storage order.
func (s EventStore) ReadEvents(scanID int, hvPoint int) ([]analyzer.RawEvent, error) {
	return ReadEventFile(s.path(scanID, hvPoint))
}

// ReadEventFile loads the events of one raw data file.
func ReadEventFile(filename string) ([]analyzer.RawEvent, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, &analyzer.ErrInputMissing{Filename: filename, Err: err}
	}
	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	group, err := file.OpenGroup(rawGroup)
	if err != nil {
		return nil, fmt.Errorf("opening group %s in %s: %w", rawGroup, filename, err)
	}
	defer group.Close()

	headers, err := readTable[eventHDF5](group, "events")
	if err != nil {
		return nil, err
	}
	hits, err := readTable[hitHDF5](group, "hits")
	if err != nil {
		return nil, err
	}

	events := make([]analyzer.RawEvent, len(headers))
	for i, h := range headers {
		first, n := int(h.first_hit), int(h.n_hits)
		if first < 0 || n < 0 || first+n > len(hits) {
			return nil, fmt.Errorf("%s: event %d references hits [%d, %d) of %d",
				filename, h.evt_number, first, first+n, len(hits))
		}
		event := analyzer.RawEvent{
			EventID:     int(h.evt_number),
			QualityFlag: int(h.quality_flag),
			Channels:    make([]int, n),
			Timestamps:  make([]float64, n),
		}
		for j, hit := range hits[first : first+n] {
			event.Channels[j] = int(hit.channel)
			event.Timestamps[j] = hit.timestamp
		}
		events[i] = event
	}
	return events, nil
}

// EventWriter stores raw events in the layout read by EventStore.
type EventWriter struct {
	File        *hdf5.File
	Filename    string
	RawGroup    *hdf5.Group
	EventTable  *hdf5.Dataset
	HitTable    *hdf5.Dataset
	EvtCounter  int
	HitCounter  int
	Compression int
}

func NewEventWriter(filename string, compression int) (*EventWriter, error) {
	w := &EventWriter{Filename: filename, Compression: compression}
	var err error
	if w.File, err = createFile(filename); err != nil {
		return nil, err
	}
	if w.RawGroup, err = createGroup(w.File, rawGroup); err != nil {
		return nil, errors.Join(err, w.File.Close())
	}
	if w.EventTable, err = createTable(w.RawGroup, "events", eventHDF5{}, compression); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	if w.HitTable, err = createTable(w.RawGroup, "hits", hitHDF5{}, compression); err != nil {
		return nil, errors.Join(err, w.Close())
	}
	return w, nil
}

// WriteEvent appends one event and its hits.
func (w *EventWriter) WriteEvent(event analyzer.RawEvent) error {
	n := min(len(event.Channels), len(event.Timestamps))
	hits := make([]hitHDF5, n)
	for i := range hits {
		hits[i] = hitHDF5{channel: int32(event.Channels[i]), timestamp: event.Timestamps[i]}
	}
	header := []eventHDF5{{
		evt_number:   int32(event.EventID),
		quality_flag: int32(event.QualityFlag),
		first_hit:    int64(w.HitCounter),
		n_hits:       int32(n),
	}}
	if err := writeArrayToTable(w.HitTable, &hits, w.HitCounter); err != nil {
		return fmt.Errorf("writing hits of event %d: %w", event.EventID, err)
	}
	if err := writeArrayToTable(w.EventTable, &header, w.EvtCounter); err != nil {
		return fmt.Errorf("writing event %d: %w", event.EventID, err)
	}
	w.HitCounter += n
	w.EvtCounter++
	return nil
}

func (w *EventWriter) Close() error {
	var errs []error
	if w.HitTable != nil {
		errs = append(errs, w.HitTable.Close())
	}
	if w.EventTable != nil {
		errs = append(errs, w.EventTable.Close())
	}
	if w.RawGroup != nil {
		errs = append(errs, w.RawGroup.Close())
	}
	if w.File != nil {
		errs = append(errs, w.File.Close())
	}
	return errors.Join(errs...)
}

// WriteEventFile writes events to a new raw data file.
func WriteEventFile(filename string, events []analyzer.RawEvent) error {
	w, err := NewEventWriter(filename, 0)
	if err != nil {
		return err
	}
	for _, event := range events {
		if err := w.WriteEvent(event); err != nil {
			return errors.Join(err, w.Close())
		}
	}
	return w.Close()
}
