// Package gorap reads RAP precipitation analysis files into memory.
//
// It is a convenience layer over package rap, which decodes one observation
// at a time without holding the grid in memory.
package gorap

import (
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/sdifrance/gorap/rap"
)

// RAP is one observation of a RAP file with every cell decoded.
type RAP struct {
	ObservedAt   time.Time
	Element      uint16
	RadarStatus  rap.RadarStatus
	StationCount uint32
	Values       []Value
}

// Value is one cell of an observation.
type Value struct {
	Longitude float64
	Latitude  float64
	// Value is the precipitation in millimetres; it is meaningful only when
	// Valid is set.
	Value float32
	Valid bool
}

// ReadFile opens the RAP file at path and decodes every observation it
// records, in file order.
func ReadFile(path string) ([]RAP, error) {
	doc, err := rap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", path)
	}
	return ReadDocument(doc)
}

// Read decodes every observation of a RAP file held in memory.
func Read(data []byte) ([]RAP, error) {
	doc, err := rap.Read(data)
	if err != nil {
		return nil, err
	}
	return ReadDocument(doc)
}

// ReadDocument decodes every observation recorded in doc.
func ReadDocument(doc *rap.Document) ([]RAP, error) {
	entries := doc.Entries()
	out := make([]RAP, 0, len(entries))
	for _, e := range entries {
		values, err := readValues(doc, e)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode observation %s", e.ObservedAt.Format(time.DateTime))
		}
		out = append(out, RAP{
			ObservedAt:   e.ObservedAt,
			Element:      e.Element,
			RadarStatus:  e.RadarStatus,
			StationCount: e.StationCount,
			Values:       values,
		})
		glog.V(1).Infof("decoded %d cells observed at %v", len(values), e.ObservedAt)
	}
	return out, nil
}

func readValues(doc *rap.Document, e rap.DataIndexEntry) ([]Value, error) {
	it, err := doc.Decode(e)
	if err != nil {
		return nil, err
	}
	values := make([]Value, 0, doc.Grid().Cells())
	for lv, err := range it.All() {
		if err != nil {
			return nil, err
		}
		mm, ok := lv.Millimetres()
		values = append(values, Value{
			Longitude: lv.Longitude,
			Latitude:  lv.Latitude,
			Value:     float32(mm),
			Valid:     ok,
		})
	}
	return values, nil
}
