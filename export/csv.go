// Package export writes decoded RAP observations as text: CSV with an OGC
// well-known-text footprint per cell, and a human readable report of a file.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sdifrance/gorap/rap"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"longitude", "latitude", "value", "geom"}

// WriteCSV writes one row per cell: longitude, latitude, value in tenths of a
// millimetre (empty when missing) and the cell footprint as a WKT polygon.
// cellWidth and cellHeight are in degrees. A decode error stops the export
// and is returned; rows written before it stay written.
func WriteCSV(w io.Writer, cells iter.Seq2[rap.LocationValue, error], cellWidth, cellHeight float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return errors.Wrap(err, "error writing CSV header")
	}
	rows := 0
	for lv, err := range cells {
		if err != nil {
			cw.Flush()
			return errors.Wrapf(err, "error decoding cell %d", rows)
		}
		value := ""
		if lv.Valid {
			value = strconv.Itoa(int(lv.Value))
		}
		record := []string{
			formatDegrees(lv.Longitude),
			formatDegrees(lv.Latitude),
			value,
			CellPolygon(lv.Longitude, lv.Latitude, cellWidth, cellHeight),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "error writing CSV row %d", rows)
		}
		rows++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "error flushing CSV")
	}
	glog.V(1).Infof("wrote %d CSV rows", rows)
	return nil
}

// CellPolygon returns the footprint of a cell centred on (longitude,
// latitude) as a closed WKT polygon, starting at the top left corner and
// running clockwise.
func CellPolygon(longitude, latitude, width, height float64) string {
	left := formatDegrees(longitude - width/2)
	right := formatDegrees(longitude + width/2)
	top := formatDegrees(latitude + height/2)
	bottom := formatDegrees(latitude - height/2)
	return fmt.Sprintf("POLYGON((%s %s,%s %s,%s %s,%s %s,%s %s))",
		left, top, right, top, right, bottom, left, bottom, left, top)
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FileName returns the name of the CSV file for an observation, for example
// 19910101T010000.csv.
func FileName(observedAt time.Time, compressed bool) string {
	name := observedAt.Format("20060102T150405") + ".csv"
	if compressed {
		name += ".gz"
	}
	return name
}

// Create opens path for writing, truncating it. When compressed is set the
// output is gzip compressed. Close flushes and closes every layer.
func Create(path string, compressed bool) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating %s", path)
	}
	out := &outputFile{f: f}
	var w io.Writer = f
	if compressed {
		out.gz = gzip.NewWriter(f)
		w = out.gz
	}
	out.bw = bufio.NewWriter(w)
	return out, nil
}

type outputFile struct {
	f  *os.File
	gz *gzip.Writer
	bw *bufio.Writer
}

func (o *outputFile) Write(p []byte) (int, error) {
	return o.bw.Write(p)
}

func (o *outputFile) Close() error {
	err := o.bw.Flush()
	if o.gz != nil {
		if gzErr := o.gz.Close(); err == nil {
			err = gzErr
		}
	}
	if closeErr := o.f.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrapf(err, "error closing %s", o.f.Name())
}
