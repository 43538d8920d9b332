// Program example prints the management part of a RAP file and writes every
// observation it records as CSV.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/sdifrance/gorap/export"
	"github.com/sdifrance/gorap/rap"
)

var (
	input  = flag.String("input", "J1991101.RAP", "Path to the input RAP file.")
	output = flag.String("output", os.TempDir(), "Directory the CSV files are written to.")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		glog.Exitf("got fatal error: %v", err)
	}
}

func run(ctx context.Context) error {
	doc, err := rap.Open(*input)
	if err != nil {
		return fmt.Errorf("error parsing RAP file: %w", err)
	}

	var report bytes.Buffer
	if err := export.WriteReport(&report, doc); err != nil {
		return err
	}
	glog.Infof("management part of %s:\n%s", *input, report.String())

	grid := doc.Grid()
	for _, e := range doc.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(*output, export.FileName(e.ObservedAt, false))
		if err := writeObservation(doc, e, path, grid.CellWidth.Degrees(), grid.CellHeight.Degrees()); err != nil {
			return err
		}
		glog.Infof("wrote %s", path)
	}
	return nil
}

func writeObservation(doc *rap.Document, e rap.DataIndexEntry, path string, cellWidth, cellHeight float64) (err error) {
	it, err := doc.Decode(e)
	if err != nil {
		return err
	}
	defer it.Close()

	w, err := export.Create(path, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
	}()
	return export.WriteCSV(w, it.All(), cellWidth, cellHeight)
}
