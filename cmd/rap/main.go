// Command rap inspects RAP precipitation analysis files and exports their
// observations as CSV.
//
// Usage:
//
//	rap info J1991101.RAP
//	rap export J1991101.RAP -o out --at "1991-01-01 13:00" --gzip
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/sdifrance/gorap/export"
	"github.com/sdifrance/gorap/rap"
	"github.com/spf13/cobra"
)

// outputDirEnv names the environment variable holding the default export
// directory.
const outputDirEnv = "RAP_OUTPUT_DIR"

// Layouts accepted by --at, interpreted as the file's civil time.
var atLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"200601021504",
}

func main() {
	root := newRootCommand(os.Stdout)
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	if err := root.Execute(); err != nil {
		glog.Exitf("rap: %v", err)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "rap",
		Short:         "Inspect and export RAP precipitation analysis files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// glog reads its settings from the standard flag set.
			return flag.CommandLine.Parse(nil)
		},
	}
	root.SetOut(stdout)
	root.AddCommand(newInfoCommand(), newExportCommand())
	return root
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Print the management part and per observation metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rap.Open(args[0])
			if err != nil {
				return err
			}
			return export.WriteReport(cmd.OutOrStdout(), doc)
		},
	}
}

type exportOptions struct {
	outputDir string
	at        string
	gzip      bool
}

func newExportCommand() *cobra.Command {
	opts := exportOptions{outputDir: os.Getenv(outputDirEnv)}
	if opts.outputDir == "" {
		opts.outputDir = "."
	}
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write observations as CSV with a WKT footprint per cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", opts.outputDir, "directory the CSV files are written to (default from $"+outputDirEnv+")")
	cmd.Flags().StringVar(&opts.at, "at", "", `export only the observation recorded at this time, e.g. "1991-01-01 13:00"`)
	cmd.Flags().BoolVar(&opts.gzip, "gzip", false, "gzip compress the CSV files")
	return cmd
}

func runExport(stdout io.Writer, path string, opts exportOptions) error {
	doc, err := rap.Open(path)
	if err != nil {
		return err
	}

	entries := doc.Entries()
	if opts.at != "" {
		at, err := parseAt(opts.at)
		if err != nil {
			return err
		}
		e, err := doc.Lookup(at)
		if err != nil {
			return err
		}
		entries = []rap.DataIndexEntry{e}
	}

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return errors.Wrapf(err, "error creating output directory %s", opts.outputDir)
	}
	grid := doc.Grid()
	done := color.New(color.FgGreen)
	for _, e := range entries {
		out := filepath.Join(opts.outputDir, export.FileName(e.ObservedAt, opts.gzip))
		if err := exportObservation(doc, e, out, grid.CellWidth.Degrees(), grid.CellHeight.Degrees(), opts.gzip); err != nil {
			return err
		}
		glog.V(1).Infof("exported %v to %s", e.ObservedAt, out)
		if _, err := done.Fprintf(stdout, "wrote %s\n", out); err != nil {
			return err
		}
	}
	return nil
}

func exportObservation(doc *rap.Document, e rap.DataIndexEntry, path string, cellWidth, cellHeight float64, compressed bool) (err error) {
	it, err := doc.Decode(e)
	if err != nil {
		return err
	}
	defer it.Close()

	w, err := export.Create(path, compressed)
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

func parseAt(s string) (time.Time, error) {
	for _, layout := range atLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --at %q: want a time such as %q", s, atLayouts[0])
}
