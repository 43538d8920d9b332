package export

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sdifrance/gorap/rap"
)

const reportTimeLayout = "2006-01-02 15:04:05"

var heading = color.New(color.FgCyan, color.Bold)

// WriteReport prints the management part of doc followed by the per
// observation metadata of its data part.
func WriteReport(w io.Writer, doc *rap.Document) error {
	rw := &reportWriter{w: w}

	comment := doc.Comment()
	rw.heading("Management part - comment")
	rw.printf("    identifier: %s\n", comment.Identifier)
	rw.printf("    version: %s\n", comment.Version)
	rw.printf("    creator comment: %s\n", comment.CreatorComment)

	entries := doc.Entries()
	rw.heading("Management part - data index")
	rw.printf("    observations: %d (%s)\n", len(entries), doc.Interval())
	rw.table(func(tw io.Writer) {
		fmt.Fprintln(tw, "    date-time\telem\tstart-pos\t")
		for _, e := range entries {
			fmt.Fprintf(tw, "    %s\t%d\t0x%X\t\n", e.ObservedAt.Format(reportTimeLayout), e.Element, e.DataStartOffset)
		}
	})

	g := doc.Grid()
	rw.heading("Management part - grid definition")
	rw.printf("    map type: %d\n", g.MapType)
	rw.printf("    northwest latitude: %d (%s)\n", int64(g.StartLatitude), g.StartLatitude)
	rw.printf("    northwest longitude: %d (%s)\n", int64(g.StartLongitude), g.StartLongitude)
	rw.printf("    cell width: %d (%s)\n", int64(g.CellWidth), g.CellWidth)
	rw.printf("    cell height: %d (%s)\n", int64(g.CellHeight), g.CellHeight)
	rw.printf("    cells along a row: %d\n", g.HorizontalCount)
	rw.printf("    rows: %d\n", g.VerticalCount)

	levels := doc.LevelValues()
	rw.heading("Management part - compression")
	rw.printf("    method: %d\n", doc.CompressionMethod())
	rw.printf("    levels: %d\n", len(levels))
	rw.table(func(tw io.Writer) {
		fmt.Fprintln(tw, "    level\tvalue\t")
		for level, v := range levels {
			value := "None"
			if v != rap.MissingValue {
				value = fmt.Sprint(v)
			}
			fmt.Fprintf(tw, "    %d\t%s\t\n", level, value)
		}
	})

	reps := doc.LevelRepetitions()
	rw.printf("    level repetitions: %d\n", len(reps))
	rw.table(func(tw io.Writer) {
		fmt.Fprintln(tw, "    index\tlevel\trepetition\t")
		for i, lr := range reps {
			fmt.Fprintf(tw, "    %d\t%d\t%d\t\n", i, lr.Level, lr.RepeatCode)
		}
	})

	rw.heading("Data part")
	rw.table(func(tw io.Writer) {
		fmt.Fprintln(tw, "    date-time\tcompressed\tradar-status\tstations\t")
		for _, e := range entries {
			fmt.Fprintf(tw, "    %s\t%d\t%s\t%d\t\n", e.ObservedAt.Format(reportTimeLayout), e.CompressedSize, e.RadarStatus, e.StationCount)
		}
	})

	return errors.Wrap(rw.err, "error writing report")
}

// reportWriter keeps the first write error so the report body can be written
// without checking every line.
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

func (rw *reportWriter) heading(s string) {
	if rw.err != nil {
		return
	}
	_, rw.err = heading.Fprintln(rw.w, s)
}

func (rw *reportWriter) table(rows func(tw io.Writer)) {
	if rw.err != nil {
		return
	}
	tw := tabwriter.NewWriter(rw.w, 0, 0, 2, ' ', 0)
	rows(tw)
	rw.err = tw.Flush()
}
