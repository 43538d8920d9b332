package rap

import (
	"errors"
	"io"
	"iter"
	"time"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"
	"github.com/sdifrance/gorap/microdegree"
	"github.com/sdifrance/gorap/rapio"
)

// LocationValue is one decoded grid cell.
type LocationValue struct {
	Latitude  float64
	Longitude float64
	// Value is the measurement in tenths of a millimetre. It is meaningful
	// only when Valid is set.
	Value uint16
	// Valid is false for cells without a measurement.
	Valid bool
}

// Millimetres returns the measurement in millimetres and whether there is
// one.
func (lv LocationValue) Millimetres() (float64, bool) {
	if !lv.Valid {
		return 0, false
	}
	return float64(lv.Value) / 10, true
}

// ValueIterator expands the run-length token stream of one observation into
// cells, northwest corner first, row by row.
//
// A ValueIterator is a single forward pass over its own cursor on the file.
// It borrows the level tables of the Document that created it.
type ValueIterator struct {
	f     io.Closer
	r     *rapio.Reader
	entry DataIndexEntry
	grid  GridDefinition

	levels      []uint16
	repetitions []LevelRepetition

	consumed int64 // token bytes read so far
	lat, lon microdegree.Angle
	column   int
	emitted  int

	value     uint16
	remaining int // cells left in the current run

	done bool
}

// Values starts a decode session for the observation recorded at t.
func (d *Document) Values(t time.Time) (*ValueIterator, error) {
	e, err := d.Lookup(t)
	if err != nil {
		return nil, err
	}
	return d.Decode(e)
}

// Decode starts a decode session for e, which must be an entry of d. The
// caller must Close the iterator, or run All to completion.
func (d *Document) Decode(e DataIndexEntry) (*ValueIterator, error) {
	f, err := d.open()
	if err != nil {
		return nil, err
	}
	r := rapio.NewReader(f)
	// The token stream follows the 4 byte compressed size.
	if err := r.Seek(int64(e.DataStartOffset) + 4); err != nil {
		f.Close()
		return nil, ioErr("compressed data", err)
	}
	glog.V(1).Infof("decoding %s: %d token bytes at offset %d", e.ObservedAt.Format(civilLayout), e.CompressedSize, e.DataStartOffset)
	return &ValueIterator{
		f:           f,
		r:           r,
		entry:       e,
		grid:        d.grid,
		levels:      d.compression.LevelValues,
		repetitions: d.repetitions,
		lat:         d.grid.StartLatitude,
		lon:         d.grid.StartLongitude,
	}, nil
}

// Entry returns the data index entry being decoded.
func (it *ValueIterator) Entry() DataIndexEntry {
	return it.entry
}

// Next returns the next cell. It returns io.EOF once every cell has been
// produced. Any other error is fatal: cells returned before it remain valid
// and every later call returns io.EOF.
//
// The stream must expand to exactly the number of cells in the grid. A stream
// that ends before the last cell does not stop silently; it ends with an
// error matching ErrCellCount, as does one that runs past the last cell.
func (it *ValueIterator) Next() (LocationValue, error) {
	if it.done {
		return LocationValue{}, io.EOF
	}
	if it.remaining == 0 {
		if it.consumed >= int64(it.entry.CompressedSize) {
			it.finish()
			if it.emitted != it.grid.Cells() {
				return LocationValue{}, pkgerrors.Wrapf(ErrCellCount, "token stream ended after %d of %d cells", it.emitted, it.grid.Cells())
			}
			return LocationValue{}, io.EOF
		}
		if err := it.readToken(); err != nil {
			it.finish()
			return LocationValue{}, pkgerrors.Wrapf(err, "token at byte %d of %d", it.consumed, it.entry.CompressedSize)
		}
	}
	if it.emitted >= it.grid.Cells() {
		it.finish()
		return LocationValue{}, pkgerrors.Wrapf(ErrCellCount, "token stream holds more than %d cells", it.grid.Cells())
	}

	lv := LocationValue{
		Latitude:  it.lat.Degrees(),
		Longitude: it.lon.Degrees(),
		Value:     it.value,
		Valid:     it.value != MissingValue,
	}
	it.step()
	it.remaining--
	return lv, nil
}

// All returns the remaining cells as a sequence. The sequence stops after the
// first error and closes the iterator when it returns.
func (it *ValueIterator) All() iter.Seq2[LocationValue, error] {
	return func(yield func(LocationValue, error) bool) {
		defer it.Close()
		for {
			lv, err := it.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(lv, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the iterator's cursor. It is safe to call more than once.
func (it *ValueIterator) Close() error {
	it.done = true
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}

func (it *ValueIterator) finish() {
	if err := it.Close(); err != nil {
		glog.Warningf("error closing data record cursor: %v", err)
	}
}

// step moves to the next cell, wrapping to the west edge of the next row
// south at the end of a row.
func (it *ValueIterator) step() {
	it.emitted++
	it.lon += it.grid.CellWidth
	it.column++
	if it.column >= int(it.grid.HorizontalCount) {
		it.lat -= it.grid.CellHeight
		it.lon = it.grid.StartLongitude
		it.column = 0
	}
}

// readToken decodes one run-length token.
//
//	0xxxxxxx           level-repetition table entry x, RepeatCode+2 cells
//	110lllll rrrrrrrr  level l, r+2 cells
//	10llllll           level l, 1 cell
//	11111110 llllllll  level l, 1 cell
func (it *ValueIterator) readToken() error {
	b, err := it.readByte()
	if err != nil {
		return err
	}
	switch {
	case b&0x80 == 0:
		if int(b) >= len(it.repetitions) {
			return pkgerrors.Wrapf(ErrLevelOutOfRange, "level-repetition index %d, table has %d entries", b, len(it.repetitions))
		}
		lr := it.repetitions[b]
		if err := it.setLevel(int(lr.Level)); err != nil {
			return err
		}
		it.remaining = lr.Repeat()
	case b&0xE0 == 0xC0:
		if err := it.setLevel(int(b & 0x1F)); err != nil {
			return err
		}
		r, err := it.readByte()
		if err != nil {
			return err
		}
		it.remaining = int(r) + 2
	case b&0xC0 == 0x80:
		if err := it.setLevel(int(b & 0x3F)); err != nil {
			return err
		}
		it.remaining = 1
	case b == 0xFE:
		level, err := it.readByte()
		if err != nil {
			return err
		}
		if err := it.setLevel(int(level)); err != nil {
			return err
		}
		it.remaining = 1
	default:
		return pkgerrors.Wrapf(ErrMalformedToken, "leading byte 0x%02X", b)
	}
	return nil
}

func (it *ValueIterator) setLevel(level int) error {
	if level >= len(it.levels) {
		return pkgerrors.Wrapf(ErrLevelOutOfRange, "level %d, table has %d levels", level, len(it.levels))
	}
	it.value = it.levels[level]
	return nil
}

func (it *ValueIterator) readByte() (byte, error) {
	b, err := it.r.ReadUint8()
	if err != nil {
		return 0, ioErr("compressed data", err)
	}
	it.consumed++
	return b, nil
}
