// Package rap contains a reader for RAP files, the gridded precipitation
// analysis produced by the Japan Meteorological Agency from radar and rain
// gauge observations.
//
// A file holds one day of observations on a latitude/longitude grid. It
// starts with a management part (comment, data index, grid definition,
// compression table and level-repetition table) followed by one run-length
// compressed data record per observation.
//
// All integers are little-endian.
package rap

import (
	"bytes"
	"io"
	"os"
	"slices"
	"time"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"
	"github.com/sdifrance/gorap/rapio"
)

// Opener returns a fresh cursor positioned at the start of a RAP file. Each
// decode session calls it once so that sessions never share a cursor.
type Opener func() (io.ReadSeekCloser, error)

// Document is a parsed RAP management part. It is immutable; the tables it
// hands to decode sessions are never modified after construction.
type Document struct {
	open Opener

	comment     CommentHeader
	index       *dataIndex
	grid        GridDefinition
	compression CompressionTable
	repetitions []LevelRepetition
}

// Open parses the RAP file at path.
func Open(path string) (*Document, error) {
	return NewDocument(func() (io.ReadSeekCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, ioErr(path, err)
		}
		return f, nil
	})
}

// Read parses a RAP file held in memory. The slice must not be modified while
// the Document is in use.
func Read(data []byte) (*Document, error) {
	return NewDocument(func() (io.ReadSeekCloser, error) {
		return nopCloser{bytes.NewReader(data)}, nil
	})
}

// NewDocument parses the management part of the file returned by open. Any
// error aborts parsing; no partial Document is returned.
func NewDocument(open Opener) (*Document, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := rapio.NewReader(f)
	doc := &Document{open: open}

	if doc.comment, err = readCommentHeader(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "error parsing comment")
	}
	if doc.index, err = readDataIndex(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "error parsing data index")
	}
	if doc.grid, err = readGridDefinition(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "error parsing grid definition")
	}
	if doc.compression, err = readCompressionTable(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "error parsing compression table")
	}
	if doc.repetitions, err = readLevelRepetitions(r); err != nil {
		return nil, pkgerrors.Wrapf(err, "error parsing level-repetition table")
	}
	glog.V(1).Infof("management part ends at byte offset %d", r.Pos())
	return doc, nil
}

// Comment returns the comment block.
func (d *Document) Comment() CommentHeader {
	return d.comment
}

// Interval returns the observation interval of the file.
func (d *Document) Interval() Interval {
	return d.index.interval
}

// Entries returns the data index in file order.
func (d *Document) Entries() []DataIndexEntry {
	return slices.Clone(d.index.entries)
}

// Lookup returns the data index entry recorded for t. Only the wall-clock
// fields of t are compared. The error matches ErrNotFound when no entry has
// exactly that date-time.
func (d *Document) Lookup(t time.Time) (DataIndexEntry, error) {
	return d.index.lookup(t)
}

// Grid returns the grid definition.
func (d *Document) Grid() GridDefinition {
	return d.grid
}

// CompressionMethod returns the compression method code.
func (d *Document) CompressionMethod() uint16 {
	return d.compression.Method
}

// LevelValues returns a copy of the value of each level, in tenths of a
// millimetre. MissingValue marks a level without a measurement.
func (d *Document) LevelValues() []uint16 {
	return slices.Clone(d.compression.LevelValues)
}

// LevelRepetitions returns a copy of the level-repetition table.
func (d *Document) LevelRepetitions() []LevelRepetition {
	return slices.Clone(d.repetitions)
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }
