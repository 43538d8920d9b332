package rap

import (
	"bytes"
	"errors"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"
	"github.com/sdifrance/gorap/microdegree"
	"github.com/sdifrance/gorap/rapio"
)

const (
	// MapTypeLatLon is the only supported map type, a plain latitude/longitude
	// grid.
	MapTypeLatLon = 1

	// CompressionRunLength is the only supported compression method.
	CompressionRunLength = 1

	// MissingValue is the level value meaning "no measurement".
	MissingValue = 0xFFFF

	// MaxLevelRepetitions is the largest level-repetition table a 7-bit token
	// index can address.
	MaxLevelRepetitions = 128
)

var commentTrailer = []byte{0x0d, 0x0a, 0x00}

// CommentHeader is the free-text block at the start of a RAP file.
type CommentHeader struct {
	Identifier     string
	Version        string
	CreatorComment string
}

func readCommentHeader(r *rapio.Reader) (CommentHeader, error) {
	/*
		Bytes	Content
		6	identifier
		5	version
		66	creator comment
		3	0D 0A 00
	*/
	var c CommentHeader
	var err error
	if c.Identifier, err = readString(r, 6, "comment identifier"); err != nil {
		return c, err
	}
	if c.Version, err = readString(r, 5, "comment version"); err != nil {
		return c, err
	}
	if c.CreatorComment, err = readString(r, 66, "creator comment"); err != nil {
		return c, err
	}
	trailer, err := r.ReadBytes(len(commentTrailer))
	if err != nil {
		return c, ioErr("comment trailer", err)
	}
	if !bytes.Equal(trailer, commentTrailer) {
		return c, pkgerrors.Wrapf(ErrInvalidTrailer, "got % x", trailer)
	}
	glog.V(1).Infof("read comment header %+v", c)
	return c, nil
}

// GridDefinition describes the latitude/longitude grid the cells lie on.
//
// The first cell is the northwest corner. Cells run west to east along a row;
// at the east edge the next cell is the west edge of the row one cell south.
type GridDefinition struct {
	MapType uint16
	// StartLatitude and StartLongitude locate the northwest cell.
	StartLatitude, StartLongitude microdegree.Angle
	CellWidth, CellHeight         microdegree.Angle
	// HorizontalCount is the number of cells in a row, VerticalCount the
	// number of rows.
	HorizontalCount, VerticalCount uint16
}

// Cells returns the number of cells in the grid.
func (g GridDefinition) Cells() int {
	return int(g.HorizontalCount) * int(g.VerticalCount)
}

// LastLatitude returns the latitude of the southernmost row.
func (g GridDefinition) LastLatitude() microdegree.Angle {
	if g.VerticalCount == 0 {
		return g.StartLatitude
	}
	return g.StartLatitude - microdegree.Angle(g.VerticalCount-1)*g.CellHeight
}

// LastLongitude returns the longitude of the easternmost column.
func (g GridDefinition) LastLongitude() microdegree.Angle {
	if g.HorizontalCount == 0 {
		return g.StartLongitude
	}
	return g.StartLongitude + microdegree.Angle(g.HorizontalCount-1)*g.CellWidth
}

func readGridDefinition(r *rapio.Reader) (GridDefinition, error) {
	/*
		Bytes	Content
		2	reserved
		2	map type
		4	latitude of first cell
		4	longitude of first cell
		4	cell width
		4	cell height
		2	cells along a row
		2	rows
		16	reserved
	*/
	var g GridDefinition
	if err := r.Skip(2); err != nil {
		return g, ioErr("grid definition reserved bytes", err)
	}
	var err error
	if g.MapType, err = r.ReadUint16(); err != nil {
		return g, ioErr("map type", err)
	}
	if g.MapType != MapTypeLatLon {
		return g, pkgerrors.Wrapf(ErrUnsupportedMapType, "map type %d, want %d", g.MapType, MapTypeLatLon)
	}
	angles := []struct {
		op  string
		dst *microdegree.Angle
	}{
		{"start latitude", &g.StartLatitude},
		{"start longitude", &g.StartLongitude},
		{"cell width", &g.CellWidth},
		{"cell height", &g.CellHeight},
	}
	for _, a := range angles {
		v, err := r.ReadUint32()
		if err != nil {
			return g, ioErr(a.op, err)
		}
		*a.dst = microdegree.FromRaw(v)
	}
	if g.HorizontalCount, err = r.ReadUint16(); err != nil {
		return g, ioErr("horizontal cell count", err)
	}
	if g.VerticalCount, err = r.ReadUint16(); err != nil {
		return g, ioErr("vertical cell count", err)
	}
	if err := r.Skip(16); err != nil {
		return g, ioErr("grid definition trailing reserved bytes", err)
	}
	glog.V(1).Infof("read grid definition %+v", g)
	return g, nil
}

// CompressionTable maps a level to the measurement it stands for, in tenths
// of a millimetre.
type CompressionTable struct {
	Method      uint16
	LevelValues []uint16
}

func readCompressionTable(r *rapio.Reader) (CompressionTable, error) {
	var c CompressionTable
	var err error
	if c.Method, err = r.ReadUint16(); err != nil {
		return c, ioErr("compression method", err)
	}
	if c.Method != CompressionRunLength {
		return c, pkgerrors.Wrapf(ErrUnsupportedCompression, "compression method %d, want %d", c.Method, CompressionRunLength)
	}
	count, err := r.ReadUint16()
	if err != nil {
		return c, ioErr("level count", err)
	}
	c.LevelValues = make([]uint16, count)
	for i := range c.LevelValues {
		if c.LevelValues[i], err = r.ReadUint16(); err != nil {
			return c, ioErr("level value", err)
		}
	}
	glog.V(1).Infof("read compression table with %d levels", count)
	return c, nil
}

// LevelRepetition is one entry of the level-repetition table. The run it
// encodes is RepeatCode+2 cells long.
type LevelRepetition struct {
	Level      uint8
	RepeatCode uint8
}

// Repeat returns the number of cells the entry expands to.
func (lr LevelRepetition) Repeat() int {
	return int(lr.RepeatCode) + 2
}

func readLevelRepetitions(r *rapio.Reader) ([]LevelRepetition, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, ioErr("level-repetition count", err)
	}
	if count > MaxLevelRepetitions {
		return nil, pkgerrors.Wrapf(ErrTableTooLarge, "%d entries, at most %d", count, MaxLevelRepetitions)
	}
	out := make([]LevelRepetition, count)
	for i := range out {
		if out[i].Level, err = r.ReadUint8(); err != nil {
			return nil, ioErr("level-repetition level", err)
		}
		if out[i].RepeatCode, err = r.ReadUint8(); err != nil {
			return nil, ioErr("level-repetition repeat code", err)
		}
	}
	glog.V(1).Infof("read level-repetition table with %d entries", count)
	return out, nil
}

func readString(r *rapio.Reader, n int, op string) (string, error) {
	s, err := r.ReadString(n)
	if errors.Is(err, rapio.ErrInvalidText) {
		return "", pkgerrors.Wrapf(ErrInvalidText, "%s: %v", op, err)
	}
	if err != nil {
		return "", ioErr(op, err)
	}
	return s, nil
}
