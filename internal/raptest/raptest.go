// Package raptest builds synthetic RAP files for tests.
package raptest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Record is one observation of a synthetic file.
type Record struct {
	ObservedAt  time.Time
	Element     uint16
	Tokens      []byte
	RadarStatus uint64
	Stations    uint32
	// CompressedSize overrides len(Tokens) when non-zero.
	CompressedSize uint32
}

// File describes a synthetic RAP file. Zero values of the overridable fields
// select the valid default.
type File struct {
	Identifier, Version, Comment string
	// Trailer replaces the 0D 0A 00 comment trailer when non-nil.
	Trailer []byte
	// Count replaces the number of observations written to the index header
	// when non-zero. The entries written are always Records.
	Count   uint32
	Records []Record

	MapType                                   uint16
	StartLat, StartLon, CellWidth, CellHeight uint32
	HorizontalCount, VerticalCount            uint16
	Compression                               uint16
	LevelValues                               []uint16
	Repetitions                               [][2]uint8
}

// ScenarioTokens decode, with the default tables, to 3 cells of 15, 1 cell of
// 7 and 5 cells of 15.
var ScenarioTokens = []byte{0x05, 0x81, 0xC2, 0x03}

// Day is the date of the default observations.
var Day = time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC)

// Default returns an hourly file on a 3x3 grid whose records all hold
// ScenarioTokens.
func Default() File {
	f := File{
		Identifier:      "JMA",
		Version:         "1.0",
		Comment:         "synthetic analysis",
		MapType:         1,
		StartLat:        36_000_000,
		StartLon:        135_000_000,
		CellWidth:       12_500,
		CellHeight:      8_333,
		HorizontalCount: 3,
		VerticalCount:   3,
		Compression:     1,
		LevelValues:     []uint16{0, 7, 15, 0xFFFF},
		Repetitions: [][2]uint8{
			{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}, {3, 0},
		},
	}
	for i := 0; i < 24; i++ {
		f.Records = append(f.Records, Record{
			ObservedAt:  Day.Add(time.Duration(i+1) * time.Hour),
			Element:     1,
			Tokens:      ScenarioTokens,
			RadarStatus: uint64(0xFFFF) << uint(i%8),
			Stations:    uint32(1300 + i),
		})
	}
	return f
}

// Bytes encodes the file.
func (f File) Bytes() []byte {
	le := binary.LittleEndian
	var b bytes.Buffer
	put := func(v any) {
		if err := binary.Write(&b, le, v); err != nil {
			panic(err)
		}
	}

	b.WriteString(pad(f.Identifier, 6))
	b.WriteString(pad(f.Version, 5))
	b.WriteString(pad(f.Comment, 66))
	trailer := f.Trailer
	if trailer == nil {
		trailer = []byte{0x0d, 0x0a, 0x00}
	}
	b.Write(trailer)

	count := f.Count
	if count == 0 {
		count = uint32(len(f.Records))
	}
	put(count)

	headerSize := b.Len() + 20*len(f.Records) + 40 + 4 + 2*len(f.LevelValues) + 2 + 2*len(f.Repetitions)
	offset := uint32(headerSize)
	var data bytes.Buffer
	for _, r := range f.Records {
		put(uint16(r.ObservedAt.Year()))
		put(uint8(r.ObservedAt.Month()))
		put(uint8(r.ObservedAt.Day()))
		put(uint8(r.ObservedAt.Hour()))
		put(uint8(r.ObservedAt.Minute()))
		put(r.Element)
		b.Write(make([]byte, 8))
		put(offset + uint32(data.Len()))

		size := r.CompressedSize
		if size == 0 {
			size = uint32(len(r.Tokens))
		}
		binary.Write(&data, le, size)
		data.Write(r.Tokens)
		binary.Write(&data, le, r.RadarStatus)
		binary.Write(&data, le, r.Stations)
	}

	b.Write(make([]byte, 2))
	put(f.MapType)
	put(f.StartLat)
	put(f.StartLon)
	put(f.CellWidth)
	put(f.CellHeight)
	put(f.HorizontalCount)
	put(f.VerticalCount)
	b.Write(make([]byte, 16))

	put(f.Compression)
	put(uint16(len(f.LevelValues)))
	put(f.LevelValues)

	put(uint16(len(f.Repetitions)))
	for _, lr := range f.Repetitions {
		b.Write(lr[:])
	}

	b.Write(data.Bytes())
	return b.Bytes()
}

// WriteFile writes the encoded file into a temporary directory and returns its
// path.
func (f File) WriteFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "J1991101.RAP")
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatalf("error writing %s: %v", path, err)
	}
	return path
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + string(bytes.Repeat([]byte{' '}, n-len(s)))
}
