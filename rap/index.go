package rap

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	pkgerrors "github.com/pkg/errors"
	"github.com/sdifrance/gorap/rapio"
)

// Interval is the number of observations recorded in one file, which also
// fixes the time between them.
type Interval uint32

const (
	// Hourly files hold 24 observations, one on each hour.
	Hourly Interval = 24
	// HalfHourly files hold 48 observations, one every 30 minutes.
	HalfHourly Interval = 48
)

// Duration returns the time between two consecutive observations.
func (i Interval) Duration() time.Duration {
	switch i {
	case Hourly:
		return time.Hour
	case HalfHourly:
		return 30 * time.Minute
	default:
		return 0
	}
}

func (i Interval) String() string {
	switch i {
	case Hourly:
		return "hourly"
	case HalfHourly:
		return "half-hourly"
	default:
		return fmt.Sprintf("Interval(%d)", uint32(i))
	}
}

// RadarStatus is the bitmask of radars that were operating for an
// observation.
type RadarStatus uint64

// Bit reports whether bit i (0 is the least significant) is set.
func (s RadarStatus) Bit(i uint) bool {
	if i >= 64 {
		return false
	}
	return s&(1<<i) != 0
}

func (s RadarStatus) String() string {
	return fmt.Sprintf("0x%016X", uint64(s))
}

// DataIndexEntry locates and describes one observation.
type DataIndexEntry struct {
	// ObservedAt is the civil date-time of the observation. It carries no
	// zone; it is stored in time.UTC only so that it can be formatted.
	//
	// An observation covering 00:00 to 01:00 is recorded as 01:00, so the
	// entries of an hourly file run from 01:00 to 00:00 of the next day.
	ObservedAt time.Time
	Element    uint16

	// DataStartOffset is the file offset of the observation's data record.
	DataStartOffset uint32
	// CompressedSize is the length of the run-length token stream, in bytes.
	CompressedSize uint32
	RadarStatus    RadarStatus
	// StationCount is the number of rain gauge stations used in the analysis.
	StationCount uint32
}

// dataIndex is the ordered table of observations in a file.
type dataIndex struct {
	interval Interval
	entries  []DataIndexEntry
}

func (idx *dataIndex) lookup(t time.Time) (DataIndexEntry, error) {
	for _, e := range idx.entries {
		if sameCivilTime(e.ObservedAt, t) {
			return e, nil
		}
	}
	return DataIndexEntry{}, pkgerrors.Wrapf(ErrNotFound, "%s", t.Format(civilLayout))
}

const civilLayout = "2006-01-02 15:04:05"

// sameCivilTime compares wall-clock fields, ignoring the zone of either
// value.
func sameCivilTime(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second() &&
		a.Nanosecond() == b.Nanosecond()
}

func readDataIndex(r *rapio.Reader) (*dataIndex, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, ioErr("number of observations", err)
	}
	interval := Interval(count)
	if interval != Hourly && interval != HalfHourly {
		return nil, pkgerrors.Wrapf(ErrUnsupportedInterval, "%d observations, want %d or %d", count, Hourly, HalfHourly)
	}
	idx := &dataIndex{
		interval: interval,
		entries:  make([]DataIndexEntry, count),
	}
	for i := range idx.entries {
		if err := readDataIndexEntry(r, &idx.entries[i]); err != nil {
			return nil, pkgerrors.Wrapf(err, "data index entry %d", i)
		}
		glog.V(2).Infof("data index entry %d: %+v", i, idx.entries[i])
	}
	glog.V(1).Infof("read %s data index with %d entries", interval, count)
	return idx, nil
}

func readDataIndexEntry(r *rapio.Reader, e *DataIndexEntry) error {
	/*
		Bytes	Content
		2	year
		1	month
		1	day
		1	hour
		1	minute
		2	observation element
		8	reserved
		4	offset of the data record
	*/
	var err error
	if e.ObservedAt, err = readCivilTime(r); err != nil {
		return err
	}
	if e.Element, err = r.ReadUint16(); err != nil {
		return ioErr("observation element", err)
	}
	if err := r.Skip(8); err != nil {
		return ioErr("data index reserved bytes", err)
	}
	if e.DataStartOffset, err = r.ReadUint32(); err != nil {
		return ioErr("data start offset", err)
	}

	// The size, radar status and station count live in the data record
	// itself. Read them now and come back to the next index entry.
	resume := r.Pos()
	if err := r.Seek(int64(e.DataStartOffset)); err != nil {
		return ioErr("data record", err)
	}
	if e.CompressedSize, err = r.ReadUint32(); err != nil {
		return ioErr("compressed data size", err)
	}
	if err := r.Skip(int64(e.CompressedSize)); err != nil {
		return ioErr("compressed data", err)
	}
	status, err := r.ReadUint64()
	if err != nil {
		return ioErr("radar operation status", err)
	}
	e.RadarStatus = RadarStatus(status)
	if e.StationCount, err = r.ReadUint32(); err != nil {
		return ioErr("station count", err)
	}
	if err := r.Seek(resume); err != nil {
		return ioErr("data index", err)
	}
	return nil
}

func readCivilTime(r *rapio.Reader) (time.Time, error) {
	year, err := r.ReadUint16()
	if err != nil {
		return time.Time{}, ioErr("observation year", err)
	}
	var fields [4]uint8 // month, day, hour, minute
	for i := range fields {
		if fields[i], err = r.ReadUint8(); err != nil {
			return time.Time{}, ioErr("observation date-time", err)
		}
	}
	month, day, hour, minute := fields[0], fields[1], fields[2], fields[3]
	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), 0, 0, time.UTC)
	// time.Date normalizes out of range fields, so a mismatch means the
	// recorded fields were not a valid calendar date-time.
	if month < 1 || month > 12 || t.Year() != int(year) || t.Month() != time.Month(month) ||
		t.Day() != int(day) || t.Hour() != int(hour) || t.Minute() != int(minute) {
		return time.Time{}, pkgerrors.Wrapf(ErrInvalidTimestamp, "%04d-%02d-%02d %02d:%02d", year, month, day, hour, minute)
	}
	return t, nil
}
