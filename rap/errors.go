package rap

import (
	"errors"
	"fmt"
)

// ErrFormat is matched by every structural violation of the RAP layout.
var ErrFormat = errors.New("rap: format violation")

// Format errors. Each one also matches ErrFormat.
var (
	ErrInvalidTrailer         = fmt.Errorf("%w: comment trailer is not 0D 0A 00", ErrFormat)
	ErrUnsupportedInterval    = fmt.Errorf("%w: unsupported number of observations", ErrFormat)
	ErrUnsupportedMapType     = fmt.Errorf("%w: unsupported map type", ErrFormat)
	ErrUnsupportedCompression = fmt.Errorf("%w: unsupported compression method", ErrFormat)
	ErrInvalidTimestamp       = fmt.Errorf("%w: invalid observation date-time", ErrFormat)
	ErrInvalidText            = fmt.Errorf("%w: invalid text encoding", ErrFormat)
	ErrTableTooLarge          = fmt.Errorf("%w: level-repetition table too large", ErrFormat)
	ErrMalformedToken         = fmt.Errorf("%w: unrecognized run-length token", ErrFormat)
	ErrLevelOutOfRange        = fmt.Errorf("%w: level index out of range", ErrFormat)
	ErrCellCount              = fmt.Errorf("%w: cell count does not match grid", ErrFormat)
)

// ErrNotFound is returned when a timestamp is not recorded in the data index.
var ErrNotFound = errors.New("rap: observation not recorded")

// IOError reports a failed read or seek on the underlying file.
type IOError struct {
	// Op names the field or block being read.
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("rap: error reading %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op string, err error) error {
	return &IOError{Op: op, Err: err}
}
