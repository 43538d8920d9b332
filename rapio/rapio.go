// Package rapio contains the fixed-width little-endian readers that the RAP
// header parser and grid decoder are built on.
//
// RAP fields are not self-describing: every field has a fixed width and a
// single misread byte shifts everything after it, so each primitive reads
// exactly the number of bytes it names or fails.
package rapio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/golang/glog"
)

// ErrInvalidText is returned by ReadString when a field is not valid UTF-8.
var ErrInvalidText = errors.New("field is not valid UTF-8 text")

// Reader reads little-endian fields from a seekable byte source and keeps
// track of the absolute byte offset of the next field.
type Reader struct {
	rs  io.ReadSeeker
	br  *bufio.Reader
	pos int64
}

// NewReader returns a Reader positioned at the current offset of rs, which is
// assumed to be the start of the source.
func NewReader(rs io.ReadSeeker) *Reader {
	return &Reader{
		rs: rs,
		br: bufio.NewReader(rs),
	}
}

// Pos returns the absolute offset of the next byte to be read.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Seek moves the reader to the absolute offset and discards any buffered
// bytes.
func (r *Reader) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("seek to negative offset %d", offset)
	}
	if _, err := r.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to byte offset %d: %w", offset, err)
	}
	r.br.Reset(r.rs)
	r.pos = offset
	return nil
}

// Skip advances the reader by n bytes without decoding them.
func (r *Reader) Skip(n int64) error {
	if n < 0 {
		return fmt.Errorf("skip of negative length %d", n)
	}
	if n <= int64(r.br.Buffered()) {
		discarded, err := r.br.Discard(int(n))
		r.pos += int64(discarded)
		return err
	}
	glog.V(3).Infof("skipping %d bytes from offset %d by seeking", n, r.pos)
	return r.Seek(r.pos + n)
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if err := r.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUint8 reads an unsigned 8-bit integer.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, shortRead(err)
	}
	r.pos++
	return b, nil
}

// ReadUint16 reads a little-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadUint32 reads a little-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a little-endian unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	var buf [8]byte
	if err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadString reads a text field of exactly n bytes and trims trailing
// whitespace.
func (r *Reader) ReadString(n int) (string, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%d byte field %q: %w", n, buf, ErrInvalidText)
	}
	return strings.TrimRightFunc(string(buf), unicode.IsSpace), nil
}

func (r *Reader) readFull(buf []byte) error {
	n, err := io.ReadFull(r.br, buf)
	r.pos += int64(n)
	if err != nil {
		return shortRead(err)
	}
	return nil
}

// shortRead reports a clean EOF as unexpected: no RAP field is optional, so
// running out of bytes at a field boundary is as fatal as running out inside
// one.
func shortRead(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
