package rap

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sdifrance/gorap/internal/raptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect decodes every cell recorded at t. It returns the cells read before
// the first error along with that error.
func collect(t *testing.T, doc *Document, at time.Time) ([]LocationValue, error) {
	t.Helper()
	it, err := doc.Values(at)
	require.NoError(t, err)
	defer it.Close()
	return drain(it)
}

func drain(it *ValueIterator) ([]LocationValue, error) {
	var out []LocationValue
	for {
		lv, err := it.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, lv)
	}
}

func values(cells []LocationValue) []uint16 {
	out := make([]uint16, len(cells))
	for i, c := range cells {
		out[i] = c.Value
	}
	return out
}

// singleRecord returns a file on an h x v grid whose first observation holds
// tokens.
func singleRecord(h, v uint16, tokens []byte) raptest.File {
	f := raptest.Default()
	f.HorizontalCount, f.VerticalCount = h, v
	f.Records[0].Tokens = tokens
	return f
}

var firstObservation = raptest.Day.Add(time.Hour)

func TestDecodeScenario(t *testing.T) {
	doc, err := Read(raptest.Default().Bytes())
	require.NoError(t, err)

	it, err := doc.Values(firstObservation)
	require.NoError(t, err)
	defer it.Close()

	cells, err := drain(it)
	require.NoError(t, err)
	require.Len(t, cells, doc.Grid().Cells())
	assert.Equal(t, []uint16{15, 15, 15, 7, 15, 15, 15, 15, 15}, values(cells))
	assert.Equal(t, int64(4), it.consumed)
	for _, c := range cells {
		assert.True(t, c.Valid)
	}

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeCoordinates(t *testing.T) {
	doc, err := Read(raptest.Default().Bytes())
	require.NoError(t, err)
	cells, err := collect(t, doc, firstObservation)
	require.NoError(t, err)
	require.Len(t, cells, 9)

	g := doc.Grid()
	assert.Equal(t, g.StartLatitude.Degrees(), cells[0].Latitude)
	assert.Equal(t, g.StartLongitude.Degrees(), cells[0].Longitude)

	// West to east along a row, then the west edge of the row to the south.
	assert.Equal(t, 135.0125, cells[1].Longitude)
	assert.Equal(t, 36.0, cells[1].Latitude)
	assert.Equal(t, 135.025, cells[2].Longitude)
	assert.Equal(t, 135.0, cells[3].Longitude)
	assert.Equal(t, 35.991667, cells[3].Latitude)

	last := cells[len(cells)-1]
	assert.Equal(t, g.LastLatitude().Degrees(), last.Latitude)
	assert.Equal(t, g.LastLongitude().Degrees(), last.Longitude)
	assert.Equal(t, 35.983334, last.Latitude)
}

func TestDecodeTokens(t *testing.T) {
	tests := []struct {
		name   string
		h, v   uint16
		tokens []byte
		want   []uint16
		valid  []bool
	}{
		{
			name:   "indexed repeat is code plus two",
			h:      2, v: 1,
			tokens: []byte{0x02}, // level 1, code 0
			want:   []uint16{7, 7},
		},
		{
			name:   "explicit repeat is count plus two",
			h:      4, v: 2,
			tokens: []byte{0xC2, 0x06},
			want:   []uint16{15, 15, 15, 15, 15, 15, 15, 15},
		},
		{
			name:   "explicit repeat zero",
			h:      2, v: 1,
			tokens: []byte{0xC0, 0x00},
			want:   []uint16{0, 0},
		},
		{
			name:   "single common values",
			h:      3, v: 1,
			tokens: []byte{0x80, 0x81, 0x82},
			want:   []uint16{0, 7, 15},
		},
		{
			name:   "single rare value",
			h:      2, v: 1,
			tokens: []byte{0xFE, 0x02, 0xFE, 0x01},
			want:   []uint16{15, 7},
		},
		{
			name:   "missing values",
			h:      4, v: 1,
			tokens: []byte{0x83, 0x06, 0x81},
			want:   []uint16{MissingValue, MissingValue, MissingValue, 7},
			valid:  []bool{false, false, false, true},
		},
		{
			name:   "run spans rows",
			h:      2, v: 3,
			tokens: []byte{0x81, 0xC2, 0x02, 0xFE, 0x00},
			want:   []uint16{7, 15, 15, 15, 15, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Read(singleRecord(tt.h, tt.v, tt.tokens).Bytes())
			require.NoError(t, err)
			cells, err := collect(t, doc, firstObservation)
			require.NoError(t, err)
			assert.Equal(t, tt.want, values(cells))
			if tt.valid != nil {
				for i, c := range cells {
					assert.Equal(t, tt.valid[i], c.Valid, "cell %d", i)
				}
			}
		})
	}
}

func TestDecodeMissingValue(t *testing.T) {
	doc, err := Read(singleRecord(1, 1, []byte{0x83}).Bytes())
	require.NoError(t, err)
	cells, err := collect(t, doc, firstObservation)
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.False(t, cells[0].Valid)
	mm, ok := cells[0].Millimetres()
	assert.False(t, ok)
	assert.Zero(t, mm)
}

func TestMillimetres(t *testing.T) {
	mm, ok := LocationValue{Value: 125, Valid: true}.Millimetres()
	assert.True(t, ok)
	assert.Equal(t, 12.5, mm)
}

func TestDecodeDrainsAfterByteBudget(t *testing.T) {
	// budgetTokens pads tokens so the record still holds its radar status and
	// station count after a CompressedSize shorter than the token stream.
	budgetTokens := func(tokens ...byte) []byte {
		return append(tokens, make([]byte, 12)...)
	}
	tests := []struct {
		name   string
		h      uint16
		tokens []byte
		// size overrides the compressed size when non-zero.
		size uint32
		want []uint16
		// consumed counts the token bytes read, including any second byte
		// past the budget.
		consumed int64
		wantErr  error
	}{
		{
			name:     "indexed repeat drains its cells",
			h:        3,
			tokens:   budgetTokens(0x05, 0x81),
			size:     1,
			want:     []uint16{15, 15, 15},
			consumed: 1,
		},
		{
			name:     "explicit repeat reads its count past the budget",
			h:        2,
			tokens:   budgetTokens(0xC2, 0x00, 0x81),
			size:     1,
			want:     []uint16{15, 15},
			consumed: 2,
		},
		{
			name:     "rare value reads its level past the budget",
			h:        1,
			tokens:   budgetTokens(0xFE, 0x02, 0x81),
			size:     1,
			want:     []uint16{15},
			consumed: 2,
		},
		{
			// The count byte is the low byte of the radar status, 0xFF, so the
			// run is 257 cells long.
			name:     "explicit repeat count taken from the next field",
			h:        3,
			tokens:   []byte{0xC2},
			want:     []uint16{15, 15, 15},
			consumed: 2,
			wantErr:  ErrCellCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := singleRecord(tt.h, 1, tt.tokens)
			f.Records[0].CompressedSize = tt.size
			doc, err := Read(f.Bytes())
			require.NoError(t, err)

			it, err := doc.Values(firstObservation)
			require.NoError(t, err)
			defer it.Close()
			cells, err := drain(it)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, values(cells))
			assert.Equal(t, tt.consumed, it.consumed)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		h, v   uint16
		tokens []byte
		// cells decoded before the error
		before []uint16
		want   error
	}{
		{
			name:   "malformed leading byte",
			h:      3, v: 1,
			tokens: []byte{0x81, 0xE0},
			before: []uint16{7},
			want:   ErrMalformedToken,
		},
		{
			name:   "0xFF is not a token",
			h:      2, v: 1,
			tokens: []byte{0xFF, 0x00},
			want:   ErrMalformedToken,
		},
		{
			name:   "repetition index past table",
			h:      2, v: 1,
			tokens: []byte{0x7F},
			want:   ErrLevelOutOfRange,
		},
		{
			name:   "common level past table",
			h:      2, v: 1,
			tokens: []byte{0x81, 0x84},
			before: []uint16{7},
			want:   ErrLevelOutOfRange,
		},
		{
			name:   "explicit level past table",
			h:      3, v: 1,
			tokens: []byte{0xDF, 0x00},
			want:   ErrLevelOutOfRange,
		},
		{
			name:   "rare level past table",
			h:      2, v: 1,
			tokens: []byte{0xFE, 0x10},
			want:   ErrLevelOutOfRange,
		},
		{
			name:   "more cells than grid",
			h:      2, v: 2,
			tokens: raptest.ScenarioTokens,
			before: []uint16{15, 15, 15, 7},
			want:   ErrCellCount,
		},
		{
			name:   "fewer cells than grid",
			h:      3, v: 2,
			tokens: []byte{0x05, 0x81},
			before: []uint16{15, 15, 15, 7},
			want:   ErrCellCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Read(singleRecord(tt.h, tt.v, tt.tokens).Bytes())
			require.NoError(t, err)
			it, err := doc.Values(firstObservation)
			require.NoError(t, err)
			defer it.Close()

			cells, err := drain(it)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrFormat)
			assert.Equal(t, len(tt.before), len(cells))
			if len(tt.before) > 0 {
				assert.Equal(t, tt.before, values(cells))
			}

			// The sequence is exhausted after an error.
			_, err = it.Next()
			require.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestDecodeShortRead(t *testing.T) {
	data := raptest.Default().Bytes()
	doc, err := Read(data)
	require.NoError(t, err)

	// A record whose token stream would start at the end of the file.
	it, err := doc.Decode(DataIndexEntry{DataStartOffset: uint32(len(data) - 4), CompressedSize: 10})
	require.NoError(t, err)
	defer it.Close()

	_, err = it.Next()
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = it.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestValuesNotRecorded(t *testing.T) {
	doc, err := Read(raptest.Default().Bytes())
	require.NoError(t, err)
	it, err := doc.Values(raptest.Day)
	require.Nil(t, it)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAll(t *testing.T) {
	doc, err := Read(raptest.Default().Bytes())
	require.NoError(t, err)

	t.Run("full pass", func(t *testing.T) {
		it, err := doc.Values(firstObservation)
		require.NoError(t, err)
		var got []uint16
		for lv, err := range it.All() {
			require.NoError(t, err)
			got = append(got, lv.Value)
		}
		assert.Equal(t, []uint16{15, 15, 15, 7, 15, 15, 15, 15, 15}, got)
		assert.True(t, it.done)
	})

	t.Run("break closes", func(t *testing.T) {
		it, err := doc.Values(firstObservation)
		require.NoError(t, err)
		n := 0
		for range it.All() {
			n++
			if n == 2 {
				break
			}
		}
		assert.Equal(t, 2, n)
		_, err = it.Next()
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("error ends the sequence", func(t *testing.T) {
		doc, err := Read(singleRecord(3, 1, []byte{0x81, 0xE0}).Bytes())
		require.NoError(t, err)
		it, err := doc.Values(firstObservation)
		require.NoError(t, err)
		var errs []error
		n := 0
		for _, err := range it.All() {
			n++
			if err != nil {
				errs = append(errs, err)
			}
		}
		assert.Equal(t, 2, n)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrMalformedToken)
	})
}

func TestIndependentSessions(t *testing.T) {
	f := raptest.Default()
	f.Records[1].Tokens = []byte{0xC1, 0x07} // nine cells of 7
	path := f.WriteFile(t)
	doc, err := Open(path)
	require.NoError(t, err)

	a, err := doc.Values(firstObservation)
	require.NoError(t, err)
	defer a.Close()
	b, err := doc.Values(firstObservation.Add(time.Hour))
	require.NoError(t, err)
	defer b.Close()

	// Interleave pulls: each session keeps its own cursor.
	var av, bv []uint16
	for i := 0; i < 9; i++ {
		lv, err := a.Next()
		require.NoError(t, err)
		av = append(av, lv.Value)
		lv, err = b.Next()
		require.NoError(t, err)
		bv = append(bv, lv.Value)
	}
	assert.Equal(t, []uint16{15, 15, 15, 7, 15, 15, 15, 15, 15}, av)
	assert.Equal(t, []uint16{7, 7, 7, 7, 7, 7, 7, 7, 7}, bv)
	assert.Equal(t, firstObservation.Add(time.Hour), b.Entry().ObservedAt)

	_, err = a.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = b.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCloseTwice(t *testing.T) {
	doc, err := Open(raptest.Default().WriteFile(t))
	require.NoError(t, err)
	it, err := doc.Values(firstObservation)
	require.NoError(t, err)
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	_, err = it.Next()
	require.ErrorIs(t, err, io.EOF)
}
