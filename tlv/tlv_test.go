package tlv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAppendAndNext(t *testing.T) {
	buf, err := Append(nil, 42, []byte("acc1"))
	require.NoError(t, err)
	assert.Equal(t, []byte{42, 4, 'a', 'c', 'c', '1'}, buf)

	s := NewStream(buf)
	typ, payload, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(42), typ)
	assert.Equal(t, []byte("acc1"), payload)
	assert.NoError(t, s.End())
}

func TestAppendOversized(t *testing.T) {
	_, err := Append(nil, 1, make([]byte, MaxLen+1))
	assert.ErrorIs(t, err, ErrOversized)

	buf, err := Append(nil, 1, make([]byte, MaxLen))
	require.NoError(t, err)
	assert.Len(t, buf, MaxLen+2)
}

func TestUint32RoundTrip(t *testing.T) {
	buf := AppendUint32(nil, 52, 0xdeadbeef)
	assert.Equal(t, []byte{52, 4, 0xde, 0xad, 0xbe, 0xef}, buf)

	v, err := NewStream(buf).Uint32(52)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestUint32WrongSize(t *testing.T) {
	buf, err := Append(nil, 52, []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = NewStream(buf).Uint32(52)
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	buf, err := Append(nil, 42, []byte{0xff, 0xfe})
	require.NoError(t, err)
	_, err = NewStream(buf).String(42)
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestExpectTypeMismatch(t *testing.T) {
	buf := AppendEmpty(nil, 17)
	_, err := NewStream(buf).Expect(18)
	assert.ErrorIs(t, err, ErrUnexpectedType)
}

func TestTruncatedInputs(t *testing.T) {
	tests := [][]byte{
		{42},             // header cut after the type id
		{42, 4},           // payload missing entirely
		{42, 4, 'a', 'c'}, // payload cut short
	}
	for _, input := range tests {
		s := NewStream(input)
		_, _, err := s.Next()
		assert.ErrorIs(t, err, ErrTruncated, "input %v", input)
	}
}

func TestEndCatchesTrailingBytes(t *testing.T) {
	buf := AppendEmpty(nil, 17)
	buf = append(buf, 0x00)
	s := NewStream(buf)
	_, err := s.Expect(17)
	require.NoError(t, err)
	assert.ErrorIs(t, s.End(), ErrBadValue)
}

func TestSequenceDecoding(t *testing.T) {
	var buf []byte
	buf, err := AppendString(buf, 42, "from")
	require.NoError(t, err)
	buf, err = AppendString(buf, 42, "to")
	require.NoError(t, err)
	buf = AppendUint32(buf, 62, 7)

	s := NewStream(buf)
	a, err := s.String(42)
	require.NoError(t, err)
	b, err := s.String(42)
	require.NoError(t, err)
	v, err := s.Uint32(62)
	require.NoError(t, err)
	require.NoError(t, s.End())

	assert.Equal(t, "from", a)
	assert.Equal(t, "to", b)
	assert.Equal(t, uint32(7), v)
}

func TestRoundTripRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		typ := rapid.Byte().Draw(t, "typ")
		payload := rapid.SliceOfN(rapid.Byte(), 0, MaxLen).Draw(t, "payload")

		buf, err := Append(nil, typ, payload)
		require.NoError(t, err)

		s := NewStream(buf)
		gotTyp, gotPayload, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, typ, gotTyp)
		assert.True(t, bytes.Equal(payload, gotPayload))
		assert.NoError(t, s.End())
	})
}
