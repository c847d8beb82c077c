package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrOversized means a payload does not fit the 1-byte length field.
	ErrOversized = errors.New("tlv: oversized payload")

	// ErrTruncated means the input ended inside a header or a payload.
	ErrTruncated = errors.New("tlv: truncated input")

	// ErrUnexpectedType means the next value's type id differs from what
	// the caller demanded.
	ErrUnexpectedType = errors.New("tlv: unexpected type id")

	// ErrBadValue means a payload violates its type's constraints, such as
	// a wrong fixed size or invalid UTF-8.
	ErrBadValue = errors.New("tlv: bad value")
)

// Stream decodes a byte slice as a sequence of TLV values. It consumes
// values front to back; nested content is decoded by opening a sub-stream
// over a value's payload. Decoding never copies payload bytes.
type Stream struct {
	data []byte
	pos  int
}

// NewStream returns a stream over data. The slice must not be mutated while
// the stream or any value read from it is in use.
func NewStream(data []byte) *Stream {
	return &Stream{data: data}
}

// More reports whether any input remains.
func (s *Stream) More() bool {
	return s.pos < len(s.data)
}

// Peek returns the type id of the next value without consuming it.
func (s *Stream) Peek() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, ErrTruncated
	}
	return s.data[s.pos], nil
}

// Next consumes the next value and returns its type id and payload. The
// payload aliases the stream's backing slice.
func (s *Stream) Next() (byte, []byte, error) {
	if s.pos+headerLen > len(s.data) {
		return 0, nil, ErrTruncated
	}
	typ := s.data[s.pos]
	length := int(s.data[s.pos+1])
	start := s.pos + headerLen
	if start+length > len(s.data) {
		return 0, nil, fmt.Errorf("%w: type %d declares %d bytes, %d remain", ErrTruncated, typ, length, len(s.data)-start)
	}
	s.pos = start + length
	return typ, s.data[start : start+length], nil
}

// Expect consumes the next value and demands the given type id.
func (s *Stream) Expect(typ byte) ([]byte, error) {
	got, payload, err := s.Next()
	if err != nil {
		return nil, err
	}
	if got != typ {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedType, got, typ)
	}
	return payload, nil
}

// Uint32 consumes a 4-byte big-endian integer value of the given type.
func (s *Stream) Uint32(typ byte) (uint32, error) {
	payload, err := s.Expect(typ)
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: type %d carries %d bytes, want 4", ErrBadValue, typ, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// String consumes a string value of the given type, requiring valid UTF-8.
func (s *Stream) String(typ byte) (string, error) {
	payload, err := s.Expect(typ)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: type %d payload is not valid UTF-8", ErrBadValue, typ)
	}
	return string(payload), nil
}

// End demands that the stream is fully consumed; leftover bytes after the
// outermost value are a framing bug.
func (s *Stream) End() error {
	if s.More() {
		return fmt.Errorf("%w: %d trailing bytes", ErrBadValue, len(s.data)-s.pos)
	}
	return nil
}
