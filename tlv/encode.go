// Package tlv implements the tag-length-value encoding used by the wire
// protocol. Every value is a 1-byte type id, a 1-byte content length and
// the content itself; composite values nest encoded values inside their
// content. The package is mechanical: which type ids exist and how they
// nest is the protocol package's business.
package tlv

import (
	"encoding/binary"
	"fmt"
)

// MaxLen is the largest content length a single value can carry, fixed by
// the 1-byte length field.
const MaxLen = 0xff

// headerLen is the type id byte plus the length byte.
const headerLen = 2

// Append encodes one value and appends it to buf. It fails if the payload
// does not fit the 1-byte length field.
func Append(buf []byte, typ byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxLen {
		return nil, fmt.Errorf("%w: type %d carries %d bytes", ErrOversized, typ, len(payload))
	}
	buf = append(buf, typ, byte(len(payload)))
	return append(buf, payload...), nil
}

// AppendUint32 encodes a 4-byte big-endian integer value.
func AppendUint32(buf []byte, typ byte, v uint32) []byte {
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], v)
	buf = append(buf, typ, 4)
	return append(buf, be[:]...)
}

// AppendString encodes a string value as its raw bytes.
func AppendString(buf []byte, typ byte, s string) ([]byte, error) {
	return Append(buf, typ, []byte(s))
}

// AppendEmpty encodes a value with no content, used for control messages.
func AppendEmpty(buf []byte, typ byte) []byte {
	return append(buf, typ, 0)
}
