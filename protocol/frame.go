package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame. The deepest message the protocol can
// produce is far below this; anything larger is a corrupt or hostile peer.
const MaxFrameSize = 64 * 1024

var (
	// ErrEmptyFrame means a peer sent a zero-length frame, which the
	// framing forbids.
	ErrEmptyFrame = errors.New("protocol: zero-length frame")

	// ErrFrameTooLarge means a frame header declared more than
	// MaxFrameSize payload bytes.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// flusher is satisfied by bufio.Writer. WriteMsg flushes after every frame
// so a message is never left sitting in a userspace buffer.
type flusher interface {
	Flush() error
}

// WriteMsg encodes a packet and writes it as one frame: a 4-byte big-endian
// payload length followed by the payload. If w buffers, the frame is
// flushed before WriteMsg returns.
func WriteMsg(w io.Writer, p Packet) error {
	payload, err := Encode(p)
	if err != nil {
		return err
	}
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// ReadMsg reads one frame and decodes the packet it carries. Both the
// length prefix and the payload are read exactly; a short read surfaces as
// io.ErrUnexpectedEOF. A clean close between frames surfaces as io.EOF.
func ReadMsg(r io.Reader) (Packet, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return Decode(payload)
}
