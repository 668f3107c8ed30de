package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	maxFrames    = 1 << 16
	maxFrameSize = 1 << 30
)

// writeFrames serializes frames into one frame-count prefix followed by
// length-prefixed frames, and issues a single Write so the receiver either
// observes the whole envelope or none of it.
func writeFrames(w io.Writer, frames [][]byte) error {
	buf := &bytes.Buffer{}

	if err := binary.Write(buf, binary.BigEndian, uint32(len(frames))); err != nil {
		return err
	}

	for _, f := range frames {
		if err := binary.Write(buf, binary.BigEndian, uint32(len(f))); err != nil {
			return err
		}
		buf.Write(f)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// readFrames reads back one envelope written by writeFrames.
func readFrames(r io.Reader) ([][]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 || n > maxFrames {
		return nil, fmt.Errorf("transport: invalid frame count %d", n)
	}

	frames := make([][]byte, n)
	for i := range frames {
		var sz uint32
		if err := binary.Read(r, binary.BigEndian, &sz); err != nil {
			return nil, err
		}
		if sz > maxFrameSize {
			return nil, fmt.Errorf("transport: frame %d exceeds max size %d", i, maxFrameSize)
		}

		b := make([]byte, sz)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		frames[i] = b
	}

	return frames, nil
}
