package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Terminator ends every frame on the wire.
var Terminator = []byte("\r\n")

// MaxFrameSize caps a single frame, terminator excluded.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned when no terminator shows up within MaxFrameSize bytes.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ScanFrames is a bufio.SplitFunc yielding terminator-delimited frames.
// Bytes after the last terminator at EOF are an incomplete frame and are dropped.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, Terminator); i >= 0 {
		return i + len(Terminator), data[:i], nil
	}
	if len(data) > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// NewFrameScanner wraps r in a scanner that yields frames.
func NewFrameScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxFrameSize+len(Terminator)+1)
	sc.Split(ScanFrames)
	return sc
}

// AppendFrame appends the terminator to an encoded message.
func AppendFrame(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(Terminator))
	out = append(out, b...)
	return append(out, Terminator...)
}
