package transport

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// LineFramer buffers a continuous byte stream into newline-delimited
// frames. It is concurrency-safe so a transport's read loop and any
// diagnostic inspection can share it. Adapted from the teacher's
// ReadBuffer (stdio.go), generalized to return raw frame bytes instead of
// parsed messages: framing and wire parsing are separate concerns here
// (spec.md §4.3 "the core exchanges structured messages, not bytes").
type LineFramer struct {
	mu  sync.Mutex
	buf []byte
}

func NewLineFramer() *LineFramer { return &LineFramer{} }

// Append adds a chunk of data read from the underlying stream.
func (f *LineFramer) Append(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, chunk...)
}

// NextFrame returns the next complete line (without its trailing newline),
// or (nil, false) if no complete frame is currently buffered.
func (f *LineFramer) NextFrame() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, b := range f.buf {
		if b == '\n' {
			line := make([]byte, i)
			copy(line, f.buf[:i])
			f.buf = f.buf[i+1:]
			return line, true
		}
	}
	return nil, false
}

// Reset discards any buffered, not-yet-complete data.
func (f *LineFramer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = nil
}

// LengthPrefixedFramer buffers a stream framed as a 4-byte big-endian
// length prefix followed by that many payload bytes, for duplex transports
// over raw sockets that don't want newline-sensitive payloads.
type LengthPrefixedFramer struct {
	mu  sync.Mutex
	buf []byte
}

func NewLengthPrefixedFramer() *LengthPrefixedFramer { return &LengthPrefixedFramer{} }

const lengthPrefixSize = 4

// MaxFrameSize bounds a single frame to guard against a runaway length
// prefix exhausting memory before the rest of the frame has arrived.
const MaxFrameSize = 64 * 1024 * 1024

func (f *LengthPrefixedFramer) Append(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, chunk...)
}

func (f *LengthPrefixedFramer) NextFrame() ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.buf) < lengthPrefixSize {
		return nil, false, nil
	}
	n := binary.BigEndian.Uint32(f.buf[:lengthPrefixSize])
	if n > MaxFrameSize {
		return nil, false, fmt.Errorf("transport: frame of %d bytes exceeds max %d", n, MaxFrameSize)
	}
	total := lengthPrefixSize + int(n)
	if len(f.buf) < total {
		return nil, false, nil
	}
	frame := make([]byte, n)
	copy(frame, f.buf[lengthPrefixSize:total])
	f.buf = f.buf[total:]
	return frame, true, nil
}

// EncodeLengthPrefixed prepends a 4-byte big-endian length prefix to payload.
func EncodeLengthPrefixed(payload []byte) []byte {
	out := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(payload)))
	copy(out[lengthPrefixSize:], payload)
	return out
}
