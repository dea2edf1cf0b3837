package kfmt

import "io"

// ringBufferSize defines the number of bytes of log output that are retained
// before an output sink is attached. Older output is overwritten once the
// buffer fills up. The ring buffer size must always be a power of 2.
const ringBufferSize = 4096

// ringBuffer captures output emitted before the kernel has selected where its
// log output should go.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer. When the buffer is full
// the oldest unread byte is discarded for each new byte.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once all buffered
// data has been consumed.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Contiguous run: up to wIndex, or up to the end of the backing array
	// when the unread data wraps around.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = ringBufferSize
	}

	n := copy(p, rb.buffer[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & (ringBufferSize - 1)
}
