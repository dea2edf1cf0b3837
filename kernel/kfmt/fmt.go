// Package kfmt owns the kernel's output sink. Output produced before a sink is
// attached is buffered and replayed once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"

	"gophervm/kernel/sync"
)

var (
	// earlyPrintBuffer stores output emitted before an output sink is
	// attached.
	earlyPrintBuffer ringBuffer

	// outputSink is where all kernel output is sent. If set to nil, output
	// is redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes writes from concurrently running processes.
	sinkLock sync.Spinlock
)

// SetOutputSink sets the default target for kernel output to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently attached output sink or nil if output
// is still being buffered.
func GetOutputSink() io.Writer {
	sinkLock.Acquire()
	defer sinkLock.Release()
	return outputSink
}

// sinkWriter forwards writes to whatever output sink is active at the time of
// the write.
type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}
	return outputSink.Write(p)
}

// Printf formats according to a format specifier and writes to the active
// output sink.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(sinkWriter{}, format, args...)
}

// Fprintf behaves like Printf but writes to w. A nil w selects the active
// output sink.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		w = sinkWriter{}
	}
	fmt.Fprintf(w, format, args...)
}

// Writer returns an io.Writer that forwards to the output sink that is active
// at the time of each write.
func Writer() io.Writer {
	return sinkWriter{}
}
