// Package disk implements the simulated block-addressable disk that backs the
// swap area. The disk is a flat host file that only lives for a single
// session: it is truncated when the driver initializes and removed on Close.
package disk

import (
	"io"
	"os"
	"path/filepath"

	"gophervm/device"
	"gophervm/kernel"
	"gophervm/kernel/kfmt"
)

var (
	// ErrNotInitialized is returned when the disk is accessed before
	// DriverInit succeeds.
	ErrNotInitialized = &kernel.Error{Module: "disk", Message: "disk not initialized"}

	// ErrNoPath is returned by DriverInit when no backing file was specified.
	ErrNoPath = &kernel.Error{Module: "disk", Message: "no backing file path specified"}

	// file operations are mocked by tests.
	openFileFn = os.OpenFile
	removeFn   = os.Remove
)

// Disk is a block device backed by a host file.
type Disk struct {
	path string
	file *os.File
}

// New returns a disk driver for the backing file at path. The file is not
// touched until DriverInit is invoked.
func New(path string) *Disk {
	return &Disk{path: path}
}

// DriverName returns the name of this driver.
func (*Disk) DriverName() string {
	return "swap_disk"
}

// DriverVersion returns the version of this driver.
func (*Disk) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit creates (or truncates) the backing file.
func (d *Disk) DriverInit(w io.Writer) *kernel.Error {
	if d.path == "" {
		return ErrNoPath
	}

	if dir := filepath.Dir(d.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return kernel.Wrap("disk", "unable to create swap directory", err)
		}
	}

	f, err := openFileFn(d.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return kernel.Wrap("disk", "unable to open backing file", err)
	}

	d.file = f
	kfmt.Fprintf(w, "backing file: %s\n", d.path)
	return nil
}

// Path returns the location of the backing file.
func (d *Disk) Path() string {
	return d.path
}

// ReadAt implements io.ReaderAt. Reads past the end of the backing file
// return io.EOF together with the bytes that could be read.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {
	if d.file == nil {
		return 0, ErrNotInitialized
	}
	return d.file.ReadAt(p, off)
}

// WriteAt implements io.WriterAt. Writing past the end of the backing file
// grows it.
func (d *Disk) WriteAt(p []byte, off int64) (int, error) {
	if d.file == nil {
		return 0, ErrNotInitialized
	}
	return d.file.WriteAt(p, off)
}

// Close releases the backing file and removes it from the host filesystem.
func (d *Disk) Close() *kernel.Error {
	if d.file == nil {
		return nil
	}

	closeErr := d.file.Close()
	d.file = nil

	if err := removeFn(d.path); err != nil && !os.IsNotExist(err) {
		return kernel.Wrap("disk", "unable to remove backing file", err)
	}

	if closeErr != nil {
		return kernel.Wrap("disk", "unable to close backing file", closeErr)
	}
	return nil
}

// HWProbes returns the probe functions the hal package uses to detect the
// swap disk backed by the file at path.
func HWProbes(path string) []device.ProbeFn {
	return []device.ProbeFn{
		func() device.Driver {
			if path == "" {
				return nil
			}
			return New(path)
		},
	}
}
