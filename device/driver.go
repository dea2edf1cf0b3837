// Package device defines the interface shared by all simulated hardware
// drivers.
package device

import (
	"gophervm/kernel"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal package.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed before any other driver.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderStorage is used by block devices.
	DetectOrderStorage DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed after all other drivers.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo is a driver-defined struct that is passed to the hal package
// when probing for hardware.
type DriverInfo struct {
	// Order specifies at which stage of the probing process the Probe
	// function should be invoked.
	Order DetectOrder

	// Probe returns a driver for the device or nil if the device is absent.
	Probe ProbeFn
}

// DriverInfoList is a list of DriverInfo entries that can be sorted by
// detection order.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }
