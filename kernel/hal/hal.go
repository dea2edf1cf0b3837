// Package hal builds the simulated machine from its configuration and probes
// for the devices the kernel relies on.
package hal

import (
	"bytes"
	"sort"

	"gophervm/device"
	"gophervm/device/disk"
	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
)

var (
	// ErrNoSwapDevice is returned by DetectHardware when no block device
	// for the swap area could be initialized.
	ErrNoSwapDevice = &kernel.Error{Module: "hal", Message: "no swap device detected"}
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	processor *cpu.Processor
	swapDisk  *disk.Disk

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer
)

// Processor returns the simulated processor built by DetectHardware.
func Processor() *cpu.Processor {
	return devices.processor
}

// SwapDisk returns the block device backing the swap area.
func SwapDisk() *disk.Disk {
	return devices.swapDisk
}

// DetectHardware builds the simulated processor described by cfg, probes for
// hardware devices and initializes the appropriate drivers.
func DetectHardware(cfg *Config) *kernel.Error {
	devices = managedDevices{
		processor: cpu.New(cfg.PhysicalPages, cfg.TLBSize),
	}
	kfmt.Printf("[hal] processor: %d physical pages of %d bytes, %d TLB entries\n",
		cfg.PhysicalPages, mm.PageSize, cfg.TLBSize)

	var drivers device.DriverInfoList
	for _, probeFn := range disk.HWProbes(cfg.SwapFile) {
		drivers = append(drivers, &device.DriverInfo{Order: device.DetectOrderStorage, Probe: probeFn})
	}
	sort.Stable(drivers)

	probe(drivers)

	if devices.swapDisk == nil {
		return ErrNoSwapDevice
	}
	return nil
}

// Shutdown releases all devices initialized by DetectHardware.
func Shutdown() *kernel.Error {
	var firstErr *kernel.Error
	if devices.swapDisk != nil {
		firstErr = devices.swapDisk.Close()
	}

	devices = managedDevices{}
	return firstErr
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.Writer()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case *disk.Disk:
		if devices.swapDisk == nil {
			devices.swapDisk = drvImpl
		}
	}
}
