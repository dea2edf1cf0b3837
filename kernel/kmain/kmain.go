// Package kmain boots the simulated machine and runs the processes described
// by its configuration against a trace of memory accesses.
package kmain

import (
	"bytes"
	"io"
	"os"
	"sort"

	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/hal"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/loader"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/swap"
	"gophervm/kernel/mm/vmm"
)

const minSwapFilterCapacity = 64

var (
	// ErrMachineHalted is returned by Kmain when an unrecoverable error
	// halted the processor.
	ErrMachineHalted = &kernel.Error{Module: "kmain", Message: "machine halted"}

	// The following functions are mocked by tests.
	openFileFn = os.OpenFile
	readFileFn = os.ReadFile

	log = kfmt.Logger("kmain")
)

// Kmain builds the machine described by cfg, creates an address space for
// every configured process and replays trace against them. Kernel output is
// written to out and, if configured, appended to the log file.
//
// A halted machine is reported as ErrMachineHalted; any other error means
// the machine could not be booted or the trace could not be parsed.
func Kmain(cfg *hal.Config, trace io.Reader, out io.Writer) (err *kernel.Error) {
	if err = cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogFile != "" {
		logFile, openErr := openFileFn(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if openErr != nil {
			return kernel.Wrap("kmain", "unable to open log file", openErr)
		}
		defer logFile.Close()

		out = io.MultiWriter(out, logFile)
	}
	kfmt.SetOutputSink(out)

	level, _ := kfmt.ParseLevel(cfg.LogLevel)
	kfmt.SetLevel(level)

	defer func() {
		r := recover()
		if shutdownErr := hal.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}

		switch {
		case r == nil:
		case r == cpu.ErrHalted:
			err = ErrMachineHalted
		default:
			panic(r)
		}
	}()

	if err = hal.DetectHardware(cfg); err != nil {
		return err
	}

	algorithm, _ := vmm.ParseReplacementAlgorithm(cfg.Replacement)
	m := vmm.NewManager(
		hal.Processor(),
		swap.New(hal.SwapDisk(), swapFilterCapacity(cfg)),
		algorithm,
	)
	kfmt.Printf("[kmain] page replacement: %s\n", algorithm)

	r := &runner{m: m, procs: make(map[mm.PID]*vmm.AddressSpace, len(cfg.Processes))}
	for _, pc := range cfg.Processes {
		img, err := buildImage(pc)
		if err != nil {
			return err
		}

		as, err := m.NewAddressSpace(mm.PID(pc.PID), img)
		if err != nil {
			return err
		}
		r.procs[as.PID()] = as
	}

	if err = r.replay(trace); err != nil {
		return err
	}

	r.exitAll()
	printStats(m)
	return nil
}

// buildImage assembles the in-memory executable described by pc.
func buildImage(pc hal.ProcessConfig) (*loader.Image, *kernel.Error) {
	var img loader.Image

	for _, sc := range pc.Sections {
		var data []byte
		switch {
		case sc.File != "":
			contents, err := readFileFn(sc.File)
			if err != nil {
				return nil, kernel.Wrap("kmain", "unable to read section "+sc.Name, err)
			}
			data = contents
		case sc.Fill != 0:
			data = bytes.Repeat([]byte{sc.Fill}, int(sc.Pages*mm.PageSize))
		}

		img.AddSection(sc.Name, sc.Pages, sc.ReadOnly, data)
	}

	return &img, nil
}

// swapFilterCapacity sizes the swap slot filter so every page of every
// configured process fits.
func swapFilterCapacity(cfg *hal.Config) uint {
	var pages uint
	for _, pc := range cfg.Processes {
		for _, sc := range pc.Sections {
			pages += uint(sc.Pages)
		}
		pages += loader.StackPages + loader.ArgumentPages
	}

	if pages < minSwapFilterCapacity {
		return minSwapFilterCapacity
	}
	return pages
}

// exitAll terminates the processes still running at the end of the trace in
// pid order.
func (r *runner) exitAll() {
	pids := make([]mm.PID, 0, len(r.procs))
	for pid := range r.procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		r.procs[pid].Exit()
		delete(r.procs, pid)
	}
}

func printStats(m *vmm.Manager) {
	var (
		stats     = m.Stats()
		swapStats = m.SwapStats()
	)

	kfmt.Printf("[vmm] tlb hits: %d, tlb misses: %d, ipt hits: %d\n", stats.TLBHits, stats.TLBMisses, stats.IPTHits)
	kfmt.Printf("[vmm] page faults: %d, evictions: %d, clean drops: %d\n", stats.PageFaults, stats.Evictions, stats.CleanDrops)
	kfmt.Printf("[vmm] section loads: %d, zero fills: %d, swap ins: %d, swap outs: %d\n",
		stats.SectionLoads, stats.ZeroFills, stats.SwapIns, stats.SwapOuts)
	kfmt.Printf("[swap] slots: %d allocated, %d in use, %d recycled; pages written: %d, read: %d\n",
		swapStats.SlotsAllocated, swapStats.SlotsInUse, swapStats.SlotsRecycled, swapStats.PagesWritten, swapStats.PagesRead)
	kfmt.Printf("[vmm] free frames: %d\n", m.FreeFrames())
}
