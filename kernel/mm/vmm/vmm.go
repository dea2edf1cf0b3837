// Package vmm implements demand paging for simulated user processes.
//
// A Manager ties together the Core Map, the Inverted Page Table, the TLB
// controller, the eviction policy and the backing store. All of these are
// shared by every process on the machine and are only mutated while holding
// the Manager's page-fault lock, so faults are resolved one at a time.
package vmm

import (
	"sync/atomic"

	"gophervm/kernel"
	"gophervm/kernel/cpu"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/loader"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/swap"
	"gophervm/kernel/sync"
)

var (
	// panicFn halts the machine on unrecoverable errors. Tests replace it
	// to observe the halt.
	panicFn = kfmt.Panic

	// ErrCoreMapConflict is reported by CheckConsistency when two frames
	// claim the same page or a pooled frame is still occupied.
	ErrCoreMapConflict = &kernel.Error{Module: "vmm", Message: "core map conflict"}

	// ErrPageTableMismatch is reported by CheckConsistency when the
	// Inverted Page Table disagrees with the Core Map.
	ErrPageTableMismatch = &kernel.Error{Module: "vmm", Message: "inverted page table does not match core map"}

	log = kfmt.Logger("vmm")
)

// Stats holds the paging counters of a Manager.
type Stats struct {
	TLBHits      uint64
	TLBMisses    uint64
	IPTHits      uint64
	PageFaults   uint64
	Evictions    uint64
	SwapOuts     uint64
	SwapIns      uint64
	CleanDrops   uint64
	ZeroFills    uint64
	SectionLoads uint64
}

type counters struct {
	tlbHits, tlbMisses, iptHits, pageFaults, evictions  atomic.Uint64
	swapOuts, swapIns, cleanDrops, zeroFills, sectLoads atomic.Uint64
}

// Manager owns the memory subsystem of a simulated machine.
type Manager struct {
	proc    *cpu.Processor
	coreMap *CoreMap
	ipt     *InvertedPageTable
	tlb     *TLBController
	policy  *EvictionPolicy
	store   *swap.Store

	// faultLock serializes fault handling machine-wide. It guards every
	// field below it as well as the Core Map, the Inverted Page Table,
	// the eviction policy and the backing store.
	faultLock sync.Spinlock
	loaders   map[mm.PID]*loader.Loader

	stats counters
}

// NewManager returns a Manager for the physical memory and TLB of proc that
// swaps dirty pages out to store. It registers a context switch hook on proc
// that flushes the TLB whenever a different process is dispatched.
func NewManager(proc *cpu.Processor, store *swap.Store, algorithm ReplacementAlgorithm) *Manager {
	coreMap := NewCoreMap(proc.NumPhysPages())

	m := &Manager{
		proc:    proc,
		coreMap: coreMap,
		ipt:     NewInvertedPageTable(proc.NumPhysPages()),
		tlb:     NewTLBController(proc, coreMap),
		policy:  NewEvictionPolicy(algorithm, coreMap),
		store:   store,
		loaders: make(map[mm.PID]*loader.Loader),
	}

	proc.SetContextSwitchHook(m.onContextSwitch)
	return m
}

// onContextSwitch flushes the TLB, whose entries are not tagged with a
// process id.
func (m *Manager) onContextSwitch() {
	m.faultLock.Acquire()
	m.tlb.InvalidateAll()
	m.faultLock.Release()
}

// Stats returns a snapshot of the paging counters.
func (m *Manager) Stats() Stats {
	return Stats{
		TLBHits:      m.stats.tlbHits.Load(),
		TLBMisses:    m.stats.tlbMisses.Load(),
		IPTHits:      m.stats.iptHits.Load(),
		PageFaults:   m.stats.pageFaults.Load(),
		Evictions:    m.stats.evictions.Load(),
		SwapOuts:     m.stats.swapOuts.Load(),
		SwapIns:      m.stats.swapIns.Load(),
		CleanDrops:   m.stats.cleanDrops.Load(),
		ZeroFills:    m.stats.zeroFills.Load(),
		SectionLoads: m.stats.sectLoads.Load(),
	}
}

// SwapStats returns the backing store counters.
func (m *Manager) SwapStats() swap.Stats {
	m.faultLock.Acquire()
	defer m.faultLock.Release()
	return m.store.Stats()
}

// FreeFrames returns the number of frames in the free pool.
func (m *Manager) FreeFrames() uint32 {
	m.faultLock.Acquire()
	defer m.faultLock.Release()
	return m.policy.FreeFrames()
}

// ResidentPages returns the number of pages of pid that are resident.
func (m *Manager) ResidentPages(pid mm.PID) int {
	m.faultLock.Acquire()
	defer m.faultLock.Release()
	return m.ipt.ResidentPages(pid)
}

// CheckConsistency verifies that no two frames hold the same page, that
// every occupied frame has a matching Inverted Page Table row (and vice
// versa) and that pooled frames are unoccupied.
func (m *Manager) CheckConsistency() *kernel.Error {
	m.faultLock.Acquire()
	defer m.faultLock.Release()

	type owner struct {
		pid  mm.PID
		page mm.Page
	}

	var (
		claimed  = make(map[owner]mm.Frame)
		occupied int
	)

	for index := 0; index < m.coreMap.Len(); index++ {
		frame := mm.Frame(index)
		desc := m.coreMap.Get(frame)
		if desc == nil {
			continue
		}
		occupied++

		if m.policy.IsFree(frame) {
			return ErrCoreMapConflict
		}

		key := owner{desc.Owner, desc.Page}
		if _, dup := claimed[key]; dup {
			return ErrCoreMapConflict
		}
		claimed[key] = frame

		if !desc.Entry.Valid() || desc.Entry.Frame != frame || desc.Entry.Page != desc.Page {
			return ErrPageTableMismatch
		}

		if got, found := m.ipt.Lookup(desc.Owner, desc.Page); !found || got != frame {
			return ErrPageTableMismatch
		}
	}

	if m.ipt.Len() != occupied {
		return ErrPageTableMismatch
	}

	return nil
}
