package vmm

import (
	"gophervm/kernel"
	"gophervm/kernel/loader"
	"gophervm/kernel/mm"
)

var (
	// ErrInvalidPage is returned when a process accesses a page outside
	// its address space. The process layer terminates the process.
	ErrInvalidPage = &kernel.Error{Module: "vmm", Message: "access to invalid page"}

	// ErrNoAddressSpace is returned for faults raised by a pid without a
	// registered address space.
	ErrNoAddressSpace = &kernel.Error{Module: "vmm", Message: "process has no address space"}
)

// HandleFault resolves a TLB miss for page of pid. If the page is resident
// its Core Map entry is returned; otherwise a frame is obtained from the
// eviction policy, its previous occupant is evicted and the page is loaded
// from the backing store, the executable or zero-filled. The resulting entry
// is installed in the TLB.
//
// The caller must own the processor. Errors other than ErrInvalidPage and
// ErrNoAddressSpace halt the machine.
func (m *Manager) HandleFault(pid mm.PID, page mm.Page) (mm.PageTableEntry, *kernel.Error) {
	m.faultLock.Acquire()

	entry, err := m.resolveFault(pid, page)
	if err == nil {
		m.tlb.Install(entry)
	}

	m.faultLock.Release()

	if err != nil && err != ErrInvalidPage && err != ErrNoAddressSpace {
		log.Error("unrecoverable page fault", "pid", pid, "page", page, "err", err.Message)
		panicFn(err)
	}

	return entry, err
}

// resolveFault runs the lookup chain for a TLB miss. It must be called while
// holding the fault lock.
func (m *Manager) resolveFault(pid mm.PID, page mm.Page) (mm.PageTableEntry, *kernel.Error) {
	l, registered := m.loaders[pid]
	if !registered {
		return mm.PageTableEntry{}, ErrNoAddressSpace
	}

	if l.Classify(page).Kind == loader.InvalidPage {
		return mm.PageTableEntry{}, ErrInvalidPage
	}

	if frame, found := m.ipt.Lookup(pid, page); found {
		if desc := m.coreMap.Get(frame); desc != nil && desc.Owner == pid && desc.Page == page && desc.Entry.Valid() {
			m.stats.iptHits.Add(1)
			return desc.Entry, nil
		}
	}

	m.stats.pageFaults.Add(1)

	// Any cached translation may point at the frame about to be reused.
	m.tlb.InvalidateAll()

	frame, fromPool := m.policy.FindVictim()
	if !fromPool {
		if err := m.evict(frame); err != nil {
			return mm.PageTableEntry{}, err
		}
	}

	return m.populate(pid, page, frame, l)
}

// evict removes the page that occupies frame. Dirty pages are written to the
// backing store; clean pages are dropped because they can be rebuilt from
// their original source or from the copy already in the backing store.
func (m *Manager) evict(frame mm.Frame) *kernel.Error {
	m.tlb.InvalidateFrame(frame, true)

	desc := m.coreMap.Get(frame)
	if desc == nil {
		return nil
	}

	if desc.Entry.HasFlags(mm.FlagDirty) {
		slot := m.store.AllocateOrReuse(desc.Owner, desc.Page)
		if err := m.store.Write(slot, m.proc.FrameBytes(frame)); err != nil {
			return err
		}

		m.stats.swapOuts.Add(1)
		log.Debug("swapped out page", "pid", desc.Owner, "page", desc.Page, "frame", frame, "slot", slot)
	} else {
		m.stats.cleanDrops.Add(1)
		log.Debug("dropped clean page", "pid", desc.Owner, "page", desc.Page, "frame", frame)
	}

	m.ipt.Remove(desc.Owner, desc.Page)
	m.coreMap.Clear(frame)
	m.stats.evictions.Add(1)
	return nil
}

// populate loads page of pid into frame and records the new mapping. A copy
// in the backing store always wins over the page's original source because
// it is the only place that holds modifications made before the page was
// last evicted.
func (m *Manager) populate(pid mm.PID, page mm.Page, frame mm.Frame, l *loader.Loader) (mm.PageTableEntry, *kernel.Error) {
	var (
		buf   = m.proc.FrameBytes(frame)
		entry = mm.PageTableEntry{Page: page, Frame: frame, Flags: mm.FlagValid}
	)

	if slot, found := m.store.Lookup(pid, page); found {
		if err := m.store.Read(slot, buf); err != nil {
			return entry, err
		}

		if l.ReadOnly(page) {
			entry.SetFlags(mm.FlagReadOnly)
		}

		m.stats.swapIns.Add(1)
		log.Debug("swapped in page", "pid", pid, "page", page, "frame", frame, "slot", slot)
	} else {
		readOnly, err := l.Materialize(page, buf)
		if err != nil {
			return entry, err
		}

		if readOnly {
			entry.SetFlags(mm.FlagReadOnly)
		}

		if l.Classify(page).Kind == loader.CodePage {
			m.stats.sectLoads.Add(1)
		} else {
			m.stats.zeroFills.Add(1)
		}
	}

	m.coreMap.Set(frame, &FrameDescriptor{Owner: pid, Page: page, Entry: entry})
	m.ipt.Insert(pid, page, frame)

	log.Debug("resolved page fault", "pid", pid, "page", page, "frame", frame)
	return entry, nil
}

// ReleaseProcessPages discards every resident page and backing store slot
// of pid for pages [0, pageCount). Freed frames return to the free pool.
// The caller must own the processor.
func (m *Manager) ReleaseProcessPages(pid mm.PID, pageCount uint32) {
	m.faultLock.Acquire()
	defer m.faultLock.Release()

	var released, slots int
	for page := mm.Page(0); uint32(page) < pageCount; page++ {
		if frame, found := m.ipt.Lookup(pid, page); found {
			m.tlb.InvalidateFrame(frame, false)
			m.ipt.Remove(pid, page)
			m.coreMap.Clear(frame)
			if err := m.policy.Release(frame); err != nil {
				log.Warn("unable to release frame", "pid", pid, "frame", frame, "err", err.Message)
			}
			released++
		}

		if m.store.Release(pid, page) {
			slots++
		}
	}

	log.Debug("released process pages", "pid", pid, "frames", released, "slots", slots)
}

// Lookup returns the Core Map entry of page of pid if the page is resident.
// It has no side effects.
func (m *Manager) Lookup(pid mm.PID, page mm.Page) (mm.PageTableEntry, bool) {
	m.faultLock.Acquire()
	defer m.faultLock.Release()

	frame, found := m.ipt.Lookup(pid, page)
	if !found {
		return mm.PageTableEntry{}, false
	}

	desc := m.coreMap.Get(frame)
	if desc == nil || desc.Owner != pid || desc.Page != page {
		return mm.PageTableEntry{}, false
	}

	return desc.Entry, true
}
