package vmm

import (
	"math"

	"gophervm/kernel"
	"gophervm/kernel/loader"
	"gophervm/kernel/mm"
)

var (
	// ErrReadOnly is returned when a process writes to a read-only page.
	ErrReadOnly = &kernel.Error{Module: "vmm", Message: "write to read-only page"}

	// ErrPIDInUse is returned by NewAddressSpace for a pid that already has
	// an address space.
	ErrPIDInUse = &kernel.Error{Module: "vmm", Message: "pid already has an address space"}
)

// AddressSpace is the virtual memory view of a single process.
type AddressSpace struct {
	m      *Manager
	pid    mm.PID
	loader *loader.Loader
}

// NewAddressSpace registers a process whose code and data come from exe. No
// page is loaded until the process touches it.
func (m *Manager) NewAddressSpace(pid mm.PID, exe loader.Executable) (*AddressSpace, *kernel.Error) {
	l, err := loader.New(exe)
	if err != nil {
		return nil, err
	}

	m.faultLock.Acquire()
	defer m.faultLock.Release()

	if _, exists := m.loaders[pid]; exists {
		return nil, ErrPIDInUse
	}
	m.loaders[pid] = l

	log.Info("created address space", "pid", pid, "code_pages", l.CodePages(), "pages", l.NumPages())
	return &AddressSpace{m: m, pid: pid, loader: l}, nil
}

// PID returns the id of the process that owns the address space.
func (as *AddressSpace) PID() mm.PID {
	return as.pid
}

// NumPages returns the number of pages in the address space.
func (as *AddressSpace) NumPages() uint32 {
	return as.loader.NumPages()
}

// ReadVirtualMemory copies len(data) bytes starting at vaddr into data. It
// returns the number of bytes copied, which is short only if an error is
// also returned.
func (as *AddressSpace) ReadVirtualMemory(vaddr uint32, data []byte) (int, *kernel.Error) {
	return as.transfer(vaddr, data, false)
}

// WriteVirtualMemory copies data to the address space starting at vaddr. It
// stops at the first read-only or invalid page and returns the number of
// bytes written before it.
func (as *AddressSpace) WriteVirtualMemory(vaddr uint32, data []byte) (int, *kernel.Error) {
	return as.transfer(vaddr, data, true)
}

func (as *AddressSpace) transfer(vaddr uint32, data []byte, write bool) (int, *kernel.Error) {
	as.m.proc.Dispatch(as.pid)
	defer as.m.proc.Yield()

	var done int
	for done < len(data) {
		addr := uint64(vaddr) + uint64(done)
		if addr > math.MaxUint32 {
			return done, ErrInvalidPage
		}

		page := mm.PageFromAddress(uint32(addr))
		entry, err := as.translate(page)
		if err != nil {
			return done, err
		}

		if write && entry.HasFlags(mm.FlagReadOnly) {
			return done, ErrReadOnly
		}

		var (
			frameBytes = as.m.proc.FrameBytes(entry.Frame)
			offset     = mm.PageOffset(uint32(addr))
			n          int
		)

		if write {
			n = copy(frameBytes[offset:], data[done:])
			as.m.tlb.MarkDirty(page)
		} else {
			n = copy(data[done:], frameBytes[offset:])
		}

		done += n
	}

	return done, nil
}

// translate returns the TLB entry for page, resolving a TLB miss through
// the fault handler.
func (as *AddressSpace) translate(page mm.Page) (mm.PageTableEntry, *kernel.Error) {
	if entry, hit := as.m.tlb.Lookup(page); hit {
		as.m.stats.tlbHits.Add(1)
		return entry, nil
	}
	as.m.stats.tlbMisses.Add(1)

	entry, err := as.m.HandleFault(as.pid, page)
	if err != nil {
		return entry, err
	}

	// The fault handler installed the entry; look it up again so the
	// access sets its used bit.
	if cached, hit := as.m.tlb.Lookup(page); hit {
		return cached, nil
	}
	return entry, nil
}

// Exit releases every page and backing store slot of the process and
// unregisters its address space.
func (as *AddressSpace) Exit() {
	as.m.proc.Dispatch(as.pid)
	defer as.m.proc.Yield()

	as.m.ReleaseProcessPages(as.pid, as.loader.NumPages())

	as.m.faultLock.Acquire()
	delete(as.m.loaders, as.pid)
	as.m.faultLock.Release()

	log.Info("process exited", "pid", as.pid)
}
