// Package swap implements the backing store that holds evicted dirty pages.
//
// The backing device is treated as a flat array of page-sized slots; slot N
// occupies bytes [N*PageSize, (N+1)*PageSize). The mapping from (pid, page)
// to slot lives only in memory and is rebuilt from scratch on every run.
package swap

import (
	"io"

	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

var (
	// ErrIO is returned when the backing device fails or transfers fewer
	// bytes than a full page.
	ErrIO = &kernel.Error{Module: "swap", Message: "backing store I/O error"}

	// ErrBufferSize is returned when the supplied buffer is not exactly one
	// page long.
	ErrBufferSize = &kernel.Error{Module: "swap", Message: "buffer must be exactly one page"}

	log = kfmt.Logger("swap")
)

// BlockDevice is a block-addressable device that can back the swap area.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// Slot is the index of a page-sized region of the backing device.
type Slot uint32

// Offset returns the byte offset of the slot on the backing device.
func (s Slot) Offset() int64 {
	return int64(s) << mm.PageShift
}

// Stats summarizes the backing store state.
type Stats struct {
	// SlotsAllocated is the number of slots the backing device has grown to.
	SlotsAllocated uint32

	// SlotsInUse is the number of slots that hold a page.
	SlotsInUse uint32

	// SlotsRecycled is the number of released slots waiting for reuse.
	SlotsRecycled uint32

	PagesWritten uint64
	PagesRead    uint64
}

type slotKey struct {
	pid  mm.PID
	page mm.Page
}

// Store maps (pid, page) pairs to slots on a backing device. A Store is not
// safe for concurrent use; callers serialize access with the page-fault lock.
type Store struct {
	dev BlockDevice

	slots    map[slotKey]Slot
	recycled []Slot
	nextSlot Slot

	// filter answers "was this page ever swapped out?" for every page
	// fault without touching the slot map. Once an insert is refused the
	// filter can no longer rule pages out and is bypassed.
	filter       *cuckoo.Filter
	filterBypass bool

	pagesWritten uint64
	pagesRead    uint64
}

// New returns a Store that keeps its slots on dev. filterCapacity sizes the
// membership filter and should be on the order of the number of pages the
// store is expected to hold.
func New(dev BlockDevice, filterCapacity uint) *Store {
	if filterCapacity == 0 {
		filterCapacity = 1
	}

	return &Store{
		dev:    dev,
		slots:  make(map[slotKey]Slot),
		filter: cuckoo.NewFilter(filterCapacity),
	}
}

// Lookup returns the slot that holds pid's copy of page, if one exists.
func (s *Store) Lookup(pid mm.PID, page mm.Page) (Slot, bool) {
	if !s.filterBypass && !s.filter.Lookup(mm.PageKey(pid, page)) {
		return 0, false
	}

	slot, found := s.slots[slotKey{pid, page}]
	return slot, found
}

// AllocateOrReuse returns the slot already assigned to (pid, page). If there
// is none, a previously released slot is reused or the device grows by one
// slot.
func (s *Store) AllocateOrReuse(pid mm.PID, page mm.Page) Slot {
	key := slotKey{pid, page}
	if slot, found := s.slots[key]; found {
		return slot
	}

	var slot Slot
	if n := len(s.recycled); n != 0 {
		slot = s.recycled[n-1]
		s.recycled = s.recycled[:n-1]
	} else {
		slot = s.nextSlot
		s.nextSlot++
	}

	s.slots[key] = slot
	if !s.filterBypass && !s.filter.Insert(mm.PageKey(pid, page)) {
		log.Warn("membership filter full; bypassing", "pid", pid, "page", page)
		s.filterBypass = true
	}

	log.Debug("allocated slot", "pid", pid, "page", page, "slot", slot)
	return slot
}

// Release discards the slot assigned to (pid, page) and makes it available
// for reuse. It returns false if no slot was assigned.
func (s *Store) Release(pid mm.PID, page mm.Page) bool {
	key := slotKey{pid, page}
	slot, found := s.slots[key]
	if !found {
		return false
	}

	delete(s.slots, key)
	if !s.filterBypass {
		s.filter.Delete(mm.PageKey(pid, page))
	}
	s.recycled = append(s.recycled, slot)

	log.Debug("released slot", "pid", pid, "page", page, "slot", slot)
	return true
}

// Write stores a page worth of data from src into slot.
func (s *Store) Write(slot Slot, src []byte) *kernel.Error {
	if len(src) != int(mm.PageSize) {
		return ErrBufferSize
	}

	n, err := s.dev.WriteAt(src, slot.Offset())
	if err != nil {
		return kernel.Wrap(ErrIO.Module, ErrIO.Message, err)
	}
	if n != len(src) {
		return ErrIO
	}

	s.pagesWritten++
	return nil
}

// Read loads a page worth of data from slot into dst.
func (s *Store) Read(slot Slot, dst []byte) *kernel.Error {
	if len(dst) != int(mm.PageSize) {
		return ErrBufferSize
	}

	n, err := s.dev.ReadAt(dst, slot.Offset())
	if n == len(dst) {
		// io.ReaderAt may report io.EOF together with a full read at
		// the end of the device.
		s.pagesRead++
		return nil
	}

	if err != nil && err != io.EOF {
		return kernel.Wrap(ErrIO.Module, ErrIO.Message, err)
	}
	return ErrIO
}

// Stats returns a snapshot of the backing store counters.
func (s *Store) Stats() Stats {
	return Stats{
		SlotsAllocated: uint32(s.nextSlot),
		SlotsInUse:     uint32(len(s.slots)),
		SlotsRecycled:  uint32(len(s.recycled)),
		PagesWritten:   s.pagesWritten,
		PagesRead:      s.pagesRead,
	}
}
