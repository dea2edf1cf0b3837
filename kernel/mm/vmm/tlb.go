package vmm

import (
	"gophervm/kernel/cpu"
	"gophervm/kernel/mm"
)

// TLBController manages the processor's TLB registers. Entries are picked
// for replacement in the order they were installed; a TLB hit does not
// refresh an entry's position.
//
// The TLB holds copies of Core Map entries. Whenever a valid register is
// overwritten or invalidated, its used and dirty bits are written back to
// the Core Map first.
type TLBController struct {
	proc    *cpu.Processor
	coreMap *CoreMap

	// recency lists register indices from least to most recently
	// installed.
	recency []int
}

// NewTLBController returns a controller for the TLB registers of proc.
func NewTLBController(proc *cpu.Processor, coreMap *CoreMap) *TLBController {
	return &TLBController{
		proc:    proc,
		coreMap: coreMap,
		recency: make([]int, 0, proc.TLBSize()),
	}
}

// find returns the register that holds a valid entry for page or -1.
func (c *TLBController) find(page mm.Page) int {
	for i := 0; i < c.proc.TLBSize(); i++ {
		if entry := c.proc.ReadTLBEntry(i); entry.Valid() && entry.Page == page {
			return i
		}
	}

	return -1
}

// Lookup returns the valid TLB entry for page and sets its used bit, the way
// the MMU does on every access.
func (c *TLBController) Lookup(page mm.Page) (mm.PageTableEntry, bool) {
	index := c.find(page)
	if index == -1 {
		return mm.PageTableEntry{}, false
	}

	entry := c.proc.ReadTLBEntry(index)
	entry.SetFlags(mm.FlagUsed)
	c.proc.WriteTLBEntry(index, entry)
	return entry, true
}

// MarkDirty sets the used and dirty bits of the TLB entry for page. It
// returns false if page has no valid entry or the entry is read-only.
func (c *TLBController) MarkDirty(page mm.Page) bool {
	index := c.find(page)
	if index == -1 {
		return false
	}

	entry := c.proc.ReadTLBEntry(index)
	if entry.HasFlags(mm.FlagReadOnly) {
		return false
	}

	entry.SetFlags(mm.FlagUsed | mm.FlagDirty)
	c.proc.WriteTLBEntry(index, entry)
	return true
}

// Install loads entry into the TLB and returns the register index used. An
// existing entry for the same page is replaced in place; otherwise an invalid
// register is preferred over evicting the least recently installed one.
func (c *TLBController) Install(entry mm.PageTableEntry) int {
	index := c.find(entry.Page)
	if index == -1 {
		for i := 0; i < c.proc.TLBSize(); i++ {
			if !c.proc.ReadTLBEntry(i).Valid() {
				index = i
				break
			}
		}
	}

	if index == -1 {
		index = 0
		if len(c.recency) != 0 {
			index = c.recency[0]
		}
	}

	c.coreMap.WriteBack(c.proc.ReadTLBEntry(index))
	c.proc.WriteTLBEntry(index, entry)
	c.touch(index)

	return index
}

// touch moves index to the top of the recency stack.
func (c *TLBController) touch(index int) {
	c.forget(index)
	c.recency = append(c.recency, index)
}

// InvalidateAll writes back and invalidates every valid register.
func (c *TLBController) InvalidateAll() {
	for i := 0; i < c.proc.TLBSize(); i++ {
		entry := c.proc.ReadTLBEntry(i)
		if !entry.Valid() {
			continue
		}

		c.coreMap.WriteBack(entry)
		entry.ClearFlags(mm.FlagValid)
		c.proc.WriteTLBEntry(i, entry)
	}

	c.recency = c.recency[:0]
}

// InvalidateFrame invalidates any register that maps to frame, optionally
// writing it back to the Core Map first. It returns the number of registers
// that were invalidated.
func (c *TLBController) InvalidateFrame(frame mm.Frame, writeBack bool) int {
	var count int

	for i := 0; i < c.proc.TLBSize(); i++ {
		entry := c.proc.ReadTLBEntry(i)
		if !entry.Valid() || entry.Frame != frame {
			continue
		}

		if writeBack {
			c.coreMap.WriteBack(entry)
		}
		entry.ClearFlags(mm.FlagValid)
		c.proc.WriteTLBEntry(i, entry)
		c.forget(i)
		count++
	}

	return count
}

// forget removes index from the recency stack.
func (c *TLBController) forget(index int) {
	for i, slot := range c.recency {
		if slot == index {
			c.recency = append(c.recency[:i], c.recency[i+1:]...)
			return
		}
	}
}
