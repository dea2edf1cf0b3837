package vmm

import "gophervm/kernel/mm"

// FrameDescriptor records which resident page occupies a physical frame.
type FrameDescriptor struct {
	Owner mm.PID
	Page  mm.Page

	// Entry is the authoritative page table entry for the page. Copies
	// held by the TLB are written back here when they are invalidated.
	Entry mm.PageTableEntry
}

// CoreMap has one slot per physical frame. A nil slot marks a free frame.
type CoreMap struct {
	slots []*FrameDescriptor
}

// NewCoreMap returns a CoreMap with frameCount free slots.
func NewCoreMap(frameCount uint32) *CoreMap {
	return &CoreMap{slots: make([]*FrameDescriptor, frameCount)}
}

// Len returns the number of frames tracked by the map.
func (cm *CoreMap) Len() int {
	return len(cm.slots)
}

// Get returns the descriptor for frame or nil if the frame is free.
func (cm *CoreMap) Get(frame mm.Frame) *FrameDescriptor {
	return cm.slots[frame]
}

// Set records that frame is now occupied by the page described by desc.
func (cm *CoreMap) Set(frame mm.Frame, desc *FrameDescriptor) {
	cm.slots[frame] = desc
}

// Clear marks frame as free and returns its previous descriptor.
func (cm *CoreMap) Clear(frame mm.Frame) *FrameDescriptor {
	desc := cm.slots[frame]
	cm.slots[frame] = nil
	return desc
}

// WriteBack copies the used and dirty bits of a TLB entry into the
// descriptor of the frame it references. Entries that are invalid or that
// refer to a frame now holding a different page are ignored.
func (cm *CoreMap) WriteBack(entry mm.PageTableEntry) bool {
	if !entry.Valid() || int(entry.Frame) >= len(cm.slots) {
		return false
	}

	desc := cm.slots[entry.Frame]
	if desc == nil || desc.Page != entry.Page || !desc.Entry.Valid() {
		return false
	}

	desc.Entry.ClearFlags(mm.FlagUsed | mm.FlagDirty)
	desc.Entry.SetFlags(entry.Flags & (mm.FlagUsed | mm.FlagDirty))
	return true
}
