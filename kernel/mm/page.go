package mm

import (
	"encoding/binary"
	"math"
	"strconv"
)

// PID identifies a simulated user process.
type PID uint32

// Frame describes a physical memory page index.
type Frame uint32

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint32)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uint32 {
	return uint32(f) << PageShift
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uint32) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uint32

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uint32 {
	return uint32(p) << PageShift
}

// String implements fmt.Stringer.
func (p Page) String() string {
	return "vpn " + strconv.FormatUint(uint64(p), 10)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uint32) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

// PageOffset returns the offset within the page specified by an address.
func PageOffset(addr uint32) uint32 {
	return addr & (PageSize - 1)
}

// MakeAddress combines a page number and an in-page offset into a linear
// address.
func MakeAddress(page Page, offset uint32) uint32 {
	return page.Address() | (offset & (PageSize - 1))
}

// PageKey encodes a (pid, page) pair into the byte key used by the membership
// filters that sit in front of the page and swap slot tables.
func PageKey(pid PID, page Page) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(page.Address()))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(pid))
	return buf
}
