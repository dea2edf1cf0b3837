// Package pmm tracks physical frames that have never been handed to a
// resident page, or that were returned when their owning process exited.
package pmm

import (
	"math/bits"

	"gophervm/kernel"
	"gophervm/kernel/mm"
)

var (
	// ErrOutOfFrames is returned by AllocFrame when every frame is in use.
	ErrOutOfFrames = &kernel.Error{Module: "bitmap_alloc", Message: "out of free frames"}

	// ErrFrameNotReserved is returned when freeing a frame that is already
	// free.
	ErrFrameNotReserved = &kernel.Error{Module: "bitmap_alloc", Message: "frame is not reserved"}

	// ErrFrameOutOfRange is returned for frames outside the managed range.
	ErrFrameOutOfRange = &kernel.Error{Module: "bitmap_alloc", Message: "frame out of range"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree            = true
)

// BitmapAllocator tracks free frames using a bitmap with one bit per frame.
// A set bit marks a reserved frame.
type BitmapAllocator struct {
	// totalFrames is the number of frames managed by the allocator.
	totalFrames uint32

	// freeCount tracks the available frames so that AllocFrame can bail
	// out without scanning the bitmap.
	freeCount uint32

	freeBitmap []uint64
}

// NewBitmapAllocator returns an allocator where frames [0, frameCount) are
// all free.
func NewBitmapAllocator(frameCount uint32) *BitmapAllocator {
	return &BitmapAllocator{
		totalFrames: frameCount,
		freeCount:   frameCount,
		freeBitmap:  make([]uint64, (frameCount+63)>>6),
	}
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame.
func (alloc *BitmapAllocator) markFrame(frame mm.Frame, flag markAs) {
	block := uint32(frame) >> 6
	mask := uint64(1 << (63 - (uint32(frame) & 63)))

	switch flag {
	case markFree:
		alloc.freeBitmap[block] &^= mask
		alloc.freeCount++
	case markReserved:
		alloc.freeBitmap[block] |= mask
		alloc.freeCount--
	}
}

// AllocFrame reserves and returns the lowest-numbered free frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.freeCount == 0 {
		return mm.InvalidFrame, ErrOutOfFrames
	}

	for blockIndex, block := range alloc.freeBitmap {
		if block == ^uint64(0) {
			continue
		}

		frame := mm.Frame(uint32(blockIndex<<6) + uint32(bits.LeadingZeros64(^block)))
		if uint32(frame) >= alloc.totalFrames {
			break
		}

		alloc.markFrame(frame, markReserved)
		return frame, nil
	}

	return mm.InvalidFrame, ErrOutOfFrames
}

// FreeFrame returns a previously reserved frame to the allocator.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if uint32(frame) >= alloc.totalFrames {
		return ErrFrameOutOfRange
	}

	if alloc.IsFree(frame) {
		return ErrFrameNotReserved
	}

	alloc.markFrame(frame, markFree)
	return nil
}

// IsFree returns true if frame is managed by the allocator and not reserved.
func (alloc *BitmapAllocator) IsFree(frame mm.Frame) bool {
	if uint32(frame) >= alloc.totalFrames {
		return false
	}

	mask := uint64(1 << (63 - (uint32(frame) & 63)))
	return alloc.freeBitmap[uint32(frame)>>6]&mask == 0
}

// FreeCount returns the number of frames that can still be allocated.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	return alloc.freeCount
}

// TotalFrames returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalFrames() uint32 {
	return alloc.totalFrames
}
