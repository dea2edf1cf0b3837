// Package cpu models the simulated processor: a flat physical memory array,
// a small software-visible TLB and the dispatch point where the cooperative
// scheduler hands the single instruction stream to a user process.
package cpu

import (
	"gophervm/kernel"
	"gophervm/kernel/mm"
	"gophervm/kernel/sync"
)

var (
	// ErrHalted is the value carried by the panic raised by Halt. The boot
	// code recovers it and reports the machine as halted.
	ErrHalted = &kernel.Error{Module: "cpu", Message: "machine halted"}
)

// Halt stops instruction execution. Calls to Halt never return.
func Halt() {
	panic(ErrHalted)
}

// Processor is a simulated single-core processor.
type Processor struct {
	memory []byte
	tlb    []mm.PageTableEntry

	// dispatchLock is held by the process currently running on the
	// processor.
	dispatchLock sync.Spinlock

	lastPID      mm.PID
	hasLastPID   bool
	onSwitchFn   func()
	numPhysPages uint32
}

// New returns a processor with numPhysPages frames of physical memory and
// tlbSize TLB registers. All TLB registers start out invalid.
func New(numPhysPages, tlbSize uint32) *Processor {
	return &Processor{
		memory:       make([]byte, numPhysPages*mm.PageSize),
		tlb:          make([]mm.PageTableEntry, tlbSize),
		numPhysPages: numPhysPages,
	}
}

// NumPhysPages returns the number of physical frames.
func (p *Processor) NumPhysPages() uint32 {
	return p.numPhysPages
}

// Memory returns the physical memory array.
func (p *Processor) Memory() []byte {
	return p.memory
}

// FrameBytes returns the slice of physical memory backing frame.
func (p *Processor) FrameBytes(frame mm.Frame) []byte {
	start := frame.Address()
	return p.memory[start : start+mm.PageSize : start+mm.PageSize]
}

// TLBSize returns the number of TLB registers.
func (p *Processor) TLBSize() int {
	return len(p.tlb)
}

// ReadTLBEntry returns a copy of the TLB register at index.
func (p *Processor) ReadTLBEntry(index int) mm.PageTableEntry {
	return p.tlb[index]
}

// WriteTLBEntry overwrites the TLB register at index.
func (p *Processor) WriteTLBEntry(index int, entry mm.PageTableEntry) {
	p.tlb[index] = entry
}

// SetContextSwitchHook registers a function that runs whenever the processor
// is dispatched to a process other than the one that ran last. The kernel
// uses it to flush the TLB, whose entries are not tagged with a process id.
func (p *Processor) SetContextSwitchHook(fn func()) {
	p.onSwitchFn = fn
}

// Dispatch blocks until the processor is free and then hands it to pid.
// The caller must call Yield when it stops running.
func (p *Processor) Dispatch(pid mm.PID) {
	p.dispatchLock.Acquire()

	if p.hasLastPID && p.lastPID != pid && p.onSwitchFn != nil {
		p.onSwitchFn()
	}

	p.lastPID, p.hasLastPID = pid, true
}

// Yield releases the processor so another process can be dispatched.
func (p *Processor) Yield() {
	p.dispatchLock.Release()
}

// LastDispatched returns the process that was most recently dispatched.
func (p *Processor) LastDispatched() (mm.PID, bool) {
	return p.lastPID, p.hasLastPID
}
