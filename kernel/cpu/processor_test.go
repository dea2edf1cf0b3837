package cpu

import (
	"gophervm/kernel/mm"
	"testing"
)

func TestHalt(t *testing.T) {
	defer func() {
		if got := recover(); got != ErrHalted {
			t.Fatalf("expected Halt to panic with ErrHalted; got %v", got)
		}
	}()

	Halt()
	t.Fatal("expected Halt not to return")
}

func TestProcessorMemory(t *testing.T) {
	p := New(4, 2)

	if exp, got := uint32(4), p.NumPhysPages(); got != exp {
		t.Fatalf("expected %d physical pages; got %d", exp, got)
	}

	if exp, got := int(4*mm.PageSize), len(p.Memory()); got != exp {
		t.Fatalf("expected memory size to be %d; got %d", exp, got)
	}

	frame := p.FrameBytes(mm.Frame(2))
	if exp, got := int(mm.PageSize), len(frame); got != exp {
		t.Fatalf("expected frame slice length to be %d; got %d", exp, got)
	}

	frame[0] = 0xAA
	if got := p.Memory()[2*mm.PageSize]; got != 0xAA {
		t.Fatalf("expected frame slice to alias physical memory; got 0x%x", got)
	}

	// Appending to a frame slice must never spill into the next frame
	_ = append(frame, 0xFF)
	if got := p.Memory()[3*mm.PageSize]; got != 0 {
		t.Fatalf("expected append to leave frame 3 untouched; got 0x%x", got)
	}
}

func TestProcessorTLB(t *testing.T) {
	p := New(4, 2)

	if exp, got := 2, p.TLBSize(); got != exp {
		t.Fatalf("expected TLB size to be %d; got %d", exp, got)
	}

	for i := 0; i < p.TLBSize(); i++ {
		if p.ReadTLBEntry(i).Valid() {
			t.Errorf("expected TLB entry %d to start out invalid", i)
		}
	}

	entry := mm.PageTableEntry{Page: 1, Frame: 3, Flags: mm.FlagValid}
	p.WriteTLBEntry(1, entry)
	if got := p.ReadTLBEntry(1); got != entry {
		t.Fatalf("expected TLB entry 1 to be %v; got %v", entry, got)
	}
}

func TestProcessorDispatch(t *testing.T) {
	var switchCount int
	p := New(1, 1)
	p.SetContextSwitchHook(func() { switchCount++ })

	specs := []struct {
		pid            mm.PID
		expSwitchCount int
	}{
		{1, 0},
		{1, 0},
		{2, 1},
		{1, 2},
		{1, 2},
	}

	for specIndex, spec := range specs {
		p.Dispatch(spec.pid)
		if got, _ := p.LastDispatched(); got != spec.pid {
			t.Errorf("[spec %d] expected last dispatched pid to be %d; got %d", specIndex, spec.pid, got)
		}
		p.Yield()

		if switchCount != spec.expSwitchCount {
			t.Errorf("[spec %d] expected context switch count to be %d; got %d", specIndex, spec.expSwitchCount, switchCount)
		}
	}
}
