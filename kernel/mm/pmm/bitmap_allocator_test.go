package pmm

import (
	"gophervm/kernel/mm"
	"testing"
)

func TestBitmapAllocatorAllocFrame(t *testing.T) {
	alloc := NewBitmapAllocator(70)

	if exp, got := uint32(70), alloc.FreeCount(); got != exp {
		t.Fatalf("expected free count to be %d; got %d", exp, got)
	}

	for exp := mm.Frame(0); exp < 70; exp++ {
		got, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[frame %d] unexpected error: %v", exp, err)
		}

		if got != exp {
			t.Fatalf("expected allocation %d to return frame %d; got %d", exp, exp, got)
		}

		if alloc.IsFree(got) {
			t.Fatalf("expected frame %d to be reserved", got)
		}
	}

	if got, err := alloc.AllocFrame(); err != ErrOutOfFrames || got.Valid() {
		t.Fatalf("expected ErrOutOfFrames and an invalid frame; got %d, %v", got, err)
	}
}

func TestBitmapAllocatorReusesLowestFreedFrame(t *testing.T) {
	alloc := NewBitmapAllocator(8)
	for i := 0; i < 8; i++ {
		if _, err := alloc.AllocFrame(); err != nil {
			t.Fatal(err)
		}
	}

	for _, frame := range []mm.Frame{6, 3} {
		if err := alloc.FreeFrame(frame); err != nil {
			t.Fatal(err)
		}
	}

	if exp, got := uint32(2), alloc.FreeCount(); got != exp {
		t.Fatalf("expected free count to be %d; got %d", exp, got)
	}

	for _, exp := range []mm.Frame{3, 6} {
		if got, err := alloc.AllocFrame(); err != nil || got != exp {
			t.Fatalf("expected to allocate frame %d; got %d (err: %v)", exp, got, err)
		}
	}
}

func TestBitmapAllocatorFreeFrameErrors(t *testing.T) {
	alloc := NewBitmapAllocator(4)

	specs := []struct {
		frame  mm.Frame
		expErr interface{}
	}{
		{4, ErrFrameOutOfRange},
		{mm.InvalidFrame, ErrFrameOutOfRange},
		{1, ErrFrameNotReserved},
	}

	for specIndex, spec := range specs {
		if err := alloc.FreeFrame(spec.frame); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if alloc.IsFree(mm.InvalidFrame) {
		t.Error("expected IsFree to return false for an out of range frame")
	}

	if exp, got := uint32(4), alloc.TotalFrames(); got != exp {
		t.Errorf("expected total frames to be %d; got %d", exp, got)
	}
}
