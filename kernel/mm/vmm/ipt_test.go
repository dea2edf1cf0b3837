package vmm

import (
	"gophervm/kernel/mm"
	"testing"
)

func TestInvertedPageTable(t *testing.T) {
	ipt := NewInvertedPageTable(4)

	if _, found := ipt.Lookup(1, 0); found {
		t.Fatal("expected empty table lookup to fail")
	}

	ipt.Insert(1, 0, 3)
	ipt.Insert(1, 5, 0)
	ipt.Insert(2, 0, 1)

	specs := []struct {
		pid      mm.PID
		page     mm.Page
		expFrame mm.Frame
		expFound bool
	}{
		{1, 0, 3, true},
		{1, 5, 0, true},
		{2, 0, 1, true},
		{2, 5, mm.InvalidFrame, false},
		{3, 0, mm.InvalidFrame, false},
	}

	for specIndex, spec := range specs {
		frame, found := ipt.Lookup(spec.pid, spec.page)
		if found != spec.expFound || frame != spec.expFrame {
			t.Errorf("[spec %d] expected (%d, %t); got (%d, %t)", specIndex, spec.expFrame, spec.expFound, frame, found)
		}
	}

	if exp, got := 3, ipt.Len(); got != exp {
		t.Fatalf("expected %d rows; got %d", exp, got)
	}

	if exp, got := 2, ipt.ResidentPages(1); got != exp {
		t.Fatalf("expected pid 1 to have %d resident pages; got %d", exp, got)
	}

	// Re-inserting a page replaces its row.
	ipt.Insert(1, 5, 2)
	if frame, _ := ipt.Lookup(1, 5); frame != 2 {
		t.Fatalf("expected updated row to point to frame 2; got %d", frame)
	}

	if exp, got := 3, ipt.Len(); got != exp {
		t.Fatalf("expected update to keep %d rows; got %d", exp, got)
	}

	if !ipt.Remove(1, 0) {
		t.Fatal("expected Remove to find the row")
	}

	if ipt.Remove(1, 0) {
		t.Fatal("expected a second Remove to report false")
	}

	if _, found := ipt.Lookup(1, 0); found {
		t.Fatal("expected removed row to be gone")
	}

	if exp, got := 1, ipt.ResidentPages(1); got != exp {
		t.Fatalf("expected pid 1 to have %d resident page; got %d", exp, got)
	}

	ipt.Remove(1, 5)
	if exp, got := 0, ipt.ResidentPages(1); got != exp {
		t.Fatalf("expected pid 1 to have no resident pages; got %d", got)
	}
}

func TestInvertedPageTableFilterOverflow(t *testing.T) {
	ipt := NewInvertedPageTable(1)

	const rows = 256
	for page := mm.Page(0); page < rows; page++ {
		ipt.Insert(1, page, mm.Frame(page))
	}

	if !ipt.filterBypass {
		t.Fatal("expected the membership filter to overflow")
	}

	for page := mm.Page(0); page < rows; page++ {
		if frame, found := ipt.Lookup(1, page); !found || frame != mm.Frame(page) {
			t.Fatalf("expected page %d to map to frame %d; got %d (found: %t)", page, page, frame, found)
		}
	}
}
