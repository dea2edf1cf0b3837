package swap

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"gophervm/kernel"
	"gophervm/kernel/mm"
)

// memDevice is an in-memory BlockDevice that grows on writes.
type memDevice struct {
	data []byte
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}

	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(d.data)) {
		d.data = append(d.data, make([]byte, end-int64(len(d.data)))...)
	}
	return copy(d.data[off:], p), nil
}

// faultyDevice fails or truncates every transfer.
type faultyDevice struct {
	err   error
	short bool
}

func (d faultyDevice) ReadAt(p []byte, _ int64) (int, error) {
	if d.short {
		return len(p) / 2, nil
	}
	return 0, d.err
}

func (d faultyDevice) WriteAt(p []byte, _ int64) (int, error) {
	if d.short {
		return len(p) / 2, nil
	}
	return 0, d.err
}

func pageOf(b byte) []byte {
	return bytes.Repeat([]byte{b}, int(mm.PageSize))
}

func TestSlotOffset(t *testing.T) {
	if exp, got := int64(3*mm.PageSize), Slot(3).Offset(); got != exp {
		t.Fatalf("expected slot 3 to start at offset %d; got %d", exp, got)
	}
}

func TestAllocateOrReuse(t *testing.T) {
	s := New(&memDevice{}, 16)

	if _, found := s.Lookup(1, 0); found {
		t.Fatal("expected no slot for a page that was never swapped")
	}

	specs := []struct {
		pid     mm.PID
		page    mm.Page
		expSlot Slot
	}{
		{1, 0, 0},
		{1, 4, 1},
		{2, 0, 2},
		// Existing assignments are returned unchanged.
		{1, 4, 1},
	}

	for specIndex, spec := range specs {
		if got := s.AllocateOrReuse(spec.pid, spec.page); got != spec.expSlot {
			t.Errorf("[spec %d] expected slot %d; got %d", specIndex, spec.expSlot, got)
		}

		if got, found := s.Lookup(spec.pid, spec.page); !found || got != spec.expSlot {
			t.Errorf("[spec %d] expected Lookup to return slot %d; got %d (found: %t)", specIndex, spec.expSlot, got, found)
		}
	}

	// Releasing slots pushes them onto the recycle stack; the most recently
	// released slot is reused first.
	if !s.Release(1, 0) || !s.Release(2, 0) {
		t.Fatal("expected Release to find the assigned slots")
	}

	if s.Release(2, 0) {
		t.Fatal("expected a second Release of the same page to report false")
	}

	if _, found := s.Lookup(2, 0); found {
		t.Fatal("expected released page to have no slot")
	}

	if exp, got := (Stats{SlotsAllocated: 3, SlotsInUse: 1, SlotsRecycled: 2}), s.Stats(); got != exp {
		t.Fatalf("expected stats %+v; got %+v", exp, got)
	}

	if exp, got := Slot(2), s.AllocateOrReuse(3, 9); got != exp {
		t.Fatalf("expected recycled slot %d; got %d", exp, got)
	}

	if exp, got := Slot(0), s.AllocateOrReuse(3, 10); got != exp {
		t.Fatalf("expected recycled slot %d; got %d", exp, got)
	}

	if exp, got := Slot(3), s.AllocateOrReuse(3, 11); got != exp {
		t.Fatalf("expected the device to grow to slot %d; got %d", exp, got)
	}
}

func TestFilterBypass(t *testing.T) {
	// A tiny filter refuses inserts long before the slot map fills up;
	// lookups must keep working once it does.
	s := New(&memDevice{}, 1)

	const pages = 512
	for page := mm.Page(0); page < pages; page++ {
		s.AllocateOrReuse(1, page)
	}

	if !s.filterBypass {
		t.Fatal("expected the membership filter to overflow and be bypassed")
	}

	for page := mm.Page(0); page < pages; page++ {
		if got, found := s.Lookup(1, page); !found || got != Slot(page) {
			t.Fatalf("expected page %d to map to slot %d; got %d (found: %t)", page, page, got, found)
		}
	}
}

func TestReadWrite(t *testing.T) {
	dev := &memDevice{}
	s := New(dev, 16)

	slotA := s.AllocateOrReuse(1, 8)
	slotB := s.AllocateOrReuse(1, 9)

	if err := s.Write(slotB, pageOf(0xBB)); err != nil {
		t.Fatal(err)
	}

	if err := s.Write(slotA, pageOf(0xAA)); err != nil {
		t.Fatal(err)
	}

	if exp, got := int(2*mm.PageSize), len(dev.data); got != exp {
		t.Fatalf("expected device to hold %d bytes; got %d", exp, got)
	}

	dst := make([]byte, mm.PageSize)
	for slot, exp := range map[Slot]byte{slotA: 0xAA, slotB: 0xBB} {
		if err := s.Read(slot, dst); err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(dst, pageOf(exp)) {
			t.Fatalf("expected slot %d to contain 0x%x bytes", slot, exp)
		}
	}

	if stats := s.Stats(); stats.PagesWritten != 2 || stats.PagesRead != 2 {
		t.Fatalf("expected 2 pages written and read; got %+v", stats)
	}
}

func TestReadWriteErrors(t *testing.T) {
	var (
		devErr = errors.New("device on fire")
		page   = pageOf(1)
	)

	specs := []struct {
		name string
		dev  BlockDevice
		fn   func(*Store) *kernel.Error
	}{
		{"short buffer write", &memDevice{}, func(s *Store) *kernel.Error { return s.Write(0, page[:10]) }},
		{"short buffer read", &memDevice{}, func(s *Store) *kernel.Error { return s.Read(0, make([]byte, 10)) }},
		{"read past end", &memDevice{}, func(s *Store) *kernel.Error { return s.Read(4, make([]byte, mm.PageSize)) }},
		{"device write error", faultyDevice{err: devErr}, func(s *Store) *kernel.Error { return s.Write(0, page) }},
		{"device read error", faultyDevice{err: devErr}, func(s *Store) *kernel.Error { return s.Read(0, make([]byte, mm.PageSize)) }},
		{"short write", faultyDevice{short: true}, func(s *Store) *kernel.Error { return s.Write(0, page) }},
		{"short read", faultyDevice{short: true}, func(s *Store) *kernel.Error { return s.Read(0, make([]byte, mm.PageSize)) }},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			s := New(spec.dev, 4)

			if err := spec.fn(s); err == nil {
				t.Fatal("expected an error")
			}

			if stats := s.Stats(); stats.PagesWritten != 0 || stats.PagesRead != 0 {
				t.Fatalf("expected failed transfers not to be counted; got %+v", stats)
			}
		})
	}
}
