package loader

import (
	"bytes"
	"testing"

	"gophervm/kernel"
	"gophervm/kernel/mm"
)

// fragmentedImage reports sections that leave a hole in the address space.
type fragmentedImage struct{ Image }

func (img *fragmentedImage) Section(index int) SectionHeader {
	hdr := img.Image.Section(index)
	hdr.FirstPage += mm.Page(index)
	return hdr
}

func testImage() *Image {
	var img Image
	img.AddSection(".text", 2, true, bytes.Repeat([]byte{0xC0}, int(mm.PageSize)+10))
	img.AddSection(".data", 1, false, []byte("hello"))
	return &img
}

func TestImageLoadPage(t *testing.T) {
	img := testImage()

	if exp, got := 2, img.NumSections(); got != exp {
		t.Fatalf("expected %d sections; got %d", exp, got)
	}

	if hdr := img.Section(1); hdr.Name != ".data" || hdr.FirstPage != 2 || hdr.PageCount != 1 || hdr.ReadOnly {
		t.Fatalf("unexpected header for .data: %+v", hdr)
	}

	specs := []struct {
		section int
		offset  uint32
		expN    int
		expErr  *kernel.Error
	}{
		{0, 0, int(mm.PageSize), nil},
		{0, 1, 10, nil},
		{1, 0, 5, nil},
		{1, 1, 0, ErrNoSuchSection},
		{2, 0, 0, ErrNoSuchSection},
		{-1, 0, 0, ErrNoSuchSection},
	}

	dst := make([]byte, mm.PageSize)
	for specIndex, spec := range specs {
		n, err := img.LoadPage(spec.section, spec.offset, dst)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}

		if n != spec.expN {
			t.Errorf("[spec %d] expected to copy %d bytes; copied %d", specIndex, spec.expN, n)
		}
	}
}

func TestNew(t *testing.T) {
	l, err := New(testImage())
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uint32(3), l.CodePages(); got != exp {
		t.Errorf("expected %d code pages; got %d", exp, got)
	}

	if exp, got := uint32(3+StackPages+ArgumentPages), l.NumPages(); got != exp {
		t.Errorf("expected %d pages; got %d", exp, got)
	}

	frag := &fragmentedImage{*testImage()}
	if _, err := New(frag); err != ErrFragmentedExecutable {
		t.Fatalf("expected ErrFragmentedExecutable; got %v", err)
	}
}

func TestClassify(t *testing.T) {
	l, err := New(testImage())
	if err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		page mm.Page
		exp  Classification
	}{
		{0, Classification{Kind: CodePage, Section: 0, Offset: 0}},
		{1, Classification{Kind: CodePage, Section: 0, Offset: 1}},
		{2, Classification{Kind: CodePage, Section: 1, Offset: 0}},
		{3, Classification{Kind: StackOrHeapPage}},
		{mm.Page(3 + StackPages), Classification{Kind: StackOrHeapPage}},
		{mm.Page(3 + StackPages + ArgumentPages), Classification{Kind: InvalidPage}},
		{1 << 20, Classification{Kind: InvalidPage}},
	}

	for specIndex, spec := range specs {
		if got := l.Classify(spec.page); got != spec.exp {
			t.Errorf("[spec %d] expected %v page %+v; got %+v", specIndex, spec.exp.Kind, spec.exp, got)
		}
	}
}

func TestMaterialize(t *testing.T) {
	l, err := New(testImage())
	if err != nil {
		t.Fatal(err)
	}

	frame := make([]byte, mm.PageSize)
	junk := func() {
		for i := range frame {
			frame[i] = 0xFF
		}
	}

	t.Run("read-only code page", func(t *testing.T) {
		junk()
		readOnly, err := l.Materialize(1, frame)
		if err != nil {
			t.Fatal(err)
		}

		if !readOnly {
			t.Error("expected .text page to be read-only")
		}

		exp := make([]byte, mm.PageSize)
		copy(exp, bytes.Repeat([]byte{0xC0}, 10))
		if !bytes.Equal(frame, exp) {
			t.Error("expected the tail of the section page to be zero-padded")
		}
	})

	t.Run("writable data page", func(t *testing.T) {
		junk()
		readOnly, err := l.Materialize(2, frame)
		if err != nil {
			t.Fatal(err)
		}

		if readOnly {
			t.Error("expected .data page to be writable")
		}

		if !bytes.HasPrefix(frame, []byte("hello\x00")) {
			t.Errorf("expected page to start with the section bytes; got %q", frame[:8])
		}
	})

	t.Run("stack page", func(t *testing.T) {
		junk()
		readOnly, err := l.Materialize(4, frame)
		if err != nil {
			t.Fatal(err)
		}

		if readOnly {
			t.Error("expected stack page to be writable")
		}

		if !bytes.Equal(frame, make([]byte, mm.PageSize)) {
			t.Error("expected stack page to be zero-filled")
		}
	})

	t.Run("invalid page", func(t *testing.T) {
		if _, err := l.Materialize(mm.Page(l.NumPages()), frame); err != ErrInvalidPage {
			t.Fatalf("expected ErrInvalidPage; got %v", err)
		}
	})
}

func TestPageKindString(t *testing.T) {
	for kind, exp := range map[PageKind]string{CodePage: "code", StackOrHeapPage: "stack", InvalidPage: "invalid"} {
		if got := kind.String(); got != exp {
			t.Errorf("expected %q; got %q", exp, got)
		}
	}
}
