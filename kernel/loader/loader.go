package loader

import (
	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
)

const (
	// StackPages is the number of stack pages placed right after the last
	// section of every process.
	StackPages = 8

	// ArgumentPages is the number of pages reserved after the stack for
	// program arguments.
	ArgumentPages = 1
)

var (
	// ErrFragmentedExecutable is returned when sections do not cover a
	// contiguous range of pages starting at page 0.
	ErrFragmentedExecutable = &kernel.Error{Module: "loader", Message: "executable sections are not contiguous"}

	// ErrInvalidPage is returned for pages outside the address space layout.
	ErrInvalidPage = &kernel.Error{Module: "loader", Message: "page is outside the address space"}

	log = kfmt.Logger("loader")
)

// PageKind classifies a virtual page of a process.
type PageKind uint8

const (
	// InvalidPage lies outside the process address space.
	InvalidPage PageKind = iota

	// CodePage is backed by a section of the executable.
	CodePage

	// StackOrHeapPage starts out zero-filled.
	StackOrHeapPage
)

// String implements fmt.Stringer.
func (k PageKind) String() string {
	switch k {
	case CodePage:
		return "code"
	case StackOrHeapPage:
		return "stack"
	default:
		return "invalid"
	}
}

// Classification describes where the contents of a virtual page come from.
// Section and Offset are only meaningful for code pages.
type Classification struct {
	Kind    PageKind
	Section int
	Offset  uint32
}

// Loader populates the pages of a single executable on demand. The page to
// section mapping is computed once by New so classifying a page is a table
// lookup.
type Loader struct {
	exe Executable

	codePages     uint32
	sectionOfPage []int32
	offsetInSect  []uint32
	readOnly      []bool
}

// New builds a Loader for exe. Sections must be laid out back to back
// starting at page 0.
func New(exe Executable) (*Loader, *kernel.Error) {
	l := &Loader{exe: exe}

	for index := 0; index < exe.NumSections(); index++ {
		hdr := exe.Section(index)
		if uint32(hdr.FirstPage) != l.codePages {
			return nil, ErrFragmentedExecutable
		}

		for offset := uint32(0); offset < hdr.PageCount; offset++ {
			l.sectionOfPage = append(l.sectionOfPage, int32(index))
			l.offsetInSect = append(l.offsetInSect, offset)
			l.readOnly = append(l.readOnly, hdr.ReadOnly)
		}
		l.codePages += hdr.PageCount
	}

	return l, nil
}

// CodePages returns the number of pages covered by executable sections.
func (l *Loader) CodePages() uint32 {
	return l.codePages
}

// NumPages returns the size of the address space in pages: code and data,
// followed by the stack and the argument page.
func (l *Loader) NumPages() uint32 {
	return l.codePages + StackPages + ArgumentPages
}

// Classify reports where the contents of page come from.
func (l *Loader) Classify(page mm.Page) Classification {
	switch {
	case uint32(page) < l.codePages:
		return Classification{
			Kind:    CodePage,
			Section: int(l.sectionOfPage[page]),
			Offset:  l.offsetInSect[page],
		}
	case uint32(page) < l.NumPages():
		return Classification{Kind: StackOrHeapPage}
	default:
		return Classification{Kind: InvalidPage}
	}
}

// Materialize fills frame with the initial contents of page and reports
// whether the page must be mapped read-only. Code pages are loaded from their
// section and zero-padded; stack pages are zero-filled.
func (l *Loader) Materialize(page mm.Page, frame []byte) (bool, *kernel.Error) {
	class := l.Classify(page)

	switch class.Kind {
	case CodePage:
		n, err := l.exe.LoadPage(class.Section, class.Offset, frame)
		if err != nil {
			return false, err
		}
		kernel.Memset(frame[n:], 0)

		log.Debug("loaded section page",
			"page", page, "section", l.exe.Section(class.Section).Name, "offset", class.Offset, "bytes", n)
		return l.readOnly[page], nil
	case StackOrHeapPage:
		kernel.Memset(frame, 0)
		log.Debug("zero-filled page", "page", page)
		return false, nil
	default:
		return false, ErrInvalidPage
	}
}

// ReadOnly returns true if page belongs to a read-only section.
func (l *Loader) ReadOnly(page mm.Page) bool {
	return uint32(page) < l.codePages && l.readOnly[page]
}
