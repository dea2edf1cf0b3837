// Package loader describes executable images and populates their pages on
// demand.
package loader

import (
	"gophervm/kernel"
	"gophervm/kernel/mm"
)

var (
	// ErrNoSuchSection is returned when an executable is asked for a section
	// or section page that does not exist.
	ErrNoSuchSection = &kernel.Error{Module: "loader", Message: "no such section page"}
)

// SectionHeader describes a section of an executable image.
type SectionHeader struct {
	Name string

	// FirstPage is the virtual page where the section begins.
	FirstPage mm.Page

	// PageCount is the section length in pages.
	PageCount uint32

	// ReadOnly is set for sections whose pages must never be written.
	ReadOnly bool
}

// Executable is implemented by executable image parsers.
type Executable interface {
	// NumSections returns the number of sections in the image.
	NumSections() int

	// Section returns the header for section index.
	Section(index int) SectionHeader

	// LoadPage copies the contents of page offset of the supplied section
	// into dst and returns the number of bytes copied. Bytes past the
	// returned count are left untouched.
	LoadPage(section int, offset uint32, dst []byte) (int, *kernel.Error)
}

type imageSection struct {
	hdr  SectionHeader
	data []byte
}

// Image is an Executable that keeps its section contents in memory.
type Image struct {
	sections []imageSection
	numPages uint32
}

// AddSection appends a section that spans pageCount pages starting right
// after the previous section. Its contents are data; any bytes past the end
// of data read as zero and data beyond pageCount pages is ignored.
func (img *Image) AddSection(name string, pageCount uint32, readOnly bool, data []byte) {
	img.sections = append(img.sections, imageSection{
		hdr: SectionHeader{
			Name:      name,
			FirstPage: mm.Page(img.numPages),
			PageCount: pageCount,
			ReadOnly:  readOnly,
		},
		data: data,
	})
	img.numPages += pageCount
}

// NumSections implements Executable.
func (img *Image) NumSections() int {
	return len(img.sections)
}

// Section implements Executable.
func (img *Image) Section(index int) SectionHeader {
	return img.sections[index].hdr
}

// LoadPage implements Executable.
func (img *Image) LoadPage(section int, offset uint32, dst []byte) (int, *kernel.Error) {
	if section < 0 || section >= len(img.sections) || offset >= img.sections[section].hdr.PageCount {
		return 0, ErrNoSuchSection
	}

	data := img.sections[section].data
	start := uint64(offset) << mm.PageShift
	if start >= uint64(len(data)) {
		return 0, nil
	}

	end := start + uint64(mm.PageSize)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}

	return copy(dst, data[start:end]), nil
}
