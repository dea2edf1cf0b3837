package mm

import (
	"strconv"
	"strings"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint8

const (
	// FlagValid is set when the entry holds a usable translation. Entries
	// without this flag must never be consulted for address translation.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagReadOnly is set for pages that cannot be written to.
	FlagReadOnly

	// FlagUsed is set by the processor whenever the page is accessed.
	FlagUsed

	// FlagDirty is set by the processor whenever the page is written to.
	FlagDirty
)

// PageTableEntry describes the translation of a virtual page to a physical
// frame together with its status flags. Used and dirty are only meaningful
// when the entry is valid.
type PageTableEntry struct {
	Page  Page
	Frame Frame
	Flags PageTableEntryFlag
}

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (pte.Flags & flags) == flags
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (pte.Flags & flags) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *PageTableEntry) SetFlags(flags PageTableEntryFlag) {
	pte.Flags |= flags
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *PageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	pte.Flags &^= flags
}

// Valid returns true if the entry can be used for translation.
func (pte PageTableEntry) Valid() bool {
	return pte.HasFlags(FlagValid)
}

// String implements fmt.Stringer.
func (pte PageTableEntry) String() string {
	var sb strings.Builder
	sb.WriteString(pte.Page.String())
	sb.WriteString(" -> ppn ")
	sb.WriteString(strconv.FormatUint(uint64(pte.Frame), 10))
	for _, f := range []struct {
		flag PageTableEntryFlag
		name string
	}{
		{FlagValid, " valid"},
		{FlagReadOnly, " ro"},
		{FlagUsed, " used"},
		{FlagDirty, " dirty"},
	} {
		if pte.HasFlags(f.flag) {
			sb.WriteString(f.name)
		}
	}
	return sb.String()
}
