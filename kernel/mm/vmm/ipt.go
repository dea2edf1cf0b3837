package vmm

import (
	"gophervm/kernel/mm"

	"github.com/sarchlab/akita/v4/mem/vm"
	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// InvertedPageTable maps (pid, page) pairs to the frames that currently hold
// them. It has one row per resident page across all processes. Rows are
// stored in an akita page table; a cuckoo filter in front of it answers most
// lookups for non-resident pages without touching the table.
//
// The table is guarded by the page-fault lock.
type InvertedPageTable struct {
	table vm.PageTable

	filter       *cuckoo.Filter
	filterBypass bool

	rows       int
	rowsPerPID map[mm.PID]int
}

// NewInvertedPageTable returns an empty table sized for frameCount resident
// pages.
func NewInvertedPageTable(frameCount uint32) *InvertedPageTable {
	return &InvertedPageTable{
		table:      vm.NewPageTable(uint64(mm.PageShift)),
		filter:     cuckoo.NewFilter(uint(frameCount) * 2),
		rowsPerPID: make(map[mm.PID]int),
	}
}

// Insert records that page of pid resides in frame, replacing any previous
// row for the same page.
func (ipt *InvertedPageTable) Insert(pid mm.PID, page mm.Page, frame mm.Frame) {
	row := vm.Page{
		PID:      vm.PID(pid),
		VAddr:    uint64(page.Address()),
		PAddr:    uint64(frame.Address()),
		PageSize: uint64(mm.PageSize),
		Valid:    true,
	}

	if _, found := ipt.table.Find(row.PID, row.VAddr); found {
		ipt.table.Update(row)
		return
	}

	ipt.table.Insert(row)
	ipt.rows++
	ipt.rowsPerPID[pid]++

	if !ipt.filterBypass && !ipt.filter.Insert(mm.PageKey(pid, page)) {
		ipt.filterBypass = true
	}
}

// Lookup returns the frame holding page of pid.
func (ipt *InvertedPageTable) Lookup(pid mm.PID, page mm.Page) (mm.Frame, bool) {
	if !ipt.filterBypass && !ipt.filter.Lookup(mm.PageKey(pid, page)) {
		return mm.InvalidFrame, false
	}

	row, found := ipt.table.Find(vm.PID(pid), uint64(page.Address()))
	if !found || !row.Valid {
		return mm.InvalidFrame, false
	}

	return mm.FrameFromAddress(uint32(row.PAddr)), true
}

// Remove deletes the row for page of pid. It returns false if there was no
// such row.
func (ipt *InvertedPageTable) Remove(pid mm.PID, page mm.Page) bool {
	vAddr := uint64(page.Address())
	if _, found := ipt.table.Find(vm.PID(pid), vAddr); !found {
		return false
	}

	ipt.table.Remove(vm.PID(pid), vAddr)
	ipt.rows--
	if ipt.rowsPerPID[pid]--; ipt.rowsPerPID[pid] == 0 {
		delete(ipt.rowsPerPID, pid)
	}

	if !ipt.filterBypass {
		ipt.filter.Delete(mm.PageKey(pid, page))
	}

	return true
}

// Len returns the number of rows in the table.
func (ipt *InvertedPageTable) Len() int {
	return ipt.rows
}

// ResidentPages returns the number of rows that belong to pid.
func (ipt *InvertedPageTable) ResidentPages(pid mm.PID) int {
	return ipt.rowsPerPID[pid]
}
