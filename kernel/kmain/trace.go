package kmain

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/vmm"
)

var (
	// ErrMalformedTrace is returned for trace lines that cannot be parsed.
	ErrMalformedTrace = &kernel.Error{Module: "kmain", Message: "malformed trace line"}
)

// runner replays a trace of memory accesses against the running processes.
type runner struct {
	m     *vmm.Manager
	procs map[mm.PID]*vmm.AddressSpace
}

// replay executes one operation per trace line. Supported operations are:
//
//	r <pid> <vaddr> <len>          read len bytes
//	w <pid> <vaddr> <byte> [count] write count copies of byte (default 1)
//	exit <pid>                     terminate the process
//	stats                          print memory subsystem counters
//
// Numbers may be given in decimal or with a 0x prefix. Empty lines and lines
// starting with '#' are skipped.
func (r *runner) replay(trace io.Reader) *kernel.Error {
	scanner := bufio.NewScanner(trace)

	for lineNum := 1; scanner.Scan(); lineNum++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		if err := r.exec(fields); err != nil {
			return kernel.Wrap(err.Module, "line "+strconv.Itoa(lineNum)+": "+err.Message, nil)
		}
	}

	if err := scanner.Err(); err != nil {
		return kernel.Wrap("kmain", "unable to read trace", err)
	}
	return nil
}

func (r *runner) exec(fields []string) *kernel.Error {
	var args []uint32
	for _, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 0, 32)
		if err != nil {
			return ErrMalformedTrace
		}
		args = append(args, uint32(v))
	}

	switch op := fields[0]; {
	case op == "stats" && len(args) == 0:
		printStats(r.m)
		return nil
	case op == "exit" && len(args) == 1:
		if as := r.process(args[0]); as != nil {
			r.terminate(as, "exited")
		}
		return nil
	case op == "r" && len(args) == 3:
		if as := r.process(args[0]); as != nil {
			r.read(as, args[1], args[2])
		}
		return nil
	case op == "w" && (len(args) == 3 || len(args) == 4):
		if args[2] > 0xFF {
			return ErrMalformedTrace
		}

		count := uint32(1)
		if len(args) == 4 {
			count = args[3]
		}

		if as := r.process(args[0]); as != nil {
			r.write(as, args[1], byte(args[2]), count)
		}
		return nil
	default:
		return ErrMalformedTrace
	}
}

// process returns the running process with the supplied pid. Operations on
// processes that are not running are skipped.
func (r *runner) process(pid uint32) *vmm.AddressSpace {
	as := r.procs[mm.PID(pid)]
	if as == nil {
		log.Warn("skipping operation for process that is not running", "pid", pid)
	}
	return as
}

func (r *runner) read(as *vmm.AddressSpace, vaddr, length uint32) {
	buf := make([]byte, length)

	n, err := as.ReadVirtualMemory(vaddr, buf)
	if err != nil {
		r.fault(as, vaddr+uint32(n), err)
		return
	}

	kfmt.Printf("[pid %d] r 0x%x: % x\n", as.PID(), vaddr, buf)
}

func (r *runner) write(as *vmm.AddressSpace, vaddr uint32, value byte, count uint32) {
	data := make([]byte, count)
	for i := range data {
		data[i] = value
	}

	n, err := as.WriteVirtualMemory(vaddr, data)
	if err != nil {
		r.fault(as, vaddr+uint32(n), err)
		return
	}

	kfmt.Printf("[pid %d] w 0x%x: %d bytes\n", as.PID(), vaddr, n)
}

// fault terminates a process after an access it was not allowed to make.
func (r *runner) fault(as *vmm.AddressSpace, vaddr uint32, err *kernel.Error) {
	log.Warn("process fault", "pid", as.PID(), "vaddr", vaddr, "err", err.Message)
	r.terminate(as, "killed: "+err.Message)
}

func (r *runner) terminate(as *vmm.AddressSpace, reason string) {
	as.Exit()
	delete(r.procs, as.PID())
	kfmt.Printf("[pid %d] %s\n", as.PID(), reason)
}
