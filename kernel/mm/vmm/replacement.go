package vmm

import (
	"strings"

	"gophervm/kernel"
	"gophervm/kernel/mm"
	"gophervm/kernel/mm/pmm"
)

var (
	// ErrUnknownReplacementAlgorithm is returned by
	// ParseReplacementAlgorithm for unsupported names.
	ErrUnknownReplacementAlgorithm = &kernel.Error{Module: "vmm", Message: "unknown page replacement algorithm"}
)

// ReplacementAlgorithm selects how the EvictionPolicy picks a victim frame
// once the free-frame pool is empty.
type ReplacementAlgorithm uint8

const (
	// SecondChance is the clock algorithm: frames with the used bit set
	// have it cleared and are skipped once.
	SecondChance ReplacementAlgorithm = iota

	// FIFO evicts the frame under the clock hand without looking at the
	// used bit.
	FIFO
)

// String implements fmt.Stringer.
func (a ReplacementAlgorithm) String() string {
	switch a {
	case SecondChance:
		return "second-chance"
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseReplacementAlgorithm maps a configuration name to a
// ReplacementAlgorithm. "clock" is accepted as an alias for second-chance.
func ParseReplacementAlgorithm(name string) (ReplacementAlgorithm, *kernel.Error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "second-chance", "secondchance", "clock", "":
		return SecondChance, nil
	case "fifo":
		return FIFO, nil
	default:
		return SecondChance, ErrUnknownReplacementAlgorithm
	}
}

// EvictionPolicy hands out frames for page faults. Frames that were never
// used, or were released by exiting processes, come from a free-frame pool;
// once the pool is empty a resident frame is chosen by scanning the Core Map
// with a clock hand.
type EvictionPolicy struct {
	algorithm ReplacementAlgorithm
	coreMap   *CoreMap
	pool      *pmm.BitmapAllocator
	hand      mm.Frame
}

// NewEvictionPolicy returns a policy over coreMap whose free pool initially
// holds every frame.
func NewEvictionPolicy(algorithm ReplacementAlgorithm, coreMap *CoreMap) *EvictionPolicy {
	return &EvictionPolicy{
		algorithm: algorithm,
		coreMap:   coreMap,
		pool:      pmm.NewBitmapAllocator(uint32(coreMap.Len())),
	}
}

// Algorithm returns the replacement algorithm in use.
func (p *EvictionPolicy) Algorithm() ReplacementAlgorithm {
	return p.algorithm
}

// FindVictim returns the frame that the next page should be loaded into. The
// second return value is true when the frame came from the free pool and so
// holds no page that needs evicting.
func (p *EvictionPolicy) FindVictim() (mm.Frame, bool) {
	if frame, err := p.pool.AllocFrame(); err == nil {
		return frame, true
	}

	// Each frame passed over with the used bit set has it cleared, so the
	// second pass always finds a victim.
	frameCount := mm.Frame(p.coreMap.Len())
	for scanned := mm.Frame(0); scanned < 2*frameCount; scanned++ {
		frame := p.hand
		p.hand = (p.hand + 1) % frameCount

		desc := p.coreMap.Get(frame)
		if desc == nil {
			return frame, false
		}

		if p.algorithm == SecondChance && desc.Entry.HasFlags(mm.FlagUsed) {
			desc.Entry.ClearFlags(mm.FlagUsed)
			continue
		}

		return frame, false
	}

	frame := p.hand
	p.hand = (p.hand + 1) % frameCount
	return frame, false
}

// Release returns frame to the free pool.
func (p *EvictionPolicy) Release(frame mm.Frame) *kernel.Error {
	return p.pool.FreeFrame(frame)
}

// FreeFrames returns the number of frames in the free pool.
func (p *EvictionPolicy) FreeFrames() uint32 {
	return p.pool.FreeCount()
}

// IsFree returns true if frame is in the free pool.
func (p *EvictionPolicy) IsFree(frame mm.Frame) bool {
	return p.pool.IsFree(frame)
}
