package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uint32(10)

	// PageSize defines the simulated processor's page size in bytes.
	PageSize = uint32(1 << PageShift)
)
