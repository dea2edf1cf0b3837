package hal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"gophervm/kernel"
	"gophervm/kernel/kfmt"
	"gophervm/kernel/mm/vmm"
)

const (
	defaultPhysicalPages = 32
	defaultTLBSize       = 4
	defaultSwapFileName  = "swap.bin"
	defaultLogLevel      = "INFO"
)

var (
	ErrNoPhysicalPages = &kernel.Error{Module: "hal", Message: "physical_pages must be positive"}
	ErrNoTLB           = &kernel.Error{Module: "hal", Message: "tlb_size must be positive"}
	ErrNoSwapFile      = &kernel.Error{Module: "hal", Message: "swap_file must be set"}
	ErrDuplicatePID    = &kernel.Error{Module: "hal", Message: "process pids must be unique"}
)

// SectionConfig describes one section of a configured executable image.
type SectionConfig struct {
	Name     string `json:"name"`
	Pages    uint32 `json:"pages"`
	ReadOnly bool   `json:"read_only"`

	// Fill is the byte value every byte of the section is initialized with
	// when File is empty.
	Fill uint8 `json:"fill"`

	// File optionally points to a host file whose contents populate the
	// section. Section bytes past the end of the file read as zero.
	File string `json:"file"`
}

// ProcessConfig describes a simulated user process and its executable image.
type ProcessConfig struct {
	PID      uint32          `json:"pid"`
	Sections []SectionConfig `json:"sections"`
}

// Config describes the simulated machine.
type Config struct {
	PhysicalPages uint32          `json:"physical_pages"`
	TLBSize       uint32          `json:"tlb_size"`
	SwapFile      string          `json:"swap_file"`
	Replacement   string          `json:"replacement"`
	LogLevel      string          `json:"log_level"`
	LogFile       string          `json:"log_file"`
	Processes     []ProcessConfig `json:"processes"`
}

// DefaultConfig returns the configuration used for any setting that is not
// explicitly specified.
func DefaultConfig() *Config {
	return &Config{
		PhysicalPages: defaultPhysicalPages,
		TLBSize:       defaultTLBSize,
		SwapFile:      filepath.Join(os.TempDir(), defaultSwapFileName),
		Replacement:   vmm.SecondChance.String(),
		LogLevel:      defaultLogLevel,
	}
}

// LoadConfig decodes the JSON configuration file at path on top of the
// default configuration.
func LoadConfig(path string) (*Config, *kernel.Error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, kernel.Wrap("hal", "unable to open config file", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, kernel.Wrap("hal", "unable to parse config file "+path, err)
	}

	return cfg, nil
}

// Apply overrides configuration settings with values from a parsed boot
// command line. Recognized keys are pages, tlb, swap, replacement, loglevel
// and logfile; other keys are ignored.
func (c *Config) Apply(cmdLine map[string]string) *kernel.Error {
	for k, v := range cmdLine {
		switch k {
		case "pages", "tlb":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return kernel.Wrap("hal", "invalid value for boot option "+k, err)
			}

			if k == "pages" {
				c.PhysicalPages = uint32(n)
			} else {
				c.TLBSize = uint32(n)
			}
		case "swap":
			c.SwapFile = v
		case "replacement":
			c.Replacement = v
		case "loglevel":
			c.LogLevel = v
		case "logfile":
			c.LogFile = v
		}
	}

	return nil
}

// Validate checks that the configuration describes a machine that can be
// built.
func (c *Config) Validate() *kernel.Error {
	switch {
	case c.PhysicalPages == 0:
		return ErrNoPhysicalPages
	case c.TLBSize == 0:
		return ErrNoTLB
	case c.SwapFile == "":
		return ErrNoSwapFile
	}

	if _, err := vmm.ParseReplacementAlgorithm(c.Replacement); err != nil {
		return err
	}

	if _, err := kfmt.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	seen := make(map[uint32]bool, len(c.Processes))
	for _, proc := range c.Processes {
		if seen[proc.PID] {
			return ErrDuplicatePID
		}
		seen[proc.PID] = true
	}

	return nil
}
