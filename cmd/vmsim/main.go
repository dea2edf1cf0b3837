// Command vmsim boots the simulated machine and replays a memory access trace
// against the processes described by its configuration.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gophervm/kernel"
	"gophervm/kernel/hal"
	"gophervm/kernel/kmain"
)

var (
	configPath = flag.String("config", "", "path to a JSON machine configuration")
	tracePath  = flag.String("trace", "", "path to the trace to replay (default: stdin)")
	cmdLine    = flag.String("cmdline", "", `boot options overriding the configuration, e.g. "pages=4 tlb=2"`)
)

func exit(err *kernel.Error) {
	fmt.Fprintf(os.Stderr, "[%s] error: %s\n", err.Module, err.Message)
	os.Exit(1)
}

func loadConfig() (*hal.Config, *kernel.Error) {
	cfg := hal.DefaultConfig()
	if *configPath != "" {
		var err *kernel.Error
		if cfg, err = hal.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Apply(hal.ParseCmdLine(*cmdLine)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		exit(err)
	}

	var trace io.Reader = os.Stdin
	if *tracePath != "" {
		f, openErr := os.Open(*tracePath)
		if openErr != nil {
			exit(kernel.Wrap("vmsim", "unable to open trace", openErr))
		}
		defer f.Close()
		trace = f
	}

	if err = kmain.Kmain(cfg, trace, os.Stdout); err != nil {
		exit(err)
	}
}
