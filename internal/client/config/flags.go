package config

import (
	"flag"
	"fmt"
	"io"
	"time"
)

// valueFlags take an argument.
var valueFlags = map[string]bool{"-b": true, "-t": true, "-c": true, "-config": true}

// globalArgs returns the leading flags of args, stopping at the command.
func globalArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) == 0 || a[0] != '-' {
			return args[:i]
		}
		if valueFlags[a] {
			i++
		}
	}
	return args
}

// parseFlags populates Config from the leading flags and returns the rest.
//
//	-b string   broker URL
//	-t int      request timeout in seconds
//	-c string   JSON config file (read by parseJson)
func parseFlags(cfg *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("userctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BrokerURL, "b", cfg.BrokerURL, "broker URL")
	timeout := fs.Int("t", int(cfg.Timeout.Seconds()), "request timeout (in seconds)")

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to JSON config file")
	fs.StringVar(&ignored, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.Timeout = time.Duration(*timeout) * time.Second
		}
	})
	return fs.Args(), nil
}
