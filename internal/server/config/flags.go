package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-b string   broker URL (e.g., "redis://localhost:6379/0")
//	-s string   storage backend: postgres or memory
//	-d string   PostgreSQL DSN
//	-p string   password pepper
//	-q string   cascade queue name
//	-t int      cascade timeout, seconds
//	-n int      consumer concurrency per queue
//	-l string   log level
//	-m string   metrics listen address
//
// The args are filtered with flagx.FilterArgs first, so -c/-config and any
// other component's flags are ignored here.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-b", "-s", "-d", "-p", "-q", "-t", "-n", "-l", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.BrokerURL, "b", config.BrokerURL, "broker URL")
	fs.StringVar(&config.StorageBackend, "s", config.StorageBackend, "storage backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Pepper, "p", config.Pepper, "password pepper")
	fs.StringVar(&config.CascadeQueue, "q", config.CascadeQueue, "cascade delete queue")

	cascadeTimeout := fs.Int("t", int(config.CascadeTimeout.Seconds()), "cascade timeout (in seconds)")

	fs.IntVar(&config.ConsumerConcurrency, "n", config.ConsumerConcurrency, "consumer concurrency per queue")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics listen address")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// only touch the duration when the flag was given, to keep sub-second
	// values from other sources intact
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.CascadeTimeout = time.Duration(*cascadeTimeout) * time.Second
		}
	})
	return nil
}
