package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/usersvc/internal/flagx"
	"github.com/dmitrijs2005/usersvc/internal/timex"
)

// JsonConfig is the shape of the JSON configuration file. Durations use
// timex.Duration, so both "10s" and integer nanoseconds are accepted.
// Pointer fields distinguish "absent" from zero values.
type JsonConfig struct {
	BrokerURL           *string         `json:"broker_url"`
	StorageBackend      *string         `json:"storage_backend"`
	DatabaseDSN         *string         `json:"database_dsn"`
	Pepper              *string         `json:"pepper"`
	CascadeQueue        *string         `json:"cascade_queue"`
	CascadeTimeout      *timex.Duration `json:"cascade_timeout"`
	ConsumerConcurrency *int            `json:"consumer_concurrency"`
	Argon2Memory        *uint32         `json:"argon2_memory"`
	Argon2Time          *uint32         `json:"argon2_time"`
	Argon2Threads       *uint8          `json:"argon2_threads"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
	MetricsAddr         *string         `json:"metrics_addr"`
}

// parseJson overlays the JSON file named by -c/-config onto config. No flag
// means no file; an unreadable or invalid file is an error.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFileFlag(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	set(&config.BrokerURL, c.BrokerURL)
	set(&config.StorageBackend, c.StorageBackend)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.Pepper, c.Pepper)
	set(&config.CascadeQueue, c.CascadeQueue)
	if c.CascadeTimeout != nil {
		config.CascadeTimeout = c.CascadeTimeout.Duration
	}
	set(&config.ConsumerConcurrency, c.ConsumerConcurrency)
	set(&config.Argon2Memory, c.Argon2Memory)
	set(&config.Argon2Time, c.Argon2Time)
	set(&config.Argon2Threads, c.Argon2Threads)
	set(&config.LogLevel, c.LogLevel)
	set(&config.LogFormat, c.LogFormat)
	set(&config.MetricsAddr, c.MetricsAddr)

	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
