// Package config loads runtime configuration for the userctl CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-b string   broker URL, e.g. redis://localhost:6379/0
//	-t int      request timeout (seconds)
//
// # JSON schema
//
//	{
//	  "broker_url": "redis://localhost:6379/0",
//	  "timeout": "10s"
//	}
//
// Flags end at the first non-flag argument; everything from there on is the
// command and its arguments, returned by LoadConfig.
package config
