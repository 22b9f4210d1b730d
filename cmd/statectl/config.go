// Package main provides statectl, a CLI for inspecting the durable state a
// node's consensus participant has recorded in its data directory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backends selectable via --backend or the config file.
const (
	backendFile = "file"
	backendBolt = "bolt"
)

// Config holds parsed configuration for statectl.
type Config struct {
	DataDir     string // Node data directory (--dir)
	Backend     string // Storage backend, "file" or "bolt" (--backend)
	ClusterName string // Cluster name applied to loaded state (--cluster-name)
	ConfigFile  string // Optional TOML config file (--config)
	Verbose     bool   // Enable debug logging (--verbose)
}

// fileConfig mirrors the TOML config file layout. Flags take precedence
// over file values.
type fileConfig struct {
	DataDir     string `toml:"data_dir"`
	Backend     string `toml:"backend"`
	ClusterName string `toml:"cluster_name"`
}

// ParseFlags parses command-line flags into a Config plus the remaining
// positional arguments (the command). It uses the provided flag.FlagSet to
// allow testing with custom arguments.
func ParseFlags(fs *flag.FlagSet, args []string) (*Config, []string, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.DataDir, "dir", "", "Node data directory (required)")
	fs.StringVar(&cfg.Backend, "backend", backendFile, "Storage backend: file or bolt")
	fs.StringVar(&cfg.ClusterName, "cluster-name", "", "Cluster name applied to the loaded state")
	fs.StringVar(&cfg.ConfigFile, "config", "", "TOML config file (flags take precedence)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(fs); err != nil {
			return nil, nil, err
		}
	}

	return cfg, fs.Args(), nil
}

// applyFile loads the TOML config file and fills in settings that were not
// set explicitly on the command line.
func (c *Config) applyFile(fs *flag.FlagSet) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(c.ConfigFile, &fc); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", c.ConfigFile, err)
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["dir"] && fc.DataDir != "" {
		c.DataDir = fc.DataDir
	}
	if !set["backend"] && fc.Backend != "" {
		c.Backend = fc.Backend
	}
	if !set["cluster-name"] && fc.ClusterName != "" {
		c.ClusterName = fc.ClusterName
	}
	return nil
}

// Validate checks that all required fields are present and consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "missing required flag: --dir")
	}
	if c.Backend != backendFile && c.Backend != backendBolt {
		errs = append(errs, fmt.Sprintf("unknown backend %q (want %q or %q)", c.Backend, backendFile, backendBolt))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
