// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the environment variable that overrides the config
// file location.
const ConfigEnvVar = "SYMGRAPH_CONFIG"

// DefaultConfigPath is where the config file is looked up when neither the
// flag nor the environment variable names one.
const DefaultConfigPath = ".symgraph.yaml"

// Config is the file-backed CLI configuration. Flags override file values,
// file values override defaults.
type Config struct {
	// Graph is the path of the persisted symbol graph.
	Graph string `yaml:"graph"`

	// LogLevel is the minimum log severity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables JSON file logging when non-empty.
	LogDir string `yaml:"log_dir"`

	// Workers bounds the indexer's parallel parse workers.
	Workers int `yaml:"workers"`

	// QueueSize is the indexer's writer queue capacity.
	QueueSize int `yaml:"queue_size"`

	// Watch configures watch mode.
	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	// DebounceMS is the quiet period before a change batch is applied.
	DebounceMS int `yaml:"debounce_ms"`

	// Extensions restricts watching to these file extensions, dot
	// included. Empty watches everything.
	Extensions []string `yaml:"extensions"`

	// IgnoreDirs are directory names excluded from the watch.
	IgnoreDirs []string `yaml:"ignore_dirs"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Graph:    "symgraph.ndjson",
		LogLevel: "info",
	}
}

// LoadConfig loads the configuration file.
//
// Description:
//
//	Resolution order for the path: the explicit flag value, then the
//	SYMGRAPH_CONFIG environment variable, then .symgraph.yaml in the
//	working directory. A missing file is only an error when the path was
//	given explicitly.
func LoadConfig(flagPath string) (Config, error) {
	cfg := DefaultConfig()

	path := flagPath
	explicit := path != ""
	if path == "" {
		if env := os.Getenv(ConfigEnvVar); env != "" {
			path = env
			explicit = true
		} else {
			path = DefaultConfigPath
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
