// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"  error  ", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestConsoleLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("visible", "count", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record emitted at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "count=3") {
		t.Errorf("info record missing from output: %q", out)
	}
	if !strings.Contains(out, "service=symgraph") {
		t.Errorf("default service attribute missing: %q", out)
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Debug("trace detail", "file", "a.go")
	if !strings.Contains(buf.String(), "trace detail") {
		t.Errorf("debug record missing at debug level: %q", buf.String())
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "testsvc",
		Output:  &buf,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("to both destinations", "k", "v")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "testsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	// File records are JSON, one per line.
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("log file line is not JSON: %v\n%s", err, line)
	}
	if record["msg"] != "to both destinations" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["service"] != "testsvc" {
		t.Errorf("service = %v", record["service"])
	}
	if record["k"] != "v" {
		t.Errorf("k = %v", record["k"])
	}

	if !strings.Contains(buf.String(), "to both destinations") {
		t.Error("console output missing while file logging is on")
	}
}

func TestFileLoggingAppends(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{LogDir: dir, Service: "appendsvc", Output: &bytes.Buffer{}}

	for i := 0; i < 2; i++ {
		logger, err := New(cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("run record")
		logger.Close()
	}

	name := "appendsvc_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if got := strings.Count(string(data), "run record"); got != 2 {
		t.Errorf("log file holds %d records, want 2", got)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on default logger = %v", err)
	}
}

func TestCloseWithoutFile(t *testing.T) {
	logger, err := New(Config{Output: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on console-only logger = %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := expandHome("~/logs")
	if err != nil {
		t.Fatalf("expandHome() error = %v", err)
	}
	if want := filepath.Join(home, "logs"); got != want {
		t.Errorf("expandHome(~/logs) = %q, want %q", got, want)
	}

	got, err = expandHome("/abs/path")
	if err != nil {
		t.Fatalf("expandHome() error = %v", err)
	}
	if got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
}
