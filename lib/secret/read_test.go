// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFromPath(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"plain", "a1b2c3d4", "a1b2c3d4"},
		{"trailing newline", "a1b2c3d4\n", "a1b2c3d4"},
		{"surrounding whitespace", "  a1b2c3d4 \t\n", "a1b2c3d4"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(tempDir, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatalf("writing test file: %v", err)
			}
			result, err := ReadFromPath(path)
			if err != nil {
				t.Fatalf("ReadFromPath() error: %v", err)
			}
			defer result.Close()
			if result.String() != test.expected {
				t.Errorf("ReadFromPath() = %q, want %q", result.String(), test.expected)
			}
		})
	}
}

func TestReadFromPath_Errors(t *testing.T) {
	tempDir := t.TempDir()
	empty := filepath.Join(tempDir, "empty")
	whitespace := filepath.Join(tempDir, "whitespace")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	if err := os.WriteFile(whitespace, []byte(" \n\t\n"), 0o600); err != nil {
		t.Fatalf("writing test file: %v", err)
	}

	for _, path := range []string{filepath.Join(tempDir, "missing"), empty, whitespace} {
		if _, err := ReadFromPath(path); err == nil {
			t.Errorf("ReadFromPath(%q) succeeded, want error", path)
		}
	}
}

func TestWriteToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	buffer, err := NewFromBytes([]byte("00112233"))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	defer buffer.Close()

	if err := WriteToPath(path, buffer); err != nil {
		t.Fatalf("WriteToPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath failed: %v", err)
	}
	defer loaded.Close()
	if !loaded.Equal([]byte("00112233")) {
		t.Errorf("round trip = %q", loaded.String())
	}

	if err := WriteToPath(path, buffer); err == nil {
		t.Error("WriteToPath over an existing file succeeded, want error")
	}
}
