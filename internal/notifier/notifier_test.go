package notifier

import (
	"os"
	"path/filepath"
	"testing"
)

func withAllowedPaths(t *testing.T, dirs []string) {
	t.Helper()
	original := allowedBinaryPaths
	allowedBinaryPaths = dirs
	t.Cleanup(func() { allowedBinaryPaths = original })
}

func TestResolveBinaryFindsInAllowedPath(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "logger")
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	withAllowedPaths(t, []string{dir})

	got, err := resolveBinary("logger")
	if err != nil {
		t.Fatalf("resolveBinary error: %v", err)
	}
	if got != binPath {
		t.Errorf("resolveBinary = %q, want %q", got, binPath)
	}
}

func TestResolveBinaryNotFound(t *testing.T) {
	withAllowedPaths(t, []string{t.TempDir()})
	if _, err := resolveBinary("logger"); err == nil {
		t.Fatal("expected an error when the binary is not present in any allowed path")
	}
}

func TestVerifyBinaryRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "logger")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	withAllowedPaths(t, []string{dir})

	if err := verifyBinary(sub); err == nil {
		t.Fatal("expected an error when the resolved path is a directory")
	}
}

func TestVerifyBinaryRejectsWorldWritable(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "logger")
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o777); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	withAllowedPaths(t, []string{dir})

	err := verifyBinary(binPath)
	if err == nil {
		t.Fatal("expected an error for a world-writable binary")
	}
}

func TestVerifyBinaryRejectsUnallowedDirectory(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "logger")
	if err := os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	withAllowedPaths(t, []string{t.TempDir()}) // binPath's dir not among these

	if err := verifyBinary(binPath); err == nil {
		t.Fatal("expected an error for a binary outside the allowed directories")
	}
}

func TestSanitizedEnvKeepsExistingPath(t *testing.T) {
	t.Setenv("PATH", "/custom/path")
	env := sanitizedEnv()
	found := false
	for _, e := range env {
		if e == "PATH=/custom/path" {
			found = true
		}
	}
	if !found {
		t.Errorf("sanitizedEnv() = %v, want it to preserve PATH=/custom/path", env)
	}
}
