//go:build test

package testutils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// NewTestLogger returns a debug-level logger that writes nowhere and records
// every entry in the returned hook.
func NewTestLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// HasEntry reports whether hook recorded message at level.
func HasEntry(hook *logtest.Hook, level logrus.Level, message string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// LoadFixture reads a file relative to the module root.
func LoadFixture(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "", fmt.Errorf("could not find module root (go.mod not found)")
		}
		root = parent
	}

	full := filepath.Join(root, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", full, err)
	}
	return string(data), nil
}
