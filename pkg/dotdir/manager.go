// Package dotdir manages the .freedom/ and ~/.freedom directories that hold
// the CLI configuration.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the freedom directory.
	dirName = ".freedom"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .freedom/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.freedom/ dir
//  3. Home ~/.freedom/ dir
//
// If none is found, Target returns "" and no error.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating freedom directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if dir, ok := m.localDir(); ok {
		return dir, nil
	}

	if dir, ok := m.homeDir(); ok {
		return dir, nil
	}

	return "", nil
}

// Ensure behaves like Target but creates ~/.freedom/ when no directory is
// found, so callers that need to write always get a path.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir = filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating freedom directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// localDir reports the .freedom/ directory in the current working directory.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	return existingDir(filepath.Join(cwd, dirName))
}

// homeDir reports the .freedom/ directory in the user's home directory.
func (m *Manager) homeDir() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return existingDir(filepath.Join(home, dirName))
}

func existingDir(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return path, true
}
