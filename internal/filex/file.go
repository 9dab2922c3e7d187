// Package filex holds small filesystem helpers for the data directory.
package filex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// EnsureDir creates dir and its parents with owner-only permissions and
// returns its absolute path. Relative paths resolve against the working
// directory.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// UniqueDir creates a new directory under parent named base, or base_2,
// base_3 and so on when the name is taken. It returns the chosen name and
// its full path.
func UniqueDir(parent, base string) (string, string, error) {
	if _, err := EnsureDir(parent); err != nil {
		return "", "", err
	}
	name := base
	for n := 2; ; n++ {
		dir := filepath.Join(parent, name)
		err := os.Mkdir(dir, 0o700)
		if err == nil {
			return name, dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
		name = base + "_" + strconv.Itoa(n)
	}
}

// UniqueName returns name, or name with _2, _3 and so on inserted before the
// extension when it is already in taken. The result is added to taken.
func UniqueName(name string, taken map[string]bool) string {
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	cand := name
	for n := 2; taken[cand]; n++ {
		cand = stem + "_" + strconv.Itoa(n) + ext
	}
	taken[cand] = true
	return cand
}
