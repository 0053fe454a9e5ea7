// Package fsutil knows the on-disk conventions of download sessions: how
// scene files are named, which sibling band folders belong to each
// satellite, and how the coregistered output tree is laid out.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// CopyFile copies src to dst, creating parent directories as needed. The
// source is never modified.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

// MoveFile renames src to dst, falling back to copy-and-delete when the
// paths live on different filesystems.
func MoveFile(src, dst string) error {
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListFiles returns the names (not paths) of regular files in dir with the
// given extension, optionally containing a substring. Names come back sorted
// so batch order is stable across runs.
func ListFiles(dir, ext, contains string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		if contains != "" && !strings.Contains(name, contains) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SceneFiles lists the .tif rasters in dir whose scene date appears in
// allowed. A nil set admits every dated file.
func SceneFiles(dir string, allowed map[string]bool) ([]string, error) {
	names, err := ListFiles(dir, ".tif", "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		date := SceneDate(name)
		if date == "" {
			continue
		}
		if allowed != nil && !allowed[date] {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// FilteredDates scans a directory of preview jpgs and returns, per
// satellite, the set of scene dates that survived earlier preprocessing.
// Scenes without a preview are meant to be skipped by the batch.
func FilteredDates(jpgDir string) (map[string]map[string]bool, error) {
	entries, err := os.ReadDir(jpgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", jpgDir, err)
	}
	dates := make(map[string]map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), ".jpg") {
			continue
		}
		date := SceneDate(name)
		if date == "" {
			continue
		}
		sat := DetectSatellite(name)
		if sat == "" {
			continue
		}
		if dates[sat] == nil {
			dates[sat] = make(map[string]bool)
		}
		dates[sat][date] = true
	}
	return dates, nil
}
