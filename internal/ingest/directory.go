// Package ingest finds the documents to process.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
}

// Discover walks root recursively and returns the matching files in lexical order.
// Hidden files and directories are skipped. Unreadable subdirectories are logged and skipped.
func Discover(root string, exts map[string]struct{}, logger *slog.Logger) ([]string, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, DirStats{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, DirStats{}, fmt.Errorf("%s is not a directory", root)
	}
	if exts == nil {
		exts = DefaultExtensions()
	}

	var paths []string
	var stats DirStats
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("ingest.walk.error", "path", path, "error", walkErr)
			stats.Skipped++
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !allowed(path, exts) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}

	sort.Strings(paths)
	logger.Info("ingest.discovered", "root", root, "scanned", stats.Scanned, "matched", stats.Matched)
	return paths, stats, nil
}
