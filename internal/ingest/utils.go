package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/geodata-extractor/constants"
)

// DefaultExtensions is PDF only; text inputs are opt-in.
func DefaultExtensions() map[string]struct{} {
	out := make(map[string]struct{}, len(constants.AllowedExtensions))
	for e := range constants.AllowedExtensions {
		out[e] = struct{}{}
	}
	return out
}

// WithTextExtensions adds the plain-text extensions to exts.
func WithTextExtensions(exts map[string]struct{}) map[string]struct{} {
	for e := range constants.TextExtensions {
		exts[e] = struct{}{}
	}
	return exts
}

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
