package constants

import "strings"

// Document formats understood by the text providers.
const (
	PDF  = "PDF"
	TEXT = "TEXT"
)

// AllowedExtensions holds the default extensions picked up when scanning an input directory.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// TextExtensions are plain-text inputs, handy for fixtures and pre-extracted corpora.
var TextExtensions = map[string]struct{}{
	"txt": {},
	"md":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns PDF, TEXT, or "" for unsupported extensions.
func MapExtToFormat(ext string) string {
	e := NormalizeExt(ext)
	if e == "pdf" {
		return PDF
	}
	if _, ok := TextExtensions[e]; ok {
		return TEXT
	}
	return ""
}
