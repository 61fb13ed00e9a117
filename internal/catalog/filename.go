package catalog

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFilenameLength is the rune budget of a sanitized filename.
	MaxFilenameLength = 200
	// InvalidFilename replaces titles that sanitize to nothing.
	InvalidFilename = "invalid_filename"

	truncationMarker = "..."
	maxExtLength     = 16
)

// hostileChars are removed from titles before they are used as filenames.
const hostileChars = `\/*?:"<>|`

// SanitizeFilename maps an arbitrary display string to a filesystem-safe name.
// The result never contains any of \ / * ? : " < > |, never starts with a
// period, is at most MaxFilenameLength runes and is never empty.
func SanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(hostileChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, norm.NFC.String(name))

	if utf8.RuneCountInString(sanitized) > MaxFilenameLength {
		sanitized = truncateStem(sanitized)
	}
	sanitized = strings.TrimLeftFunc(sanitized, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
	if strings.TrimSpace(sanitized) == "" {
		return InvalidFilename
	}
	return strings.TrimSpace(sanitized)
}

// truncateStem shortens name to the rune budget, keeping a short extension.
func truncateStem(name string) string {
	ext := extension(name)
	stem := []rune(strings.TrimSuffix(name, ext))
	available := MaxFilenameLength - utf8.RuneCountInString(ext) - len(truncationMarker)
	if available < 0 {
		available = 0
	}
	if len(stem) > available {
		stem = stem[:available]
	}
	return string(stem) + truncationMarker + ext
}

// extension returns the trailing ".xyz" of name when it looks like a real
// file extension rather than a sentence that happens to contain a period.
func extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	if utf8.RuneCountInString(ext) > maxExtLength || strings.ContainsFunc(ext, unicode.IsSpace) {
		return ""
	}
	return ext
}

// AssetExtension returns the extension of an asset path, defaulting to .jpg.
func AssetExtension(assetPath string) string {
	ext := filepath.Ext(filepath.Base(assetPath))
	if ext == "" || ext == "." {
		return ".jpg"
	}
	return ext
}

// AssetFilename derives the destination filename for an item's asset.
func AssetFilename(title, assetPath string) string {
	return SanitizeFilename(title) + AssetExtension(assetPath)
}
