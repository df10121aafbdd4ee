package common

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSlugLength bounds every path segment derived from caller input.
const MaxSlugLength = 96

var (
	slugStrip = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	slugValid = regexp.MustCompile(`^[A-Za-z0-9_-]{1,96}$`)
)

// SafeSlug sanitizes a string for use as a filename or path component.
// Strips any path traversal, replaces spaces with underscores, removes
// everything outside [A-Za-z0-9_-], and bounds the length. Returns ""
// for input with nothing salvageable; callers must treat "" as invalid.
func SafeSlug(text string) string {
	if text == "" {
		return ""
	}
	// Drop directory components before character filtering so "../x"
	// cannot survive as a traversal.
	text = path.Base(strings.ReplaceAll(text, "\\", "/"))
	text = strings.ReplaceAll(text, " ", "_")
	text = slugStrip.ReplaceAllString(text, "")
	if len(text) > MaxSlugLength {
		text = text[:MaxSlugLength]
	}
	return text
}

// IsValidSlug reports whether s already conforms to ^[A-Za-z0-9_-]{1,96}$.
// Status probes use this to reject ids like "../x" without touching the store.
func IsValidSlug(s string) bool {
	return slugValid.MatchString(s)
}

// NewJobID generates a unique job identifier of the form
// <kind>_<YYYYMMDD>_<HHMMSS>_<random8>. The timestamp prefix makes
// lexicographic order equal creation order, which the worker relies on
// for oldest-first scheduling.
func NewJobID(kind string) string {
	now := time.Now().UTC()
	random8 := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return kind + "_" + now.Format("20060102_150405") + "_" + random8
}
