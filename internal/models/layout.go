package models

import (
	"regexp"
	"strings"
)

// Bucket layout. These five prefixes are the whole shared surface;
// adding a top-level prefix is a protocol version bump.
const (
	PendingPrefix    = "jobs/pending/"
	ProcessingPrefix = "jobs/processing/"
	ResultsPrefix    = "results/"
	ScriptsPrefix    = "scripts/"
	AssetsPrefix     = "assets/"

	FailedSentinel = "_FAILED"
	LogObject      = "log.txt"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)

// ValidKey reports whether an object key is well-formed: the allowed
// character set, no empty segments, no traversal.
func ValidKey(key string) bool {
	if key == "" || !keyPattern.MatchString(key) {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// PendingKey returns the manifest key for a job awaiting a worker.
func PendingKey(id string) string {
	return PendingPrefix + id + ".json"
}

// ProcessingKey returns the manifest key for a claimed job.
func ProcessingKey(id string) string {
	return ProcessingPrefix + id + ".json"
}

// ResultsKeyPrefix returns the output tree prefix for a job.
func ResultsKeyPrefix(id string) string {
	return ResultsPrefix + id + "/"
}

// JobIDFromManifestKey extracts the job id from a pending or processing
// manifest key, or "" if the key has another shape.
func JobIDFromManifestKey(key string) string {
	for _, prefix := range []string{PendingPrefix, ProcessingPrefix} {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, ".json") {
			return strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
		}
	}
	return ""
}
