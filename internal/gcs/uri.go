package gcs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const scheme = "gs://"

// ErrInvalidURI is returned for strings that are not gs://bucket/object URIs.
var ErrInvalidURI = errors.New("invalid GCS URI")

// IsURI reports whether s uses the gs:// scheme.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
// The object part may be empty for a bare bucket URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("ParseURI: %q: %w", uri, ErrInvalidURI)
	}
	trimmed := strings.TrimPrefix(uri, scheme)
	bucket, object, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("ParseURI: %q has no bucket: %w", uri, ErrInvalidURI)
	}
	return bucket, object, nil
}

// JoinURI appends slash separated elements to a gs:// prefix.
func JoinURI(prefix string, elem ...string) string {
	bucket, object, err := ParseURI(prefix)
	if err != nil {
		return prefix
	}
	parts := append([]string{object}, elem...)
	return scheme + bucket + "/" + strings.TrimPrefix(path.Join(parts...), "/")
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, scheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}
