package storage

// Package storage contains the content-addressed byte store. Files live
// under a single root directory, named by the SHA-256 hex digest of
// their content; one digest, one file.

// DigestStore persists bytes keyed by content digest.
type DigestStore interface {
	// Put writes data under digest if not already present. Writing the
	// same digest again is a no-op; a file is never partially visible.
	Put(digest string, data []byte) error

	// Delete removes the file for digest. Succeeds if already absent.
	Delete(digest string) error

	// Path returns the filesystem location for digest, for read access
	// and reverse-proxy serving. It does not check existence.
	Path(digest string) string

	// Exists reports whether bytes for digest are on disk.
	Exists(digest string) bool

	// Quarantine moves the file for digest out of the serving root into
	// the quarantine directory under the given display name.
	Quarantine(digest, name string) error
}
