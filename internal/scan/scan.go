package scan

import "context"

// Status classifies a single scan outcome.
type Status int

const (
	StatusClean Status = iota
	StatusInfected
)

// Verdict is what a backend says about one file.
type Verdict struct {
	Status    Status
	Signature string
}

// Backend scans a file on disk. Errors mean the backend could not
// produce a verdict at all, not that the file is infected.
type Backend interface {
	Scan(ctx context.Context, path string) (Verdict, error)
}
