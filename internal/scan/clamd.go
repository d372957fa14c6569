package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/dutchcoders/go-clamd"
)

// ClamdBackend streams files to a clamd daemon over its INSTREAM
// protocol. addr is either tcp://host:port or a unix socket path.
type ClamdBackend struct {
	client *clamd.Clamd
}

// NewClamdBackend constructs a backend talking to the given daemon.
func NewClamdBackend(addr string) *ClamdBackend {
	return &ClamdBackend{client: clamd.NewClamd(addr)}
}

// Ping verifies the daemon is reachable.
func (b *ClamdBackend) Ping() error {
	return b.client.Ping()
}

func (b *ClamdBackend) Scan(ctx context.Context, path string) (Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return Verdict{}, fmt.Errorf("open for scan: %w", err)
	}
	defer f.Close()

	abort := make(chan bool)
	defer close(abort)

	results, err := b.client.ScanStream(f, abort)
	if err != nil {
		return Verdict{}, fmt.Errorf("clamd scan: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return Verdict{}, ctx.Err()
		case r, ok := <-results:
			if !ok {
				return Verdict{Status: StatusClean}, nil
			}
			switch r.Status {
			case clamd.RES_OK:
				return Verdict{Status: StatusClean}, nil
			case clamd.RES_FOUND:
				return Verdict{Status: StatusInfected, Signature: r.Description}, nil
			default:
				return Verdict{}, fmt.Errorf("clamd: %s %s", r.Status, r.Description)
			}
		}
	}
}
