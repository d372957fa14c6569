package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"filedrop/internal/model"
	"filedrop/internal/naming"
	"filedrop/internal/repository"
	"filedrop/internal/storage"
)

var timeNow = time.Now

// Pipeline runs periodic malware sweeps over stored content. Flagged
// files move to quarantine and their entries are banned; verdicts are
// committed in one batch at the end of a cycle.
type Pipeline struct {
	repo      repository.EntryRepository
	store     storage.DigestStore
	backend   Backend
	codec     *naming.Codec
	allowlist map[string]struct{}
	workers   int
}

// NewPipeline constructs a scan pipeline. allowlist names signatures
// treated as benign, typically test signatures and packer heuristics.
func NewPipeline(repo repository.EntryRepository, store storage.DigestStore, backend Backend, codec *naming.Codec, allowlist []string) *Pipeline {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, sig := range allowlist {
		allowed[sig] = struct{}{}
	}
	return &Pipeline{
		repo:      repo,
		store:     store,
		backend:   backend,
		codec:     codec,
		allowlist: allowed,
		workers:   runtime.NumCPU(),
	}
}

// Run executes one scan cycle: every entry never scanned, or last
// scanned before staleBefore, gets a verdict. A cancelled context stops
// dispatching new work but already-collected verdicts are still
// written. Returns the number of entries that got a verdict.
func (p *Pipeline) Run(ctx context.Context, staleBefore *time.Time) (int, error) {
	start := timeNow()
	entries, err := p.repo.ListScanCandidates(ctx, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("list scan candidates: %w", err)
	}

	var mu sync.Mutex
	updates := make([]repository.ScanUpdate, 0, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		e := e
		g.Go(func() error {
			u := p.scanOne(ctx, e)
			mu.Lock()
			updates = append(updates, u)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := p.repo.ApplyScanResults(context.WithoutCancel(ctx), updates); err != nil {
		return 0, fmt.Errorf("apply scan results: %w", err)
	}

	flagged := 0
	for _, u := range updates {
		if u.Removed {
			flagged++
		}
	}
	logJSON(map[string]any{
		"component":   "scan",
		"event":       "scan_cycle",
		"status":      "success",
		"candidates":  len(entries),
		"scanned":     len(updates),
		"flagged":     flagged,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return len(updates), nil
}

// scanOne produces the verdict for a single entry. A missing file still
// counts as scanned so it is not retried every cycle; a backend failure
// leaves last_scan unset so the next cycle picks the entry up again.
func (p *Pipeline) scanOne(ctx context.Context, e *model.Entry) repository.ScanUpdate {
	now := timeNow()
	if !p.store.Exists(e.Digest) {
		return repository.ScanUpdate{ID: e.ID, LastScan: &now}
	}

	v, err := p.backend.Scan(ctx, p.store.Path(e.Digest))
	if err != nil {
		logJSON(map[string]any{
			"component":     "scan",
			"event":         "scan_backend_error",
			"status":        "error",
			"entry_id":      e.ID,
			"error_message": err.Error(),
		})
		return repository.ScanUpdate{ID: e.ID}
	}

	if v.Status == StatusInfected {
		if _, ok := p.allowlist[v.Signature]; !ok {
			name := p.codec.Encode(e.ID) + e.Ext
			if err := p.store.Quarantine(e.Digest, name); err != nil {
				logJSON(map[string]any{
					"component":     "scan",
					"event":         "quarantine_failed",
					"status":        "error",
					"entry_id":      e.ID,
					"error_message": err.Error(),
				})
				return repository.ScanUpdate{ID: e.ID}
			}
			logJSON(map[string]any{
				"component": "scan",
				"event":     "file_quarantined",
				"status":    "success",
				"entry_id":  e.ID,
				"signature": v.Signature,
			})
			return repository.ScanUpdate{ID: e.ID, LastScan: &now, Removed: true}
		}
	}
	return repository.ScanUpdate{ID: e.ID, LastScan: &now}
}

func logJSON(data map[string]any) {
	data["ts"] = timeNow().Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal scan log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
