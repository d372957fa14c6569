package model

import "time"

// Entry is the durable record for one uploaded, content-addressed file.
// This is a pure domain model with no database-specific dependencies or tags;
// naming, storage paths and lifecycle decisions live in the service layer.
type Entry struct {
	ID        int64    `json:"id"`
	Digest    string   `json:"digest"` // SHA-256 hex of the content
	Ext       string   `json:"ext"`
	Mime      string   `json:"mime"`
	Addr      string   `json:"addr"`
	UserAgent string   `json:"user_agent"`
	Removed   bool     `json:"removed"`
	NSFWScore *float64 `json:"nsfw_score,omitempty"`

	// ExpiresAt is the expiration in epoch milliseconds. nil means the
	// bytes are gone from disk but the record is retained.
	ExpiresAt *int64 `json:"expires_at,omitempty"`

	// MgmtToken authorizes delete/re-expire by the uploader. Present if
	// and only if the entry is currently live.
	MgmtToken *string `json:"-"`

	// Secret, when set, must be presented alongside the id to retrieve
	// the content.
	Secret *string `json:"-"`

	LastScan *time.Time `json:"last_scan,omitempty"`
	Size     int64      `json:"size"`
}

// IsLive reports whether the entry still has bytes on disk and may be served.
func (e *Entry) IsLive() bool {
	return !e.Removed && e.ExpiresAt != nil
}

// Expired reports whether the entry's expiration has passed.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && *e.ExpiresAt < now.UnixMilli()
}

// IsNSFW reports whether the classifier score exceeds the given threshold.
func (e *Entry) IsNSFW(threshold float64) bool {
	return e.NSFWScore != nil && *e.NSFWScore > threshold
}
