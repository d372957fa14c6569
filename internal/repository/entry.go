package repository

import (
	"context"
	"errors"
	"time"

	"filedrop/internal/model"
)

// ErrDuplicateDigest reports that Create lost a race on the digest
// unique index: an entry for the same content already exists.
var ErrDuplicateDigest = errors.New("entry for digest already exists")

// EntryRepository defines data access for file entries using SQL queries
// only. No business logic here, strictly persistence operations.
// Lookups return sql.ErrNoRows when nothing matches; callers translate.
type EntryRepository interface {
	// FindByDigest returns the entry for a content digest, removed or not.
	FindByDigest(ctx context.Context, digest string) (*model.Entry, error)

	// FindByID returns an entry by its numeric id.
	FindByID(ctx context.Context, id int64) (*model.Entry, error)

	// FindByAddr returns all entries uploaded from the given address.
	FindByAddr(ctx context.Context, addr string) ([]*model.Entry, error)

	// Create inserts a new entry and returns the id assigned by the
	// database. Ids are sequential and never reused. A digest collision
	// with an existing row yields ErrDuplicateDigest.
	Create(ctx context.Context, e *model.Entry) (int64, error)

	// Save upserts an already-identified entry in one statement.
	Save(ctx context.Context, e *model.Entry) error

	// ListScanCandidates returns non-removed entries that were never
	// scanned or whose last scan predates staleBefore. A nil staleBefore
	// selects never-scanned entries only.
	ListScanCandidates(ctx context.Context, staleBefore *time.Time) ([]*model.Entry, error)

	// ListExpired returns entries whose expiration is set and has passed.
	ListExpired(ctx context.Context, now time.Time) ([]*model.Entry, error)

	// ApplyScanResults commits a batch of scan verdicts in one
	// transaction. Removed is only ever raised, never cleared.
	ApplyScanResults(ctx context.Context, updates []ScanUpdate) error
}

// ScanUpdate is one entry's verdict from a scan cycle. A nil LastScan
// means the scan failed and the entry stays eligible for the next cycle.
type ScanUpdate struct {
	ID       int64
	LastScan *time.Time
	Removed  bool
}

// ShortLinkRepository defines data access for shortened URLs.
type ShortLinkRepository interface {
	// FindByURL returns the link for an exact target URL.
	FindByURL(ctx context.Context, url string) (*model.ShortLink, error)

	// FindByID returns a link by its numeric id.
	FindByID(ctx context.Context, id int64) (*model.ShortLink, error)

	// Create inserts a new link and returns its assigned id.
	Create(ctx context.Context, url string) (int64, error)
}
