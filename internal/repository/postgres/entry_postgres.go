package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"filedrop/internal/model"
	"filedrop/internal/repository"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// conflict.
const uniqueViolation = "23505"

const entryColumns = `id, sha256, ext, mime, addr, ua, removed, nsfw_score, expiration, mgmt_token, secret, last_scan, size`

// EntryPostgres is a PostgreSQL implementation of
// repository.EntryRepository. It uses database/sql with parameterized
// queries and contains no business logic. The unique index on sha256
// serializes concurrent creates of the same digest.
type EntryPostgres struct {
	db *sql.DB
}

// NewEntryPostgres creates a new EntryPostgres repository.
func NewEntryPostgres(db *sql.DB) *EntryPostgres {
	return &EntryPostgres{db: db}
}

var _ repository.EntryRepository = (*EntryPostgres)(nil)

func scanEntry(row interface{ Scan(dest ...any) error }) (*model.Entry, error) {
	var e model.Entry
	var nsfw sql.NullFloat64
	var expiration sql.NullInt64
	var mgmtToken, secret sql.NullString
	var lastScan sql.NullTime
	if err := row.Scan(
		&e.ID,
		&e.Digest,
		&e.Ext,
		&e.Mime,
		&e.Addr,
		&e.UserAgent,
		&e.Removed,
		&nsfw,
		&expiration,
		&mgmtToken,
		&secret,
		&lastScan,
		&e.Size,
	); err != nil {
		return nil, err
	}
	if nsfw.Valid {
		e.NSFWScore = &nsfw.Float64
	}
	if expiration.Valid {
		e.ExpiresAt = &expiration.Int64
	}
	if mgmtToken.Valid {
		e.MgmtToken = &mgmtToken.String
	}
	if secret.Valid {
		e.Secret = &secret.String
	}
	if lastScan.Valid {
		e.LastScan = &lastScan.Time
	}
	return &e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// FindByDigest fetches the single entry for a content digest.
func (r *EntryPostgres) FindByDigest(ctx context.Context, digest string) (*model.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM files WHERE sha256 = $1`
	return scanEntry(r.db.QueryRowContext(ctx, q, digest))
}

// FindByID fetches a single entry by its id.
func (r *EntryPostgres) FindByID(ctx context.Context, id int64) (*model.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM files WHERE id = $1`
	return scanEntry(r.db.QueryRowContext(ctx, q, id))
}

// FindByAddr fetches all entries uploaded from addr, oldest first.
func (r *EntryPostgres) FindByAddr(ctx context.Context, addr string) ([]*model.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM files WHERE addr = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, addr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Create inserts a new entry row and returns the assigned id.
func (r *EntryPostgres) Create(ctx context.Context, e *model.Entry) (int64, error) {
	const q = `
		INSERT INTO files (sha256, ext, mime, addr, ua, removed, nsfw_score, expiration, mgmt_token, secret, last_scan, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		e.Digest,
		e.Ext,
		e.Mime,
		e.Addr,
		e.UserAgent,
		e.Removed,
		nullFloat(e.NSFWScore),
		nullInt(e.ExpiresAt),
		nullString(e.MgmtToken),
		nullString(e.Secret),
		nullTime(e.LastScan),
		e.Size,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, repository.ErrDuplicateDigest
		}
		return 0, err
	}
	return id, nil
}

// Save writes every mutable field of an already-identified entry in one
// statement, so concurrent readers never observe a partial update.
func (r *EntryPostgres) Save(ctx context.Context, e *model.Entry) error {
	const q = `
		UPDATE files
		SET ext = $2, mime = $3, addr = $4, ua = $5, removed = $6, nsfw_score = $7,
		    expiration = $8, mgmt_token = $9, secret = $10, last_scan = $11, size = $12
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Ext,
		e.Mime,
		e.Addr,
		e.UserAgent,
		e.Removed,
		nullFloat(e.NSFWScore),
		nullInt(e.ExpiresAt),
		nullString(e.MgmtToken),
		nullString(e.Secret),
		nullTime(e.LastScan),
		e.Size,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListScanCandidates selects entries eligible for (re-)scanning.
func (r *EntryPostgres) ListScanCandidates(ctx context.Context, staleBefore *time.Time) ([]*model.Entry, error) {
	var rows *sql.Rows
	var err error
	if staleBefore != nil {
		q := `SELECT ` + entryColumns + ` FROM files WHERE removed = FALSE AND (last_scan IS NULL OR last_scan < $1) ORDER BY id`
		rows, err = r.db.QueryContext(ctx, q, *staleBefore)
	} else {
		q := `SELECT ` + entryColumns + ` FROM files WHERE removed = FALSE AND last_scan IS NULL ORDER BY id`
		rows, err = r.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListExpired selects entries whose expiration has passed.
func (r *EntryPostgres) ListExpired(ctx context.Context, now time.Time) ([]*model.Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM files WHERE expiration IS NOT NULL AND expiration < $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ApplyScanResults commits all verdicts of one scan cycle atomically.
func (r *EntryPostgres) ApplyScanResults(ctx context.Context, updates []repository.ScanUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan update tx: %w", err)
	}
	// A removal also retires the credentials and expiration, the same
	// way a manual ban does.
	const q = `
		UPDATE files
		SET last_scan = $2,
		    removed = removed OR $3,
		    expiration = CASE WHEN $3 THEN NULL ELSE expiration END,
		    mgmt_token = CASE WHEN $3 THEN NULL ELSE mgmt_token END,
		    secret = CASE WHEN $3 THEN NULL ELSE secret END
		WHERE id = $1
	`
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, q, u.ID, nullTime(u.LastScan), u.Removed); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply scan result for id %d: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func collectEntries(rows *sql.Rows) ([]*model.Entry, error) {
	entries := make([]*model.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
