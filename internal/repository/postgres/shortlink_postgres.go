package postgres

import (
	"context"
	"database/sql"

	"filedrop/internal/model"
	"filedrop/internal/repository"
)

// ShortLinkPostgres is a PostgreSQL implementation of
// repository.ShortLinkRepository. The unique index on url makes
// concurrent shortens of the same target converge on one row.
type ShortLinkPostgres struct {
	db *sql.DB
}

// NewShortLinkPostgres creates a new ShortLinkPostgres repository.
func NewShortLinkPostgres(db *sql.DB) *ShortLinkPostgres {
	return &ShortLinkPostgres{db: db}
}

var _ repository.ShortLinkRepository = (*ShortLinkPostgres)(nil)

func (r *ShortLinkPostgres) FindByURL(ctx context.Context, url string) (*model.ShortLink, error) {
	const q = `SELECT id, url FROM urls WHERE url = $1`
	var l model.ShortLink
	if err := r.db.QueryRowContext(ctx, q, url).Scan(&l.ID, &l.URL); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ShortLinkPostgres) FindByID(ctx context.Context, id int64) (*model.ShortLink, error) {
	const q = `SELECT id, url FROM urls WHERE id = $1`
	var l model.ShortLink
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.URL); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ShortLinkPostgres) Create(ctx context.Context, url string) (int64, error) {
	const q = `INSERT INTO urls (url) VALUES ($1) RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, url).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
