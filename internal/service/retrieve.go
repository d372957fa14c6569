package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"filedrop/internal/lifespan"
	"filedrop/internal/model"
	"filedrop/internal/naming"
	"filedrop/internal/repository"
	"filedrop/internal/storage"
)

// RetrieveService resolves public names back to stored content and
// handles owner management of entries via their token.
type RetrieveService interface {
	// LookupFile resolves "<name><ext>" to a live entry. secret is the
	// /s/ path segment, empty for public entries. A wrong secret, a
	// mismatched extension and an unknown name are indistinguishable.
	LookupFile(ctx context.Context, name, secret string) (*model.Entry, error)

	// LookupLink resolves a bare name to a shortened URL target.
	LookupLink(ctx context.Context, name string) (string, error)

	// DeleteByToken drops an entry's bytes and retires its token.
	DeleteByToken(ctx context.Context, name, tok string) error

	// UpdateExpirationByToken re-times an entry, subject to the same
	// size-based cap as ingest.
	UpdateExpirationByToken(ctx context.Context, name, tok string, requested int64) (*model.Entry, error)
}

type retrieveService struct {
	entries repository.EntryRepository
	links   repository.ShortLinkRepository
	store   storage.DigestStore
	codec   *naming.Codec
	policy  lifespan.Policy
}

// NewRetrieveService constructs the name-resolution service.
func NewRetrieveService(
	entries repository.EntryRepository,
	links repository.ShortLinkRepository,
	store storage.DigestStore,
	codec *naming.Codec,
	policy lifespan.Policy,
) RetrieveService {
	return &retrieveService{entries: entries, links: links, store: store, codec: codec, policy: policy}
}

// splitName separates the encoded id from its extension. The stem is
// everything before the first dot, so dotted stems cannot occur.
func splitName(name string) (stem, ext string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

func (s *retrieveService) findEntry(ctx context.Context, name string) (*model.Entry, string, error) {
	stem, ext := splitName(name)
	id, ok := s.codec.Decode(stem)
	if !ok {
		return nil, "", ErrNotFound
	}
	e, err := s.entries.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup entry: %w", err)
	}
	return e, ext, nil
}

func (s *retrieveService) LookupFile(ctx context.Context, name, secret string) (*model.Entry, error) {
	e, ext, err := s.findEntry(ctx, name)
	if err != nil {
		return nil, err
	}
	if e.Removed {
		return nil, ErrGone
	}
	if e.ExpiresAt == nil || ext != e.Ext {
		return nil, ErrNotFound
	}
	if e.Secret == nil {
		if secret != "" {
			return nil, ErrNotFound
		}
	} else if secret != *e.Secret {
		return nil, ErrNotFound
	}
	if !s.store.Exists(e.Digest) {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *retrieveService) LookupLink(ctx context.Context, name string) (string, error) {
	if strings.ContainsRune(name, '.') {
		return "", ErrNotFound
	}
	id, ok := s.codec.Decode(name)
	if !ok {
		return "", ErrNotFound
	}
	l, err := s.links.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup link: %w", err)
	}
	return l.URL, nil
}

func (s *retrieveService) authorize(ctx context.Context, name, tok string) (*model.Entry, error) {
	e, _, err := s.findEntry(ctx, name)
	if err != nil {
		return nil, err
	}
	if e.Removed {
		return nil, ErrGone
	}
	if e.MgmtToken == nil || tok == "" || tok != *e.MgmtToken {
		return nil, ErrUnauthorized
	}
	return e, nil
}

func (s *retrieveService) DeleteByToken(ctx context.Context, name, tok string) error {
	e, err := s.authorize(ctx, name, tok)
	if err != nil {
		return err
	}
	if err := s.store.Delete(e.Digest); err != nil {
		return fmt.Errorf("delete bytes: %w", err)
	}
	e.ExpiresAt = nil
	e.MgmtToken = nil
	e.Secret = nil
	if err := s.entries.Save(ctx, e); err != nil {
		return fmt.Errorf("retire entry: %w", err)
	}
	return nil
}

func (s *retrieveService) UpdateExpirationByToken(ctx context.Context, name, tok string, requested int64) (*model.Entry, error) {
	e, err := s.authorize(ctx, name, tok)
	if err != nil {
		return nil, err
	}
	if e.ExpiresAt == nil {
		return nil, ErrNotFound
	}
	exp := s.policy.EffectiveExpiration(&requested, e.Size, timeNow())
	e.ExpiresAt = &exp
	if err := s.entries.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("update expiration: %w", err)
	}
	return e, nil
}
