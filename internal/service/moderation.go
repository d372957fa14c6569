package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"filedrop/internal/model"
	"filedrop/internal/repository"
	"filedrop/internal/storage"
)

// ModerationService holds the operator-side actions: permanent bans and
// the expiration sweep.
type ModerationService interface {
	// BanEntry removes an entry permanently. Re-uploads of the same
	// bytes stay refused forever.
	BanEntry(ctx context.Context, id int64) error

	// BanAddress bans every entry uploaded from addr and returns how
	// many were affected.
	BanAddress(ctx context.Context, addr string) (int, error)

	// PruneExpired deletes the bytes of entries past their expiration,
	// keeping the records, and returns how many were pruned.
	PruneExpired(ctx context.Context) (int, error)
}

type moderationService struct {
	entries repository.EntryRepository
	store   storage.DigestStore
}

// NewModerationService constructs the moderation service.
func NewModerationService(entries repository.EntryRepository, store storage.DigestStore) ModerationService {
	return &moderationService{entries: entries, store: store}
}

func (s *moderationService) BanEntry(ctx context.Context, id int64) error {
	e, err := s.entries.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup entry: %w", err)
	}
	return s.ban(ctx, e)
}

func (s *moderationService) BanAddress(ctx context.Context, addr string) (int, error) {
	entries, err := s.entries.FindByAddr(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("lookup entries by addr: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.Removed {
			continue
		}
		if err := s.ban(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *moderationService) ban(ctx context.Context, e *model.Entry) error {
	if err := s.store.Delete(e.Digest); err != nil {
		return fmt.Errorf("delete bytes: %w", err)
	}
	e.Removed = true
	e.ExpiresAt = nil
	e.MgmtToken = nil
	e.Secret = nil
	if err := s.entries.Save(ctx, e); err != nil {
		return fmt.Errorf("ban entry: %w", err)
	}
	return nil
}

func (s *moderationService) PruneExpired(ctx context.Context) (int, error) {
	expired, err := s.entries.ListExpired(ctx, timeNow())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	n := 0
	for _, e := range expired {
		if err := s.store.Delete(e.Digest); err != nil {
			return n, fmt.Errorf("delete bytes: %w", err)
		}
		e.ExpiresAt = nil
		e.MgmtToken = nil
		e.Secret = nil
		if err := s.entries.Save(ctx, e); err != nil {
			return n, fmt.Errorf("prune entry: %w", err)
		}
		n++
	}
	return n, nil
}
