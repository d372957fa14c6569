package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"filedrop/internal/model"
	"filedrop/internal/repository"
)

// ShortenService creates and deduplicates shortened URLs.
type ShortenService interface {
	// Shorten validates target and returns its link, creating it on
	// first sight. Links are immutable and unique on the target URL.
	Shorten(ctx context.Context, target string) (*model.ShortLink, error)
}

type shortenService struct {
	links        repository.ShortLinkRepository
	builder      *LinkBuilder
	maxURLLength int
}

// NewShortenService constructs the URL shortener.
func NewShortenService(links repository.ShortLinkRepository, builder *LinkBuilder, maxURLLength int) ShortenService {
	return &shortenService{links: links, builder: builder, maxURLLength: maxURLLength}
}

func (s *shortenService) Shorten(ctx context.Context, target string) (*model.ShortLink, error) {
	if len(target) > s.maxURLLength {
		return nil, ErrURITooLong
	}
	if strings.ContainsAny(target, "\r\n") {
		return nil, ErrBadRequest
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrBadRequest
	}
	if s.builder.IsSelf(target) {
		return nil, ErrBadRequest
	}

	l, err := s.links.FindByURL(ctx, target)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup link: %w", err)
	}

	id, err := s.links.Create(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return &model.ShortLink{ID: id, URL: target}, nil
}
