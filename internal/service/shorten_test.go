package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedrop/internal/model"
	"filedrop/internal/naming"
	repomocks "filedrop/internal/repository/mocks"
)

func newTestShorten(links *repomocks.MockShortLinkRepository) ShortenService {
	codec := naming.NewCodec(naming.DefaultAlphabet, 1)
	builder := NewLinkBuilder("https://drop.example.com", codec, 0.608)
	return NewShortenService(links, builder, 4096)
}

func TestShorten(t *testing.T) {
	ctx := context.Background()

	t.Run("creates new link", func(t *testing.T) {
		links := new(repomocks.MockShortLinkRepository)
		svc := newTestShorten(links)

		links.On("FindByURL", ctx, "https://example.com/page").Return(nil, sql.ErrNoRows)
		links.On("Create", ctx, "https://example.com/page").Return(int64(3), nil)

		l, err := svc.Shorten(ctx, "https://example.com/page")
		require.NoError(t, err)
		assert.Equal(t, int64(3), l.ID)
		assert.Equal(t, "https://example.com/page", l.URL)
	})

	t.Run("dedups on target", func(t *testing.T) {
		links := new(repomocks.MockShortLinkRepository)
		svc := newTestShorten(links)

		links.On("FindByURL", ctx, "https://example.com/page").
			Return(&model.ShortLink{ID: 3, URL: "https://example.com/page"}, nil)

		l, err := svc.Shorten(ctx, "https://example.com/page")
		require.NoError(t, err)
		assert.Equal(t, int64(3), l.ID)
		links.AssertNotCalled(t, "Create", ctx, "https://example.com/page")
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name    string
			target  string
			wantErr error
		}{
			{"too long", "https://example.com/" + strings.Repeat("a", 4096), ErrURITooLong},
			{"embedded newline", "https://example.com/a\nb", ErrBadRequest},
			{"relative url", "/just/a/path", ErrBadRequest},
			{"unsupported scheme", "ftp://example.com/f", ErrBadRequest},
			{"self referential", "https://drop.example.com/Ex.txt", ErrBadRequest},
			{"self root", "https://drop.example.com", ErrBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := newTestShorten(new(repomocks.MockShortLinkRepository))
				_, err := svc.Shorten(ctx, tt.target)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})
}
