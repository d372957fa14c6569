package service

import (
	"strings"

	"filedrop/internal/model"
	"filedrop/internal/naming"
)

// LinkBuilder renders the public URLs handed back to clients.
type LinkBuilder struct {
	base          string
	codec         *naming.Codec
	nsfwThreshold float64
}

// NewLinkBuilder constructs a LinkBuilder rooted at base, e.g.
// "https://drop.example.com".
func NewLinkBuilder(base string, codec *naming.Codec, nsfwThreshold float64) *LinkBuilder {
	return &LinkBuilder{
		base:          strings.TrimRight(base, "/"),
		codec:         codec,
		nsfwThreshold: nsfwThreshold,
	}
}

// FileURL returns the canonical retrieval URL for an entry, including
// the secret path segment and the #nsfw fragment where applicable.
func (b *LinkBuilder) FileURL(e *model.Entry) string {
	var sb strings.Builder
	sb.WriteString(b.base)
	if e.Secret != nil {
		sb.WriteString("/s/")
		sb.WriteString(*e.Secret)
	}
	sb.WriteString("/")
	sb.WriteString(b.codec.Encode(e.ID))
	sb.WriteString(e.Ext)
	if e.IsNSFW(b.nsfwThreshold) {
		sb.WriteString("#nsfw")
	}
	return sb.String()
}

// ShortURL returns the redirect URL for a shortened link.
func (b *LinkBuilder) ShortURL(l *model.ShortLink) string {
	return b.base + "/" + b.codec.Encode(l.ID)
}

// IsSelf reports whether a URL points back at this instance.
func (b *LinkBuilder) IsSelf(raw string) bool {
	return raw == b.base || strings.HasPrefix(raw, b.base+"/")
}
