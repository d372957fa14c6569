package model

// ShortLink maps a numeric id to an arbitrary destination URL.
// Unique on URL, immutable once created.
type ShortLink struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}
