package service

import "errors"

var (
	// ErrNotFound covers unknown names, wrong secrets and pruned
	// content alike, so a guesser learns nothing from the status code.
	ErrNotFound = errors.New("not found")

	// ErrGone marks content removed by moderation. It is permanent.
	ErrGone = errors.New("removed for legal reasons")

	// ErrBlocked marks uploads from a banned source address.
	ErrBlocked = errors.New("address blocked")

	ErrUnauthorized     = errors.New("invalid management token")
	ErrBadRequest       = errors.New("bad request")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrLengthRequired   = errors.New("length required")
	ErrURITooLong       = errors.New("uri too long")
)
