// Package sniff provides content-type detection for uploaded bytes.
package sniff

import "github.com/gabriel-vasile/mimetype"

// Sniffer maps raw content to a MIME string. It is pluggable so tests
// and alternative detectors can stand in for libmagic-style detection.
type Sniffer func(data []byte) string

// Detect is the default Sniffer, backed by mimetype's magic tables. It
// returns the bare media type without parameters, falling back to
// application/octet-stream for unrecognized content.
func Detect(data []byte) string {
	mt := mimetype.Detect(data)
	// mimetype appends a charset parameter to text types; detection and
	// denylist checks work on the bare type.
	if base := mt.String(); base != "" {
		for i := 0; i < len(base); i++ {
			if base[i] == ';' {
				return base[:i]
			}
		}
		return base
	}
	return "application/octet-stream"
}
