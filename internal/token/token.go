// Package token issues the unguessable credentials attached to entries.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// managementTokenBytes gives 256 bits of entropy, matching the width of
// tokens issued by earlier deployments.
const managementTokenBytes = 32

// Issuer generates URL-safe opaque secrets.
type Issuer struct{}

// NewIssuer returns a token issuer backed by crypto/rand.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// NewManagementToken returns a fresh management token.
func (i *Issuer) NewManagementToken() (string, error) {
	return i.random(managementTokenBytes)
}

// NewAccessSecret returns an access secret of byteLength random bytes.
func (i *Issuer) NewAccessSecret(byteLength int) (string, error) {
	return i.random(byteLength)
}

func (i *Issuer) random(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
