// Package digest fingerprints fetched thread bodies.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 implements watch.Hasher. Runs of whitespace are collapsed before
// hashing so re-rendered but unchanged pages keep the same fingerprint.
type SHA256 struct{}

// NewSHA256 returns a body hasher.
func NewSHA256() SHA256 {
	return SHA256{}
}

// Hash returns the hex digest of the normalized body.
func (SHA256) Hash(data []byte) (string, error) {
	normalized := strings.Join(strings.Fields(string(data)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}
