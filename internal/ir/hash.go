package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm migration.
const (
	DomainKey   = "qsync/key/v1"
	DomainInput = "qsync/input/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// KeyHash computes the content-addressed identity of a query key.
func KeyHash(k Key) (string, error) {
	c, err := k.Canonical()
	if err != nil {
		return "", fmt.Errorf("KeyHash: %w", err)
	}
	return hashWithDomain(DomainKey, []byte(c)), nil
}

// InputHash computes the identity of a mutation input for the journal.
// Inputs that cannot be canonicalized (structs, floats) hash their
// already-encoded JSON bytes instead; the caller supplies them.
func InputHash(canonicalInput []byte) string {
	return hashWithDomain(DomainInput, canonicalInput)
}
