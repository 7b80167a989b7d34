// Package keys issues per-file download keys and hashes them for storage.
package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// KeyBytes is the amount of entropy in a download key.
const KeyBytes = 32

// Generator produces download keys.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator reads keys from crypto/rand.
type RandomGenerator struct{}

// Generate returns KeyBytes random bytes encoded as unpadded URL-safe base64.
// The key carries no information about the file, its owner or the time.
func (RandomGenerator) Generate() (string, error) {
	b := make([]byte, KeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate download key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher is a keyed one-way hash over download keys. The pepper lives only in
// server configuration, so a leaked catalog alone does not allow offline
// guessing.
type Hasher struct {
	pepper []byte
}

// NewHasher builds a Hasher. The pepper must be 1..64 bytes.
func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) == 0 || len(pepper) > blake2b.Size {
		return nil, errors.New("key pepper must be between 1 and 64 bytes")
	}
	return &Hasher{pepper: append([]byte(nil), pepper...)}, nil
}

// Hash returns BLAKE2b-256(pepper, key).
func (h *Hasher) Hash(key string) []byte {
	m, err := blake2b.New256(h.pepper)
	if err != nil {
		// unreachable: pepper length is checked in NewHasher
		panic(err)
	}
	m.Write([]byte(key))
	return m.Sum(nil)
}

// Verify hashes key and compares it to want in constant time.
func (h *Hasher) Verify(key string, want []byte) bool {
	got := h.Hash(key)
	return subtle.ConstantTimeCompare(got, want) == 1
}
