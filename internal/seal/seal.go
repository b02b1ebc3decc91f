// Package seal encrypts short values for round-tripping through clients.
//
// Each Sealer derives its own AES-256 key from a shared secret and a purpose
// label with HKDF-SHA256, so one configured secret can back several
// independent ciphers without key reuse. Output is nonce||ciphertext encoded
// as unpadded base64url, safe for cookies, JWT claims and query strings.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrEmptySecret is returned when no secret is configured
	ErrEmptySecret = errors.New("seal: empty secret")

	// ErrMalformed is returned when a sealed value cannot be decoded or authenticated
	ErrMalformed = errors.New("seal: malformed or tampered value")
)

const keySize = 32

// Sealer seals and opens values under one derived key.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a key for purpose from secret.
func New(secret, purpose string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: gcm: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any decoding or authentication failure yields ErrMalformed.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrMalformed
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, ErrMalformed
	}
	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrMalformed
	}
	return plaintext, nil
}
