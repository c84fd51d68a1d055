// Package crypto seals the settings document at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const settingsInfo = "mailtmpl settings v1"

var ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

// Crypter encrypts and decrypts data using AES-256-GCM.
type Crypter struct {
	aead cipher.AEAD
}

// New creates a Crypter. key must be exactly 32 bytes.
func New(key []byte) (*Crypter, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Crypter{aead: aead}, nil
}

// FromSecret derives the AES key from an operator supplied secret with
// HKDF-SHA256, so any secret of sufficient length can be configured.
func FromSecret(secret string) (*Crypter, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(settingsInfo)), key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return New(key)
}

// Encrypt returns ciphertext with the nonce prepended.
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func (c *Crypter) Decrypt(ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}
