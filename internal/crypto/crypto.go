// Package crypto seals credential blobs with AES-256-GCM under a key derived
// from CREDENTIAL_SECRET.
//
// Sealed values look like "enc:v1:<base64(nonce+ciphertext)>". Each value is
// bound to the account it belongs to, so a blob copied onto another account
// fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	prefix = "enc:v1:"
	salt   = "recast-credentials"

	// MinSecretLen is the shortest master secret accepted.
	MinSecretLen = 16
)

// ErrSecretTooShort is returned for master secrets under MinSecretLen bytes.
var ErrSecretTooShort = errors.New("crypto: secret too short")

// FieldEncryptor seals and opens string values. Safe for concurrent use.
type FieldEncryptor struct {
	gcm cipher.AEAD
}

// DeriveEncryptor derives a 256-bit key from secret with HKDF-SHA256.
// purpose separates keys derived from the same secret.
func DeriveEncryptor(secret []byte, purpose string) (*FieldEncryptor, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLen)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, []byte(salt), []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &FieldEncryptor{gcm: gcm}, nil
}

// Seal encrypts plaintext bound to owner.
func (fe *FieldEncryptor) Seal(plaintext, owner string) (string, error) {
	nonce := make([]byte, fe.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := fe.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(owner))
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same owner. Values without
// the prefix are returned unchanged so hand-inserted plaintext rows still
// load.
func (fe *FieldEncryptor) Open(stored, owner string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64: %w", err)
	}
	n := fe.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("crypto: ciphertext too short")
	}
	plaintext, err := fe.gcm.Open(nil, data[:n], data[n:], []byte(owner))
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether stored carries the sealed prefix.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}
