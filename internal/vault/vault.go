// Package vault provides authenticated symmetric encryption for connection
// strings at rest. Tokens are self-describing (nonce:tag:ciphertext) and a
// fresh nonce is drawn per call, so encrypting the same plaintext twice never
// yields the same token.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// gcmTagSize is the GCM authentication tag length appended by Seal.
const gcmTagSize = 16

// DecryptionError is returned whenever a token cannot be decrypted: malformed
// encoding, failed authentication tag, or a wrong/rotated key. Decryption
// never silently returns corrupted plaintext.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault: decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "vault: decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Vault encrypts and decrypts with a single process-wide AES-256-GCM key.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a hex-encoded 32-byte key. A key of any other
// length is a configuration error and should abort startup.
func New(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("vault: key is not valid hex: %w", err)
	}
	return NewFromBytes(key)
}

// NewFromBytes creates a Vault from a raw 32-byte key.
func NewFromBytes(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// GenerateKey returns a fresh random key as a hex string, suitable for the
// vault.key config entry.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("vault: generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Encrypt seals the plaintext under a random nonce and returns a token of the
// form nonce:tag:ciphertext, each part base64url-encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag to the ciphertext; split them so the token is
	// self-describing.
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	enc := base64.RawURLEncoding
	return enc.EncodeToString(nonce) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct), nil
}

// Decrypt opens a token produced by Encrypt. Any failure — wrong part count,
// bad encoding, truncated nonce, or tag verification — yields a
// *DecryptionError.
func (v *Vault) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", &DecryptionError{Reason: fmt.Sprintf("malformed token: expected 3 parts, got %d", len(parts))}
	}

	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", &DecryptionError{Reason: "malformed nonce", Err: err}
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", &DecryptionError{Reason: "malformed auth tag", Err: err}
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}

	if len(nonce) != v.aead.NonceSize() {
		return "", &DecryptionError{Reason: fmt.Sprintf("bad nonce length %d", len(nonce))}
	}

	plaintext, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		// Wrong key and tampered token are indistinguishable here.
		return "", &DecryptionError{Reason: "authentication failed", Err: err}
	}
	return string(plaintext), nil
}
