// Package crypto seals and unseals per-client Klaviyo API credentials with
// AES-256-GCM. The stored format is "iv_hex:authTag_hex:ciphertext_hex" with
// a fixed 16-byte IV. The GCM auth tag check is load-bearing: a tampered
// credential must fail decryption, never yield garbage plaintext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	ivSize  = 16
	tagSize = 16
	keySize = 32
)

// ErrInvalidKey indicates the configured encryption key is not 32 bytes.
var ErrInvalidKey = errors.New("crypto: encryption key must be 32 bytes")

// ErrMalformedCiphertext indicates the stored blob does not match the
// iv:tag:ciphertext hex format.
var ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")

// ErrDecryptFailed indicates authentication failure: the ciphertext or auth
// tag was tampered with, or the wrong key was used.
var ErrDecryptFailed = errors.New("crypto: decryption failed")

// ParseKey decodes a hex-encoded 32-byte key from configuration.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Encrypt seals plaintext under the given 32-byte key and returns the
// iv:tag:ciphertext hex blob.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("crypto: generating iv: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; split it back out to
	// match the stored format.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct)), nil
}

// Decrypt unseals an iv:tag:ciphertext hex blob. Returns ErrDecryptFailed
// if the auth tag does not verify.
func Decrypt(blob string, key []byte) (string, error) {
	if len(key) != keySize {
		return "", ErrInvalidKey
	}

	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedCiphertext
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
