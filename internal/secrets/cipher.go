// Package secrets encrypts stored upstream access tokens.
//
// Envelope format: "v1:iv_hex:tag_hex:ciphertext_hex" (AES-256-GCM). Values
// without the version prefix are legacy plaintext tokens and pass through
// unchanged so existing rows keep working.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const envelopePrefix = "v1"

const gcmTagSize = 16

// Cipher seals and opens token envelopes with a key derived from the
// configured secret.
type Cipher struct {
	key []byte
}

// NewCipher derives the AES key from the configured secret string.
func NewCipher(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("secrets: key required")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Cipher{key: sum[:]}, nil
}

// Encrypt seals plaintext into a versioned envelope.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]
	return strings.Join([]string{
		envelopePrefix,
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens an envelope. Unprefixed values are returned as-is (legacy
// plaintext tokens from before envelope encryption existed).
func (c *Cipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, envelopePrefix+":") {
		return value, nil
	}
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return "", fmt.Errorf("secrets: malformed envelope")
	}
	iv, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secrets: bad iv: %w", err)
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("secrets: bad tag: %w", err)
	}
	ct, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", fmt.Errorf("secrets: bad ciphertext: %w", err)
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	if len(iv) != gcm.NonceSize() || len(tag) != gcmTagSize {
		return "", fmt.Errorf("secrets: malformed envelope")
	}
	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
