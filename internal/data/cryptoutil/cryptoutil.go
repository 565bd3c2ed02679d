// Package cryptoutil encrypts OAuth credentials before they are written to Postgres.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encryptor encrypts and decrypts values stored at rest.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

const (
	// Versioned prefix to allow future key/algorithm rotations without data migrations.
	cipherPrefixV1 = "v1:"
	noopPrefix     = "noop:"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// DeriveKey turns a configured secret into a KeySize key. A 64 character hex
// string is used as is; anything else is hashed with SHA-256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	if decoded, err := hex.DecodeString(secret); err == nil && len(decoded) == KeySize {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor constructs a new AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a random nonce and returns "v1:" + base64(nonce||ciphertext).
func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return cipherPrefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values written by NoopEncryptor,
// before a key was configured, are still readable.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(ciphertext, noopPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode noop ciphertext: %w", err)
		}
		return decoded, nil
	}

	rest, ok := strings.CutPrefix(ciphertext, cipherPrefixV1)
	if !ok {
		prefix := ciphertext
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", prefix)
	}
	data, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, err
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	return e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
}

// NoopEncryptor stores plaintext with a prefix marker. Used when no key is configured.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext []byte) (string, error) {
	return noopPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	rest, ok := strings.CutPrefix(ciphertext, noopPrefix)
	if !ok {
		return nil, errors.New("invalid noop ciphertext")
	}
	return base64.StdEncoding.DecodeString(rest)
}
