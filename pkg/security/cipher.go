package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
)

const (
	cipherVersion = "v1"
	keyInfo       = "pickflow:credential-store:" + cipherVersion
)

var (
	// ErrMalformedCiphertext signals a blob that was not produced by TokenCipher.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrDecrypt signals an authentication failure (wrong key or tampered blob).
	ErrDecrypt = errors.New("decrypt credential")
)

// TokenCipher seals credential material with XChaCha20-Poly1305. The key is derived
// from the configured secret with HKDF-SHA256 so rotating the salt invalidates
// every stored blob.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the encryption key from config.
func NewTokenCipher(cfg config.CryptoConfig) (*TokenCipher, error) {
	secret := strings.TrimSpace(cfg.TokenSecret)
	if secret == "" {
		return nil, fmt.Errorf("token encryption secret is required")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(cfg.TokenSalt), []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt returns "v1$<base64(nonce|ciphertext)>". additionalData binds the blob to
// its owner so a blob copied to another tenant row fails to open.
func (c *TokenCipher) Encrypt(plaintext, additionalData []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, additionalData)
	return cipherVersion + "$" + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *TokenCipher) Decrypt(blob string, additionalData []byte) ([]byte, error) {
	version, payload, ok := strings.Cut(blob, "$")
	if !ok || version != cipherVersion {
		return nil, ErrMalformedCiphertext
	}
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrMalformedCiphertext
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, ErrMalformedCiphertext
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
