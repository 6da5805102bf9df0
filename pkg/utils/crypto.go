package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrDecryption means stored ciphertext could not be opened with the
// configured key. It is never transient.
var ErrDecryption = errors.New("token decryption failed")

// TokenCipher encrypts credential material at rest with one process-wide key.
type TokenCipher struct {
	key []byte
}

func NewTokenCipher(key []byte) (*TokenCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &TokenCipher{key: k}, nil
}

func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	return Encrypt([]byte(plaintext), c.key)
}

func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	return Decrypt(ciphertext, c.key)
}

// EncryptOptional leaves empty values empty so absent tokens stay absent.
func (c *TokenCipher) EncryptOptional(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return c.Encrypt(plaintext)
}

func (c *TokenCipher) DecryptOptional(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	return c.Decrypt(ciphertext)
}

func Encrypt(plaintext, key []byte) (string, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return "", err
	}

	// Fresh nonce per call
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	sealed := aesGCM.Seal(nonce, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 nonce||ciphertext produced by Encrypt. Every failure
// wraps ErrDecryption.
func Decrypt(encryptedData string, key []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	aesGCM, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize+aesGCM.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return aesGCM, nil
}
