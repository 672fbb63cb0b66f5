// Package crypto provides at-rest encryption for tokens, API keys and message bodies.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	SaltLength = 32
	IVLength   = 16
	TagLength  = 16
	KeyLength  = 32

	// scrypt cost parameters
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

var (
	ErrEmptyMasterKey    = errors.New("encryption master key is empty")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Encryptor performs AES-256-GCM encryption with a fresh scrypt-derived key per value.
//
// Ciphertext layout (base64 std encoding): salt(32) | iv(16) | ciphertext+tag.
type Encryptor struct {
	masterKey []byte
	random    io.Reader
}

// NewEncryptor creates an encryptor from the configured master key.
// A base64-encoded master key is decoded; anything else is used as raw bytes.
func NewEncryptor(masterKey string) (*Encryptor, error) {
	if masterKey == "" {
		return nil, ErrEmptyMasterKey
	}

	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil || len(key) == 0 {
		key = []byte(masterKey)
	}

	return &Encryptor{
		masterKey: key,
		random:    rand.Reader,
	}, nil
}

func (e *Encryptor) deriveKey(salt []byte) ([]byte, error) {
	key, err := scrypt.Key(e.masterKey, salt, scryptN, scryptR, scryptP, KeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, IVLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext and returns base64-encoded ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	buf := make([]byte, SaltLength+IVLength)
	if _, err := io.ReadFull(e.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt, iv := buf[:SaltLength], buf[SaltLength:]

	key, err := e.deriveKey(salt)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(buf, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts base64-encoded ciphertext produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	if len(data) < SaltLength+IVLength+TagLength {
		return "", ErrInvalidCiphertext
	}

	salt := data[:SaltLength]
	iv := data[SaltLength : SaltLength+IVLength]
	sealed := data[SaltLength+IVLength:]

	key, err := e.deriveKey(salt)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// Hash returns the hex sha256 digest of content.
func (e *Encryptor) Hash(content string) string {
	return Hash(content)
}

// Hash returns the hex sha256 digest of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IsEncrypted reports whether s decodes to something long enough to be our ciphertext.
func IsEncrypted(s string) bool {
	if s == "" {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}

	return len(decoded) >= SaltLength+IVLength+TagLength
}
