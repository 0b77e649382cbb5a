package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required application key size.
	KeySize = 32

	// hkdfInfo separates credential keys from any other use of the app key.
	hkdfInfo = "dialbill-credentials-v1"
)

// Box encrypts carrier credential secrets at rest. Each tenant gets its own
// AES-256-GCM key, derived with HKDF from the application key and the tenant
// id, so a ciphertext copied onto another tenant record does not decrypt.
type Box struct {
	appKey []byte
}

// NewBox validates appKey and returns a Box. The key is copied.
func NewBox(appKey []byte) (*Box, error) {
	if len(appKey) != KeySize {
		return nil, ErrInvalidAppKey
	}
	return &Box{appKey: append([]byte(nil), appKey...)}, nil
}

// NewBoxFromBase64 decodes a standard base64 application key.
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidAppKey, err)
	}
	return NewBox(key)
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (b *Box) Encrypt(tenantID, plaintext string) (string, error) {
	aead, err := b.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(tenantID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt for the same tenant.
func (b *Box) Decrypt(tenantID, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	aead, err := b.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}

	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, sealed, []byte(tenantID))
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (b *Box) aead(tenantID string) (cipher.AEAD, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	key := make([]byte, KeySize)
	defer clear(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, b.appKey, []byte(tenantID), []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey creates a new random application key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateEncodedKey returns a new application key in the base64 form
// CREDENTIALS_APP_KEY expects.
func GenerateEncodedKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
