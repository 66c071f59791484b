package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/geovault/geovault/internal/models"
)

// ErrDecrypt covers every way a sealed record can fail to open: malformed
// base64, authentication failure, or unparseable plaintext. Callers only need
// to know the operation failed as a whole.
var ErrDecrypt = errors.New("decryption failed")

// ManagerInterface defines sealing and opening of location records.
type ManagerInterface interface {
	EncryptLocation(location *models.Location) (models.EncryptedLocation, error)
	DecryptLocation(encrypted *models.EncryptedLocation) (*models.Location, error)
}

// Manager implements ChaCha20-Poly1305 sealing of location records. The key
// is derived once from a process-local secret and never leaves the boundary.
type Manager struct {
	aead cipher.AEAD
}

// NewManager creates a Manager keyed from a fresh random secret. The secret
// is never persisted, so sealed records are only recoverable by the process
// that produced them.
func NewManager() (*Manager, error) {
	secret := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return NewManagerWithSecret(secret)
}

// NewManagerWithSecret creates a Manager keyed from the given secret. The key
// is the SHA-256 hash of the secret.
func NewManagerWithSecret(secret []byte) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	key := sha256.Sum256(secret)

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}
	return &Manager{aead: aead}, nil
}

// EncryptLocation seals a location record under a fresh random nonce and
// returns the base64 ciphertext and nonce. Encryption is non-deterministic:
// two calls with the same input never share a nonce or ciphertext.
func (m *Manager) EncryptLocation(location *models.Location) (models.EncryptedLocation, error) {
	plaintext, err := json.Marshal(location)
	if err != nil {
		return models.EncryptedLocation{}, fmt.Errorf("failed to serialize location: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedLocation{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := m.aead.Seal(nil, nonce, plaintext, nil)
	return models.EncryptedLocation{
		EncData:   base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
		Timestamp: location.Timestamp,
	}, nil
}

// DecryptLocation opens a sealed record. Any failure is reported as
// ErrDecrypt; the operation is never partially applied.
func (m *Manager) DecryptLocation(encrypted *models.EncryptedLocation) (*models.Location, error) {
	nonce, err := base64.StdEncoding.DecodeString(encrypted.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding: %v", ErrDecrypt, err)
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: nonce size %d, want %d", ErrDecrypt, len(nonce), chacha20poly1305.NonceSize)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted.EncData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding: %v", ErrDecrypt, err)
	}

	plaintext, err := m.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	var location models.Location
	if err := json.Unmarshal(plaintext, &location); err != nil {
		return nil, fmt.Errorf("%w: bad plaintext: %v", ErrDecrypt, err)
	}
	return &location, nil
}
