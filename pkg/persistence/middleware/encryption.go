package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/ports"
)

// envelopePrefix marks an encrypted entry. The payload follows in base64.
const envelopePrefix = "enc:v1:"

// ErrKeySize is returned for keys that are not 32 bytes long.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// ErrNotEncrypted is returned when a stored entry lacks an envelope.
var ErrNotEncrypted = errors.New("ledger entry is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.LedgerStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts ledger entries
// using AES-GCM. The question and answer only exist inside the envelope; the
// outcome fields stay readable so summaries and TTLs work on the raw store.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	return func(next ports.LedgerStore) ports.LedgerStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key base64: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	return key, nil
}

func (m *encryptionMiddleware) Append(ctx context.Context, entry domain.LedgerEntry) error {
	plainText, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt entry: %w", err)
	}

	envelope := entry
	envelope.Question = ""
	envelope.Answer = envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext)
	return m.next.Append(ctx, envelope)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.LedgerEntry, error) {
	envelopes, err := m.next.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LedgerEntry, len(envelopes))
	for i, env := range envelopes {
		entry, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", env.ID, err)
		}
		out[i] = entry
	}
	return out, nil
}

func (m *encryptionMiddleware) open(env domain.LedgerEntry) (domain.LedgerEntry, error) {
	encoded, ok := strings.CutPrefix(env.Answer, envelopePrefix)
	if !ok {
		return domain.LedgerEntry{}, ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	// Try Active, then Fallback
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("failed to decrypt entry: %w", err)
	}

	var entry domain.LedgerEntry
	if err := json.Unmarshal(plainText, &entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("failed to unmarshal decrypted entry: %w", err)
	}
	return entry, nil
}

func (m *encryptionMiddleware) Clear(ctx context.Context) error {
	return m.next.Clear(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
