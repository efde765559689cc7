package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tabloop/pkg/adapters/memory"
	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/persistence/middleware"
	"github.com/aretw0/tabloop/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

func sampleEntry() domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:             "e1",
		RunID:          "r1",
		Question:       "What did alice@example.com buy?",
		Answer:         "Alice bought 3 widgets.",
		Success:        true,
		IterationsUsed: 2,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewLedgerStore())
	ports.RunLedgerStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewLedgerStore()
	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	entry := sampleEntry()
	require.NoError(t, secure.Append(ctx, entry))

	raw, err := underlying.List(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Empty(t, raw[0].Question)
	assert.True(t, strings.HasPrefix(raw[0].Answer, "enc:v1:"))
	assert.NotContains(t, raw[0].Answer, "widgets")
	assert.True(t, raw[0].Success, "outcome stays readable")

	got, err := secure.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.LedgerEntry{entry}, got)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewLedgerStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	require.NoError(t, encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlying).Append(ctx, sampleEntry()))

	rotated := encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})(underlying)
	got, err := rotated.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice bought 3 widgets.", got[0].Answer)

	wrong := encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey})(underlying)
	_, err = wrong.List(ctx)
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_FailsOnPlainEntries(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewLedgerStore()
	require.NoError(t, underlying.Append(ctx, sampleEntry()))

	_, err := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying).List(ctx)
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestEncryptionMiddleware_KeySize(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	_, err = middleware.ParseKey("c2hvcnQ=")
	assert.ErrorIs(t, err, middleware.ErrKeySize)

	key, err := middleware.ParseKey("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestPIIMiddleware(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewLedgerStore()
	mw, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)
	store := mw(underlying)

	entry := sampleEntry()
	entry.Answer = "Card 4111 1111 1111 1111 belongs to alice@example.com."
	require.NoError(t, store.Append(ctx, entry))

	got, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "What did *** buy?", got[0].Question)
	assert.NotContains(t, got[0].Answer, "4111")
	assert.NotContains(t, got[0].Answer, "alice@example.com")

	_, err = middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewLedgerStore()
	pii, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
	require.NoError(t, err)
	store := middleware.Chain(underlying, pii, encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}))

	require.NoError(t, store.Append(ctx, sampleEntry()))

	got, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "What did *** buy?", got[0].Question)

	raw, err := underlying.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw[0].Question)
}
