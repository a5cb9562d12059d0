package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealedKeyInfo = "wa-session-gateway credential blob v1"

var _ Store = (*SealedStore)(nil)

// SealedStore encrypts blobs with XChaCha20-Poly1305 before handing them to the
// wrapped store. Each blob is bound to its key as associated data, so a blob copied
// to another tenant's namespace fails to open.
type SealedStore struct {
	inner Store
	key   []byte
}

// NewSealedStore derives the data key from masterKey with HKDF-SHA256.
// masterKey must be at least 32 bytes.
func NewSealedStore(inner Store, masterKey []byte) (*SealedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("[NewSealedStore] inner store is required")
	}
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("[NewSealedStore] master key must be at least 32 bytes, got %d", len(masterKey))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(sealedKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("[NewSealedStore] derive key: %w", err)
	}
	return &SealedStore{inner: inner, key: key}, nil
}

func (s *SealedStore) Put(ctx context.Context, key string, data []byte) error {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("[SealedStore Put] %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("[SealedStore Put] nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, data, []byte(key))
	return s.inner.Put(ctx, key, sealed)
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("[SealedStore Get] %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("[SealedStore Get] blob %s is too short to be sealed", key)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("[SealedStore Get] open %s: %w", key, err)
	}
	return plain, nil
}

func (s *SealedStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.ListKeys(ctx, prefix)
}

func (s *SealedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *SealedStore) DeleteAll(ctx context.Context, prefix string) error {
	return s.inner.DeleteAll(ctx, prefix)
}
