// Package vault encrypts secret values at rest with a passphrase-derived
// key. Ciphertext and nonce are stored separately in the store's secrets
// table; the higher-level Store/Reveal helpers tie the two together.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"github.com/ksofianos/cadre/internal/store"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Vault provides XChaCha20-Poly1305 encryption with a passphrase-derived key.
type Vault struct {
	key [chacha20poly1305.KeySize]byte
}

// New derives the key from the passphrase via Argon2id. The salt is
// deterministic (SHA-256 of the passphrase), so the same passphrase
// always produces the same key across restarts.
func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, chacha20poly1305.KeySize)

	v := &Vault{}
	copy(v.key[:], key)
	return v
}

// Encrypt seals the plaintext with a random nonce.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(v.key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("create aead: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Store encrypts and persists a named secret, replacing any existing
// value under the same name.
func (v *Vault) Store(s *store.Store, name string, value []byte) error {
	ciphertext, nonce, err := v.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt secret %s: %w", name, err)
	}
	return s.SaveSecret(&store.Secret{
		ID:    uuid.New().String(),
		Name:  name,
		Value: ciphertext,
		Nonce: nonce,
	})
}

// Reveal loads and decrypts a named secret. A missing secret is an error.
func (v *Vault) Reveal(s *store.Store, name string) ([]byte, error) {
	sec, err := s.GetSecret(name)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, fmt.Errorf("secret not found: %s", name)
	}
	plaintext, err := v.Decrypt(sec.Value, sec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("reveal secret %s: %w", name, err)
	}
	return plaintext, nil
}
