package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrTokenMalformed = errors.New("deletion token malformed")
	ErrTokenForged    = errors.New("deletion token invalid for this paste")
	ErrTokenExpired   = errors.New("deletion token expired")
)

// Tokens issues and checks owner deletion tokens. A token is the paste's
// expiry sealed with XChaCha20-Poly1305 using the paste id as additional
// data, so it only opens for the paste it was issued for.
type Tokens struct {
	aead cipher.AEAD
}

func NewTokens(key []byte) (*Tokens, error) {
	if err := validateKeyEntropy(key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "init token cipher")
	}
	return &Tokens{aead: aead}, nil
}

// GenerateKey returns a fresh random key for deployments that do not supply
// one. Tokens then stop verifying after a restart, which is harmless because
// the pastes are gone too.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate token key")
	}
	return key, nil
}

func validateKeyEntropy(secret []byte) error {
	if len(secret) != chacha20poly1305.KeySize {
		return errors.Errorf("deletion token key must be exactly %d bytes", chacha20poly1305.KeySize)
	}
	unique := make(map[byte]struct{})
	for _, b := range secret {
		unique[b] = struct{}{}
	}
	if len(unique) < 16 {
		return errors.New("deletion token key has insufficient entropy (too many repeating bytes)")
	}
	return nil
}

func (t *Tokens) Issue(pasteID string, expiresAt time.Time) (string, error) {
	nonce := make([]byte, t.aead.NonceSize(), t.aead.NonceSize()+8+t.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "token nonce")
	}
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(expiresAt.Unix()))
	sealed := t.aead.Seal(nonce, nonce, payload, []byte(pasteID))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (t *Tokens) Verify(token, pasteID string, now time.Time) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != t.aead.NonceSize()+8+t.aead.Overhead() {
		return ErrTokenMalformed
	}
	nonce, sealed := raw[:t.aead.NonceSize()], raw[t.aead.NonceSize():]
	payload, err := t.aead.Open(nil, nonce, sealed, []byte(pasteID))
	if err != nil {
		return ErrTokenForged
	}
	expiry := int64(binary.BigEndian.Uint64(payload))
	if now.Unix() > expiry {
		return ErrTokenExpired
	}
	return nil
}
