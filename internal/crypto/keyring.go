package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fieldKeyInfo = "coffer-field-encryption-v1"
	indexKeyInfo = "coffer-blind-index-v1"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrKeyringClosed        = errors.New("keyring is closed")
)

// Keyring holds the subkeys derived from a store passphrase. Seal/Open
// encrypt column values; Index computes deterministic blind indexes so that
// equality and uniqueness can be enforced on sealed columns.
type Keyring struct {
	field *memguard.LockedBuffer
	index *memguard.LockedBuffer
}

// NewKeyring derives a keyring from passphrase and salt.
func NewKeyring(passphrase, salt []byte, params Argon2Params) (*Keyring, error) {
	master, err := DeriveMasterKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(master)

	fieldKey, err := deriveSubkey(master, salt, fieldKeyInfo)
	if err != nil {
		return nil, err
	}
	indexKey, err := deriveSubkey(master, salt, indexKeyInfo)
	if err != nil {
		memguard.WipeBytes(fieldKey)
		return nil, err
	}

	return &Keyring{
		field: memguard.NewBufferFromBytes(fieldKey),
		index: memguard.NewBufferFromBytes(indexKey),
	}, nil
}

// Seal encrypts plaintext bound to aad. The result is nonce||ciphertext.
func (k *Keyring) Seal(aad string, plaintext []byte) ([]byte, error) {
	if k.closed() {
		return nil, ErrKeyringClosed
	}

	aead, err := chacha20poly1305.NewX(k.field.Bytes())
	if err != nil {
		return nil, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, []byte(aad)), nil
}

// Open reverses Seal.
func (k *Keyring) Open(aad string, blob []byte) ([]byte, error) {
	if k.closed() {
		return nil, ErrKeyringClosed
	}
	if len(blob) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(blob))
	}

	aead, err := chacha20poly1305.NewX(k.field.Bytes())
	if err != nil {
		return nil, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}

	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// SealString is Seal for string values.
func (k *Keyring) SealString(aad, value string) ([]byte, error) {
	return k.Seal(aad, []byte(value))
}

// OpenString is Open for string values.
func (k *Keyring) OpenString(aad string, blob []byte) (string, error) {
	plaintext, err := k.Open(aad, blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Index returns the HMAC-SHA256 blind index of value within domain.
func (k *Keyring) Index(domain, value string) []byte {
	mac := hmac.New(sha256.New, k.index.Bytes())
	mac.Write([]byte(domain))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// Destroy wipes the key material. The keyring is unusable afterwards.
func (k *Keyring) Destroy() {
	if k == nil {
		return
	}
	k.field.Destroy()
	k.index.Destroy()
}

func (k *Keyring) closed() bool {
	return k == nil || !k.field.IsAlive() || !k.index.IsAlive()
}
