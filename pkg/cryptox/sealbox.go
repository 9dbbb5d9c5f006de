package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the sealing key from a passphrase. These
// are interactive-login strength: sealing happens once per credential write,
// not in a request hot path.
const (
	deriveTime    = 2
	deriveMemory  = 64 * 1024
	deriveThreads = 1
	deriveKeyLen  = 32
	saltLength    = 16
)

// ErrCiphertextTooShort reports sealed data shorter than its framing allows.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// SealBox encrypts small secrets at rest with AES-256-GCM. The key is derived
// per box from a passphrase via Argon2id, so two boxes with the same
// passphrase but different salts produce unrelated keys.
//
// Wire format: [16-byte salt][12-byte nonce][ciphertext+tag].
type SealBox struct {
	passphrase []byte
}

// NewSealBox returns a box sealing with the given passphrase.
func NewSealBox(passphrase string) (*SealBox, error) {
	if passphrase == "" {
		return nil, errors.New("cryptox: sealbox passphrase must not be empty")
	}
	return &SealBox{passphrase: []byte(passphrase)}, nil
}

func (b *SealBox) deriveKey(salt []byte) []byte {
	return argon2.IDKey(b.passphrase, salt, deriveTime, deriveMemory, deriveThreads, deriveKeyLen)
}

// Seal encrypts plaintext and returns the framed ciphertext.
func (b *SealBox) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := b.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (b *SealBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength {
		return nil, ErrCiphertextTooShort
	}
	salt, rest := sealed[:saltLength], sealed[saltLength:]

	gcm, err := b.aead(salt)
	if err != nil {
		return nil, err
	}

	if len(rest) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (b *SealBox) aead(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
