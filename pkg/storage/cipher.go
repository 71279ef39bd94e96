package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Supported value ciphers
const (
	CipherAES256GCM         = "aes-256-gcm"
	CipherXChaCha20Poly1305 = "xchacha20-poly1305"
)

// Cipher transforms stored values. Encrypt and Decrypt must be exact inverses
// for every byte string, including the empty one.
type Cipher interface {
	Name() string
	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

// CipherByName returns the cipher registered under name
func CipherByName(name string) (Cipher, error) {
	switch name {
	case CipherAES256GCM:
		return aesGCM{}, nil
	case CipherXChaCha20Poly1305:
		return xchacha{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
}

// Encrypt seals plaintext with AES-256-GCM. The random nonce is prepended.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	return aesGCM{}.Encrypt(plaintext, key)
}

// Decrypt opens data produced by Encrypt
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	return aesGCM{}.Decrypt(ciphertext, key)
}

// GenerateKey returns a fresh random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", ErrEncryption, err)
	}
	return key, nil
}

type aesGCM struct{}

func (aesGCM) Name() string { return CipherAES256GCM }

func (aesGCM) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes for AES-256, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (c aesGCM) Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := c.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return seal(gcm, plaintext)
}

func (c aesGCM) Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := c.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return open(gcm, ciphertext)
}

type xchacha struct{}

func (xchacha) Name() string { return CipherXChaCha20Poly1305 }

func (xchacha) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}
	return aead, nil
}

func (c xchacha) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return seal(aead, plaintext)
}

func (c xchacha) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := c.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return open(aead, ciphertext)
}

// seal encrypts and prepends the nonce
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrEncryption, err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open expects the nonce prepended to the ciphertext
func open(aead cipher.AEAD, ciphertext []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(ciphertext))
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
