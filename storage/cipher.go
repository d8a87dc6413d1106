package storage

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher is the pluggable encrypt/decrypt boundary for values at rest.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// ErrDecrypt indicates a value could not be decrypted (wrong key or corrupt data).
var ErrDecrypt = errors.New("storage: decryption failed")

// ObfuscatingCipher is a reversible base64 encoding, NOT encryption. It exists
// only to read values persisted by older clients that used plain encoding as a
// stand-in; new deployments should supply an [AEADCipher].
type ObfuscatingCipher struct{}

func (ObfuscatingCipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(plaintext)))
	base64.StdEncoding.Encode(out, plaintext)
	return out, nil
}

func (ObfuscatingCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(ciphertext)))
	n, err := base64.StdEncoding.Decode(out, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return out[:n], nil
}

// AEADCipher encrypts values with XChaCha20-Poly1305. The random nonce is
// prepended to each ciphertext.
type AEADCipher struct {
	key []byte
}

// NewAEADCipher creates an [AEADCipher]. The key must be exactly 32 bytes.
func NewAEADCipher(key []byte) (*AEADCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("storage: cipher key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &AEADCipher{key: k}, nil
}

func (c *AEADCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *AEADCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// Encrypted wraps a [Store] and passes every value through a [Cipher].
// Ciphertext is base64-encoded before hitting the underlying driver so any
// string-keyed backend can hold it.
type Encrypted struct {
	inner  Store
	cipher Cipher
}

// NewEncrypted layers cipher over inner.
func NewEncrypted(inner Store, cipher Cipher) *Encrypted {
	return &Encrypted{inner: inner, cipher: cipher}
}

func (e *Encrypted) Get(key string) (string, error) {
	raw, err := e.inner.Get(key)
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	plaintext, err := e.cipher.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (e *Encrypted) Set(key, value string) error {
	sealed, err := e.cipher.Encrypt([]byte(value))
	if err != nil {
		return err
	}
	return e.inner.Set(key, base64.StdEncoding.EncodeToString(sealed))
}

func (e *Encrypted) Delete(key string) error {
	return e.inner.Delete(key)
}
