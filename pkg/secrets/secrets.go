package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the application key length (AES-256).
	KeySize = 32

	prefix = "sealed:v1:"
	info   = "substrack-credentials-v1"
)

// Sealer encrypts and decrypts scoped secrets.
type Sealer struct {
	key []byte
}

// New copies key. It must be KeySize bytes.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// NewFromBase64 decodes a standard base64 key, as produced by GenerateKey.
func NewFromBase64(s string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return New(key)
}

// GenerateKey returns a random base64-encoded key for NewFromBase64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// IsSealed reports whether v was produced by Seal.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// Seal encrypts plaintext for scope. The empty string stays empty so unset
// credentials remain recognisable.
func (s *Sealer) Seal(scope []byte, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := s.aead(scope)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), scope)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal for the same scope. Values without
// the sealed prefix are returned unchanged.
func (s *Sealer) Open(scope []byte, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	aead, err := s.aead(scope)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, scope)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

func (s *Sealer) aead(scope []byte) (cipher.AEAD, error) {
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.key, scope, []byte(info)), derived); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	defer clear(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
