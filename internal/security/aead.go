package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	SymmetricKeySize = 32
	gcmIVSize        = 12
	gcmTagSize       = 16
)

var ErrDecryptionFailed = errors.New("decryption failed")

// SealedPayload is the output of AES-256-GCM with the tag split from the
// ciphertext. Byte slices marshal to base64 in JSON.
type SealedPayload struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

func EncryptAuthenticated(plaintext, key []byte) (*SealedPayload, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcmTagSize
	return &SealedPayload{
		IV:         iv,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

func DecryptAuthenticated(p *SealedPayload, key []byte) ([]byte, error) {
	if p == nil || len(p.IV) != gcmIVSize || len(p.Tag) != gcmTagSize {
		return nil, ErrDecryptionFailed
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)
	plain, err := aead.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("symmetric key must be %d bytes, got %d", SymmetricKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
