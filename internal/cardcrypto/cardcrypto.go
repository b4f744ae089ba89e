package cardcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrDecryptFailed covers every way a ciphertext can fail to open: wrong
// key, truncation, bad padding. Callers return a generic 500 for it and
// must not echo details to the client.
var ErrDecryptFailed = errors.New("decryption failed")

type Codec struct {
	key []byte
}

func New(key []byte) (*Codec, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	return &Codec{key: key}, nil
}

// Encrypt encrypts a string using AES-CBC with PKCS#7 padding. The random
// IV is prepended to the ciphertext and the whole blob is hex-encoded.
func (c *Codec) Encrypt(data string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("input data is empty")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	dataBytes := []byte(data)
	padding := aes.BlockSize - len(dataBytes)%aes.BlockSize
	for i := 0; i < padding; i++ {
		dataBytes = append(dataBytes, byte(padding))
	}

	ciphertext := make([]byte, len(dataBytes))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, dataBytes)

	return hex.EncodeToString(append(iv, ciphertext...)), nil
}

// Decrypt reverses Encrypt. Any structural fault in the blob yields
// ErrDecryptFailed without further detail.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(data) < aes.BlockSize {
		return "", ErrDecryptFailed
	}

	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	padding := int(plaintext[len(plaintext)-1])
	if padding > aes.BlockSize || padding == 0 || padding > len(plaintext) {
		return "", ErrDecryptFailed
	}
	for i := len(plaintext) - padding; i < len(plaintext); i++ {
		if int(plaintext[i]) != padding {
			return "", ErrDecryptFailed
		}
	}

	return string(plaintext[:len(plaintext)-padding]), nil
}

// HashData computes a deterministic keyed one-way hash over the normalized
// value. Used for card-number fingerprints and CVV verification.
func (c *Codec) HashData(value string) string {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(Normalize(value)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize strips the separators people type into card numbers so that
// "4111 1111 1111 1111" and "4111-1111-1111-1111" fingerprint identically.
func Normalize(value string) string {
	value = strings.ReplaceAll(value, " ", "")
	return strings.ReplaceAll(value, "-", "")
}
