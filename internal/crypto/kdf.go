package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Protocol constants shared with the browser decryptor. Changing any of them
// breaks every payload already published.
const (
	// SaltSize is the length of the PBKDF2 salt prefixed to every payload
	SaltSize = 16

	// IVSize is the length of the CBC initialization vector that follows the salt
	IVSize = 16

	// KeySize is the derived key length (AES-256)
	KeySize = 32

	// Iterations is the PBKDF2-HMAC-SHA256 iteration count
	Iterations = 10000

	// HeaderSize is the minimum payload length: salt plus IV
	HeaderSize = SaltSize + IVSize
)

// randReader is the entropy source for salts and IVs. Tests may swap it.
var randReader io.Reader = rand.Reader

// DeriveKey derives the AES-256 key for a password and a 16-byte salt using
// PBKDF2-HMAC-SHA256 with the protocol iteration count
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return deriveKey([]byte(password), salt, Iterations, KeySize), nil
}

func deriveKey(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

// GenerateSalt returns a fresh random salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateIV returns a fresh random CBC initialization vector
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}
