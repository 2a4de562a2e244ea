package encryption

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/guided-traffic/pagecrypt/internal/crypto"
)

// AlgorithmPBKDF2AESCBC identifies the fragment protocol:
// PBKDF2-HMAC-SHA256 (10000 iterations) feeding AES-256-CBC with PKCS#7 padding
const AlgorithmPBKDF2AESCBC = "pbkdf2-sha256-aes-256-cbc"

// FragmentCodec implements FragmentEncryptor with the browser-compatible protocol
type FragmentCodec struct {
	encoding *base64.Encoding
}

// NewFragmentCodec creates a codec emitting standard padded base64, which is
// what atob() in the browser decryptor accepts
func NewFragmentCodec() *FragmentCodec {
	return &FragmentCodec{
		encoding: base64.StdEncoding,
	}
}

// EncryptFragment encrypts plaintext with a fresh salt and IV. Plaintext must
// be valid UTF-8, the only form DecryptFragment and the browser accept back.
func (c *FragmentCodec) EncryptFragment(ctx context.Context, plaintext string, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !utf8.ValidString(plaintext) {
		return "", newPayloadError("encrypt", ErrInvalidPlaintext)
	}

	payload, err := crypto.Encrypt([]byte(plaintext), password, nil)
	if err != nil {
		return "", newPayloadError("encrypt", err)
	}

	return c.encoding.EncodeToString(payload), nil
}

// DecryptFragment decodes and decrypts a payload produced by EncryptFragment
func (c *FragmentCodec) DecryptFragment(ctx context.Context, encoded string, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload, err := c.encoding.DecodeString(encoded)
	if err != nil {
		return "", newPayloadError("decrypt", fmt.Errorf("%w: invalid base64: %v", ErrMalformedPayload, err))
	}

	plaintext, err := crypto.Decrypt(payload, password)
	if err != nil {
		return "", newPayloadError("decrypt", err)
	}

	// Fragments are always UTF-8 text; garbage that slipped past the padding
	// check under a wrong key is rejected here
	if !utf8.Valid(plaintext) {
		return "", newPayloadError("decrypt", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed))
	}

	return string(plaintext), nil
}

// Algorithm returns the protocol identifier
func (c *FragmentCodec) Algorithm() string {
	return AlgorithmPBKDF2AESCBC
}
