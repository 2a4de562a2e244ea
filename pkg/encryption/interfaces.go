package encryption

import (
	"context"
)

// FragmentEncryptor turns HTML fragments into text-safe encrypted payloads and back
type FragmentEncryptor interface {
	// EncryptFragment encrypts plaintext under password and returns the base64
	// encoded salt || iv || ciphertext payload. Output differs on every call.
	EncryptFragment(ctx context.Context, plaintext string, password string) (string, error)

	// DecryptFragment is the exact inverse of EncryptFragment
	DecryptFragment(ctx context.Context, encoded string, password string) (string, error)

	// Algorithm returns the protocol identifier
	Algorithm() string
}
