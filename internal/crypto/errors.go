package crypto

import "errors"

var (
	// ErrMalformedPayload is returned when a payload cannot be a valid
	// salt || iv || ciphertext layout (too short, misaligned, not base64)
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrDecryptionFailed is returned when the cipher or padding check fails,
	// which is what a wrong password or tampered ciphertext looks like
	ErrDecryptionFailed = errors.New("decryption failed")
)
