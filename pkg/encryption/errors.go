package encryption

import (
	"errors"
	"fmt"

	"github.com/guided-traffic/pagecrypt/internal/crypto"
)

// Payload failure kinds. Both are matched with errors.Is against any error
// returned by DecryptFragment.
var (
	ErrMalformedPayload = crypto.ErrMalformedPayload
	ErrDecryptionFailed = crypto.ErrDecryptionFailed
)

// ErrInvalidPlaintext means EncryptFragment was given text that is not valid UTF-8
var ErrInvalidPlaintext = errors.New("plaintext is not valid UTF-8")

// PayloadError describes a failed encrypt or decrypt of a single fragment
type PayloadError struct {
	Operation string // "encrypt" or "decrypt"
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

func newPayloadError(operation string, err error) error {
	return &PayloadError{
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}
