package pipeline

import "errors"

var (
	// ErrDocumentParse means the article could not be read or parsed; it is skipped
	ErrDocumentParse = errors.New("failed to read or parse document")

	// ErrMissingInjectionPoint means the document has no <head> to receive the payload map
	ErrMissingInjectionPoint = errors.New("document has no <head> element")

	// ErrWriteFailure means the rewritten document could not be stored
	ErrWriteFailure = errors.New("failed to write document")

	// ErrAlreadyEncrypted means the document already carries an injected payload map
	ErrAlreadyEncrypted = errors.New("document is already encrypted")
)
