package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Seal encrypts plaintext with AES-256-CBC under key and iv, applying PKCS#7 padding
func Seal(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", block.BlockSize(), len(iv))
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Open reverses Seal. Any failure after the key is accepted is reported as
// ErrDecryptionFailed so that callers never see partially decrypted data.
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", ErrMalformedPayload, block.BlockSize(), len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the block size", ErrDecryptionFailed, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return unpadded, nil
}

// Encrypt derives a key from password and salt and returns salt || iv || ciphertext.
// A nil salt is replaced by a random one; the IV is always random.
func Encrypt(plaintext []byte, password string, salt []byte) ([]byte, error) {
	if salt == nil {
		var err error
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}

	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	iv, err := GenerateIV()
	if err != nil {
		return nil, err
	}

	ciphertext, err := Seal(key, iv, plaintext)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, 0, HeaderSize+len(ciphertext))
	payload = append(payload, salt...)
	payload = append(payload, iv...)
	payload = append(payload, ciphertext...)
	return payload, nil
}

// Decrypt splits a salt || iv || ciphertext payload and decrypts it with password
func Decrypt(payload []byte, password string) ([]byte, error) {
	if len(payload) < HeaderSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrMalformedPayload, HeaderSize, len(payload))
	}

	salt := payload[:SaltSize]
	iv := payload[SaltSize:HeaderSize]
	ciphertext := payload[HeaderSize:]

	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	return Open(key, iv, ciphertext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+padLen), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
