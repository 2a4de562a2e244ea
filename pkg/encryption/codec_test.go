package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guided-traffic/pagecrypt/internal/crypto"
)

func TestFragmentCodec_RoundTrip(t *testing.T) {
	codec := NewFragmentCodec()
	ctx := context.Background()

	tests := []struct {
		name      string
		plaintext string
		password  string
	}{
		{name: "empty plaintext", plaintext: "", password: "hunter2"},
		{name: "ascii markup", plaintext: "<article><p>Secret</p></article>", password: "hunter2"},
		{name: "multibyte utf-8", plaintext: "<div class=\"markdown-body\"><h1>标题</h1><p>这是一个段落。</p></div>", password: "020218"},
		{name: "multibyte across block boundary", plaintext: "abcdefghijklmn€€€€", password: "pw"},
		{name: "emoji", plaintext: strings.Repeat("🔐", 17), password: "pässwörd"},
		{name: "empty password", plaintext: "still encrypted", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.EncryptFragment(ctx, tt.plaintext, tt.password)
			require.NoError(t, err)

			raw, err := base64.StdEncoding.DecodeString(encoded)
			require.NoError(t, err, "payload must be standard base64")
			assert.GreaterOrEqual(t, len(raw), crypto.HeaderSize)

			decrypted, err := codec.DecryptFragment(ctx, encoded, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestFragmentCodec_NonDeterministic(t *testing.T) {
	codec := NewFragmentCodec()
	ctx := context.Background()

	first, err := codec.EncryptFragment(ctx, "identical", "identical")
	require.NoError(t, err)
	second, err := codec.EncryptFragment(ctx, "identical", "identical")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestFragmentCodec_WrongPassword(t *testing.T) {
	codec := NewFragmentCodec()
	ctx := context.Background()

	plaintext := "<section><h2>Members only</h2><p>" + strings.Repeat("lorem ipsum ", 8) + "</p></section>"
	encoded, err := codec.EncryptFragment(ctx, plaintext, "correct horse")
	require.NoError(t, err)

	decrypted, err := codec.DecryptFragment(ctx, encoded, "battery staple")
	require.Error(t, err)
	assert.Empty(t, decrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.False(t, errors.Is(err, ErrMalformedPayload), "wrong password must not look like corrupt data")

	var payloadErr *PayloadError
	require.ErrorAs(t, err, &payloadErr)
	assert.Equal(t, "decrypt", payloadErr.Operation)
}

func TestFragmentCodec_MalformedPayload(t *testing.T) {
	codec := NewFragmentCodec()
	ctx := context.Background()

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "not base64", encoded: "this is *not* base64!"},
		{name: "truncated base64", encoded: "QUJD="},
		{name: "too short", encoded: base64.StdEncoding.EncodeToString(make([]byte, 31))},
		{name: "empty", encoded: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.DecryptFragment(ctx, tt.encoded, "pw")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.NotErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestFragmentCodec_InvalidUTF8Plaintext(t *testing.T) {
	codec := NewFragmentCodec()

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "latin-1 byte", plaintext: "caf\xe9"},
		{name: "truncated sequence", plaintext: "<p>\xe2\x82</p>"},
		{name: "lone continuation byte", plaintext: "\x80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := codec.EncryptFragment(context.Background(), tt.plaintext, "pw")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPlaintext)
			assert.Empty(t, payload)

			var payloadErr *PayloadError
			require.ErrorAs(t, err, &payloadErr)
			assert.Equal(t, "encrypt", payloadErr.Operation)
		})
	}
}

func TestFragmentCodec_Tampered(t *testing.T) {
	codec := NewFragmentCodec()
	ctx := context.Background()

	encoded, err := codec.EncryptFragment(ctx, "block one.......block two.......", "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	// Drop the final ciphertext byte so the length is no longer block aligned
	tampered := base64.StdEncoding.EncodeToString(raw[:len(raw)-1])

	_, err = codec.DecryptFragment(ctx, tampered, "pw")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestFragmentCodec_CancelledContext(t *testing.T) {
	codec := NewFragmentCodec()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := codec.EncryptFragment(ctx, "x", "y")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = codec.DecryptFragment(ctx, "x", "y")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFragmentCodec_Algorithm(t *testing.T) {
	var encryptor FragmentEncryptor = NewFragmentCodec()
	assert.Equal(t, "pbkdf2-sha256-aes-256-cbc", encryptor.Algorithm())
}
