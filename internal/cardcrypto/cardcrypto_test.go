package cardcrypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestNewRejectsBadKeySize(t *testing.T) {
	_, err := New([]byte("short"))
	require.Error(t, err)

	_, err = New(testKey)
	require.NoError(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	plaintext := `{"card_number":"4111111111111111","cardholder_name":"Jordan Fan"}`
	ciphertext, err := codec.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotContains(t, ciphertext, "4111111111111111")

	decrypted, err := codec.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptUsesRandomIV(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	a, err := codec.Encrypt("same input")
	require.NoError(t, err)
	b, err := codec.Encrypt("same input")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	ciphertext, err := codec.Encrypt("sensitive")
	require.NoError(t, err)

	cases := map[string]string{
		"not hex":       "zzzz",
		"too short":     "abcd",
		"truncated":     ciphertext[:len(ciphertext)-8],
		"flipped bytes": strings.Repeat("00", 64),
	}
	for name, bad := range cases {
		_, err := codec.Decrypt(bad)
		require.ErrorIs(t, err, ErrDecryptFailed, name)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)
	other, err := New([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	ciphertext, err := codec.Encrypt("sensitive")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestHashDataDeterministic(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	a := codec.HashData("4111111111111111")
	b := codec.HashData("4111111111111111")
	require.Equal(t, a, b)
	require.NotEqual(t, a, codec.HashData("4111111111111112"))
	require.NotContains(t, a, "4111")
}

func TestHashDataNormalizesFormatting(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	require.Equal(t,
		codec.HashData("4111111111111111"),
		codec.HashData("4111 1111 1111 1111"))
	require.Equal(t,
		codec.HashData("4111111111111111"),
		codec.HashData("4111-1111-1111-1111"))
}
