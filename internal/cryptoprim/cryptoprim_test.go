package cryptoprim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testParams() KDFParams {
	return KDFParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := DeriveKey("password", make([]byte, SaltSize), testParams())
	defer key.Zero()

	blob, err := key.Encrypt([]byte("hello, world!"))
	require.NoError(t, err)

	plaintext, err := key.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, "hello, world!", string(plaintext))
}

func TestDecryptWrongKeyFails(t *testing.T) {
	salt := make([]byte, SaltSize)
	key1 := DeriveKey("password1", salt, testParams())
	key2 := DeriveKey("password2", salt, testParams())
	defer key1.Zero()
	defer key2.Zero()

	blob, err := key1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = key2.Decrypt(blob)
	require.Error(t, err)
}

func TestEncryptUniqueNonces(t *testing.T) {
	key := DeriveKey("password", make([]byte, SaltSize), testParams())
	defer key.Zero()

	b1, err := key.Encrypt([]byte("data"))
	require.NoError(t, err)
	b2, err := key.Encrypt([]byte("data"))
	require.NoError(t, err)
	require.NotEqual(t, b1.Nonce, b2.Nonce)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := make([]byte, SaltSize)
	k1 := DeriveKey("password", salt, testParams())
	k2 := DeriveKey("password", salt, testParams())
	defer k1.Zero()
	defer k2.Zero()
	require.Equal(t, k1.bytes, k2.bytes)
}

func TestDeriveKeyDifferentPasswords(t *testing.T) {
	salt := make([]byte, SaltSize)
	k1 := DeriveKey("password1", salt, testParams())
	k2 := DeriveKey("password2", salt, testParams())
	defer k1.Zero()
	defer k2.Zero()
	require.NotEqual(t, k1.bytes, k2.bytes)
}

func TestVerificationRoundtrip(t *testing.T) {
	key := DeriveKey("password", make([]byte, SaltSize), testParams())
	defer key.Zero()

	blob, err := key.CreateVerification()
	require.NoError(t, err)
	require.True(t, key.VerifyPassword(blob))
}

func TestVerificationWrongPassword(t *testing.T) {
	salt := make([]byte, SaltSize)
	key1 := DeriveKey("password1", salt, testParams())
	key2 := DeriveKey("password2", salt, testParams())
	defer key1.Zero()
	defer key2.Zero()

	blob, err := key1.CreateVerification()
	require.NoError(t, err)
	require.False(t, key2.VerifyPassword(blob))
}

func TestKeyZero(t *testing.T) {
	key := DeriveKey("password", make([]byte, SaltSize), testParams())
	var zero [KeySize]byte
	require.NotEqual(t, zero, key.bytes)
	key.Zero()
	require.Equal(t, zero, key.bytes)
}
