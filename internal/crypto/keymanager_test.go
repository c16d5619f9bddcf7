package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptKeyValidation(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	assert.ErrorContains(t, err, "password")

	_, err = EncryptKey("zz", "pw")
	assert.ErrorContains(t, err, "hex")

	_, err = EncryptKey("abcd", "pw")
	assert.ErrorContains(t, err, "32-byte")
}

func TestLoadKeyRawWinsOverFile(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyFromFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyUnconfigured(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.ErrorContains(t, err, "no private key source")
}

func TestSignerAddressDeterministic(t *testing.T) {
	s1, err := NewSigner(testKeyHex, 42161)
	require.NoError(t, err)
	s2, err := NewSigner("0x"+testKeyHex, 42161)
	require.NoError(t, err)

	assert.Equal(t, s1.Address(), s2.Address())
	assert.Equal(t, int64(42161), s1.ChainID().Int64())
}

func TestSignerRejectsBadInput(t *testing.T) {
	_, err := NewSigner("not-hex", 1)
	assert.Error(t, err)

	_, err = NewSigner(testKeyHex, 0)
	assert.Error(t, err)
}

func TestSignDigest(t *testing.T) {
	s, err := NewSigner(testKeyHex, 42161)
	require.NoError(t, err)

	digest := make([]byte, 32)
	sig, err := s.SignDigest(digest)
	require.NoError(t, err)
	assert.Len(t, sig, 2+65*2, "0x prefix plus 65 hex-encoded bytes")

	_, err = s.SignDigest([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "32 bytes")
}
