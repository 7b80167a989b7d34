package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, KeySize)
	assert.Equal(t, "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39", hex.EncodeToString(key1))
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))

	assert.NotEqual(t, key1, key2)
}

func masterKey() []byte {
	return bytes.Repeat([]byte{7}, KeySize)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	plaintext := []byte("0123456789")

	ef, err := SealFile(plaintext, masterKey(), "f1")
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ef.Ciphertext)
	assert.Len(t, ef.Nonce, 12)

	got, err := OpenFile(ef, masterKey(), "f1")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestSealOpen_EmptyFile(t *testing.T) {
	ef, err := SealFile(nil, masterKey(), "f1")
	require.NoError(t, err)

	got, err := OpenFile(ef, masterKey(), "f1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSealFile_FreshKeysPerCall(t *testing.T) {
	a, err := SealFile([]byte("same"), masterKey(), "f1")
	require.NoError(t, err)
	b, err := SealFile([]byte("same"), masterKey(), "f1")
	require.NoError(t, err)

	assert.NotEqual(t, a.EncryptedKey, b.EncryptedKey)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestOpenFile_Failures(t *testing.T) {
	ef, err := SealFile([]byte("payload"), masterKey(), "f1")
	require.NoError(t, err)

	t.Run("wrong master key", func(t *testing.T) {
		_, err := OpenFile(ef, bytes.Repeat([]byte{8}, KeySize), "f1")
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("wrong file id", func(t *testing.T) {
		_, err := OpenFile(ef, masterKey(), "f2")
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := *ef
		bad.Ciphertext = append([]byte(nil), ef.Ciphertext...)
		bad.Ciphertext[0] ^= 0xff
		_, err := OpenFile(&bad, masterKey(), "f1")
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("short wrapped key", func(t *testing.T) {
		bad := *ef
		bad.EncryptedKey = []byte{1, 2}
		_, err := OpenFile(&bad, masterKey(), "f1")
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("bad nonce", func(t *testing.T) {
		bad := *ef
		bad.Nonce = []byte{1}
		_, err := OpenFile(&bad, masterKey(), "f1")
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}
