// Package cryptox implements envelope encryption for stored file content.
//
// Each file is encrypted with its own random 256-bit data key using AES-GCM.
// The data key is then sealed with the server master key, so the object store
// only ever sees ciphertext and the catalog only ever sees wrapped keys.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"github.com/dmitrijs2005/filevault/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the length of master and data keys in bytes.
const KeySize = 32

// ErrDecrypt is returned when ciphertext fails authentication.
var ErrDecrypt = errors.New("decryption failed")

// DeriveMasterKey stretches an operator-supplied secret into a master key.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// EncryptedFile is the result of sealing a file.
type EncryptedFile struct {
	Ciphertext []byte
	// EncryptedKey is the data key sealed with the master key, nonce first.
	EncryptedKey []byte
	// Nonce is the AES-GCM nonce used for Ciphertext.
	Nonce []byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealFile encrypts plaintext under a fresh data key and wraps that key with
// masterKey. The file id is bound as additional data so a blob cannot be
// swapped under another record.
func SealFile(plaintext, masterKey []byte, fileID string) (*EncryptedFile, error) {
	dataKey := common.GenerateRandByteArray(KeySize)
	defer common.WipeByteArray(dataKey)

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(gcm.NonceSize())
	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(fileID))

	wrapped, err := wrapKey(dataKey, masterKey, fileID)
	if err != nil {
		return nil, err
	}

	return &EncryptedFile{Ciphertext: ciphertext, EncryptedKey: wrapped, Nonce: nonce}, nil
}

// OpenFile reverses SealFile.
func OpenFile(ef *EncryptedFile, masterKey []byte, fileID string) ([]byte, error) {
	dataKey, err := unwrapKey(ef.EncryptedKey, masterKey, fileID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dataKey)

	gcm, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}
	if len(ef.Nonce) != gcm.NonceSize() {
		return nil, ErrDecrypt
	}

	plaintext, err := gcm.Open(nil, ef.Nonce, ef.Ciphertext, []byte(fileID))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func wrapKey(dataKey, masterKey []byte, fileID string) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(gcm.NonceSize())
	return gcm.Seal(nonce, nonce, dataKey, []byte(fileID)), nil
}

func unwrapKey(wrapped, masterKey []byte, fileID string) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(wrapped) < ns {
		return nil, ErrDecrypt
	}
	key, err := gcm.Open(nil, wrapped[:ns], wrapped[ns:], []byte(fileID))
	if err != nil {
		return nil, ErrDecrypt
	}
	return key, nil
}
