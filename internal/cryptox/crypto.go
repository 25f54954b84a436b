// Package cryptox holds the primitives the client builds on: a password-based
// key derivation function with a self-describing salt, and AES-256-GCM
// sealing of JSON values and raw byte strings.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/casekeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the size of a derived key (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12
)

var errShortCiphertext = errors.New("ciphertext too short")

// DeriveKey stretches password with argon2id using the salt value and the
// work factor frozen into salt. The result is deterministic for the same
// (password, salt) pair.
func DeriveKey(password []byte, salt Salt) []byte {
	p := salt.Params
	return argon2.IDKey(password, salt.Value, p.Time, p.MemoryKiB, p.Threads, KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesgcm, nil
}

// EncryptRecord serializes v to JSON and encrypts it using AES-GCM.
//
// The key must be a valid AES key (16, 24 or 32 bytes). A fresh random
// 12-byte nonce is generated for each call and returned next to the
// ciphertext. aad is authenticated but not encrypted; the same aad must be
// passed to DecryptRecord.
//
// Example:
//
//	ciphertext, nonce, err := EncryptRecord(profile, key, []byte("alice-profile"))
//	if err != nil {
//	    return err
//	}
func EncryptRecord(v any, key, aad []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

// DecryptRecord opens ciphertext produced by EncryptRecord and unmarshals the
// JSON plaintext into v. A wrong key, a wrong aad, tampered bytes or a
// plaintext that is not valid JSON for v all return an error wrapping
// common.ErrDecryption; v is left untouched in the first three cases.
func DecryptRecord(ciphertext, nonce, key, aad []byte, v any) error {
	if len(nonce) != NonceSize {
		return fmt.Errorf("%w: bad nonce size %d", common.ErrDecryption, len(nonce))
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	defer common.WipeByteArray(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	return nil
}

// Seal encrypts plaintext with AES-256-GCM.
//
// Format: nonce (12 bytes) || ciphertext
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(NonceSize)
	return aesgcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal. Any failure wraps common.ErrDecryption.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryption, errShortCiphertext)
	}
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	plaintext, err := aesgcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt: %w", common.ErrDecryption, err)
	}
	return plaintext, nil
}
