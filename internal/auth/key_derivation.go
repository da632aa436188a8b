package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeyLength is the HMAC-SHA256 key size in bytes.
const DerivedKeyLength = 32

const purposeIdentityJWT = "gatherings-identity-jwt-v1"

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a 32-byte key from masterSecret with HKDF-SHA256. Distinct
// purpose strings yield independent keys.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// DeriveIdentityKey derives the key that signs caller bearer tokens.
func DeriveIdentityKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeIdentityJWT)
}
