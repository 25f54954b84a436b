// Package common defines shared constants and sentinel errors used across
// casekeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Authentication errors.
	ErrWrongCredentials = errors.New("wrong credentials")
	ErrUnauthenticated  = errors.New("no active session")
	ErrNoSalt           = errors.New("no salt for user")
	ErrInvalidUserID    = errors.New("invalid user id")

	// Encryption errors.
	ErrDecryption = errors.New("decryption failure")

	// Storage errors.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrVersionConflict    = errors.New("version conflict")

	// Delivery errors.
	ErrDeliveryFailed = errors.New("delivery failed")
)
