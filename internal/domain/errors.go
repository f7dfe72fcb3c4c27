package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRecordNotFound  = errors.New("record not found")

	// ErrTokenInvalid covers signature and expiry failures on our own tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked covers both an explicit revocation and a ledger record
	// that is absent (evicted after expiry). Both fail closed.
	ErrTokenRevoked = errors.New("token revoked")
)
