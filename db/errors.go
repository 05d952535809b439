package db

import "errors"

// Store-level sentinel errors. The Firestore implementation maps gRPC status
// codes onto these so callers never depend on SDK error types.
var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)
