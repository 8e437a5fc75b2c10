package models

import "errors"

var (
	// ErrNotFound is returned by repositories when no live vault exists.
	ErrNotFound = errors.New("vault not found")
	// ErrTokenMismatch is returned when an account is bound to another token.
	ErrTokenMismatch = errors.New("token does not match account")
)
