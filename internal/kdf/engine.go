package kdf

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Version is the Argon2 version (0x13) implemented by x/crypto.
const Version = argon2.Version

// Params are the Argon2id cost parameters.
type Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultParams are shared by every conforming client. Changing any value
// changes every derived key.
var DefaultParams = Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
}

// Status codes of the reference Argon2 C library.
const (
	CodeOutputTooShort  = -2
	CodeSaltTooShort    = -6
	CodeTimeTooSmall    = -12
	CodeMemoryTooLittle = -14
	CodeLanesTooFew     = -16
)

const (
	minOutputLen = 4
	minSaltLen   = 8
)

// ArgonEngineError carries a nonzero primitive status code.
type ArgonEngineError struct {
	Code int
}

func (e *ArgonEngineError) Error() string {
	return fmt.Sprintf("argon2 engine error: status %d", e.Code)
}

// Engine computes a raw Argon2id hash.
type Engine interface {
	Hash(password, salt []byte, p Params) ([]byte, error)
}

// Argon2idEngine is the default Engine. x/crypto silently clamps some out
// of range parameters, so they are rejected up front with the status the
// reference library would return.
type Argon2idEngine struct{}

func (Argon2idEngine) Hash(password, salt []byte, p Params) ([]byte, error) {
	if err := p.check(len(salt)); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen), nil
}

func (p Params) check(saltLen int) error {
	switch {
	case p.KeyLen < minOutputLen:
		return &ArgonEngineError{Code: CodeOutputTooShort}
	case saltLen < minSaltLen:
		return &ArgonEngineError{Code: CodeSaltTooShort}
	case p.Time < 1:
		return &ArgonEngineError{Code: CodeTimeTooSmall}
	case p.Threads < 1:
		return &ArgonEngineError{Code: CodeLanesTooFew}
	case p.Memory < 8*uint32(p.Threads):
		return &ArgonEngineError{Code: CodeMemoryTooLittle}
	}
	return nil
}
