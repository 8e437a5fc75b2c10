// Package kdf derives the account id, the vault encryption key and the
// server auth token from a recovery phrase.
//
// Every derivation is Argon2id over the normalized phrase with its own
// domain-separated salt. Output must be bit-identical across clients.
package kdf

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/atinyakov/cortexvault/internal/models"
)

// Domain separation labels. The account id salt never includes the user
// salt so the lookup id can be derived before the salt is known.
const (
	AccountIDSalt     = "cortexos-account-id-v2-argon2id"
	EncryptionKeySalt = "cortexos-encryption-key-v2-argon2id"
	AuthTokenSalt     = "cortexos-auth-token-v2-argon2id"
)

// ErrDerivationFailed wraps any engine failure.
var ErrDerivationFailed = errors.New("kdf: key derivation failed")

// Deriver derives DerivedKeys from a recovery phrase.
type Deriver struct {
	params Params
	engine Engine
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithParams overrides the Argon2id cost parameters.
func WithParams(p Params) Option {
	return func(d *Deriver) { d.params = p }
}

// WithEngine overrides the Argon2id primitive.
func WithEngine(e Engine) Option {
	return func(d *Deriver) { d.engine = e }
}

// New returns a Deriver with DefaultParams and the x/crypto engine.
func New(opts ...Option) *Deriver {
	d := &Deriver{params: DefaultParams, engine: Argon2idEngine{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeriveAllKeys derives all three values. userSalt may be empty for
// legacy accounts.
func (d *Deriver) DeriveAllKeys(phrase string, userSalt []byte) (models.DerivedKeys, error) {
	accountID, err := d.DeriveAccountID(phrase)
	if err != nil {
		return models.DerivedKeys{}, err
	}
	key, err := d.DeriveEncryptionKey(phrase, userSalt)
	if err != nil {
		return models.DerivedKeys{}, err
	}
	token, err := d.DeriveAuthToken(phrase, userSalt)
	if err != nil {
		return models.DerivedKeys{}, err
	}
	return models.DerivedKeys{
		AccountID:     accountID,
		EncryptionKey: key,
		AuthToken:     token,
	}, nil
}

// DeriveAccountID returns the lowercase hex account id.
func (d *Deriver) DeriveAccountID(phrase string) (string, error) {
	out, err := d.derive(phrase, []byte(AccountIDSalt))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

// DeriveEncryptionKey returns the raw vault encryption key.
func (d *Deriver) DeriveEncryptionKey(phrase string, userSalt []byte) ([]byte, error) {
	return d.derive(phrase, salted(EncryptionKeySalt, userSalt))
}

// DeriveAuthToken returns the lowercase hex server auth token.
func (d *Deriver) DeriveAuthToken(phrase string, userSalt []byte) (string, error) {
	out, err := d.derive(phrase, salted(AuthTokenSalt, userSalt))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(out), nil
}

func (d *Deriver) derive(phrase string, salt []byte) ([]byte, error) {
	out, err := d.engine.Hash([]byte(Normalize(phrase)), salt, d.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	if uint32(len(out)) != d.params.KeyLen {
		return nil, fmt.Errorf("%w: engine returned %d bytes", ErrDerivationFailed, len(out))
	}
	return out, nil
}

func salted(label string, userSalt []byte) []byte {
	s := make([]byte, 0, len(label)+len(userSalt))
	s = append(s, label...)
	return append(s, userSalt...)
}
