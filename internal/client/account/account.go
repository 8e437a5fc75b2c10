// Package account ties the phrase codec, key derivation, credential store
// and envelope together into enrollment, unlock, recovery and reset.
package account

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/credential"
	"github.com/atinyakov/cortexvault/internal/envelope"
	"github.com/atinyakov/cortexvault/internal/kdf"
	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/phrase"
	"github.com/atinyakov/cortexvault/internal/securestore"
)

// UserSaltSize is the length of the per-user salt.
const UserSaltSize = 32

var (
	ErrAlreadyEnrolled = errors.New("account: device already enrolled")
	ErrNotEnrolled     = errors.New("account: device not enrolled")
	ErrWrongPhrase     = errors.New("account: recovery phrase does not match")
	// ErrKeyMismatch means the phrase verified but the stored master key
	// was not derived from it.
	ErrKeyMismatch = errors.New("account: stored master key does not match the recovery phrase")
)

// Manager owns the account state of one device.
type Manager struct {
	store   securestore.Store
	codec   *phrase.Codec
	deriver *kdf.Deriver
	creds   *credential.Store
	env     *envelope.Service
	log     *zap.Logger
	rand    io.Reader
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeriver overrides the key deriver.
func WithDeriver(d *kdf.Deriver) Option {
	return func(m *Manager) { m.deriver = d }
}

// WithCodec overrides the phrase codec.
func WithCodec(c *phrase.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// New returns a Manager over store and env.
func New(store securestore.Store, env *envelope.Service, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		env:     env,
		codec:   phrase.NewCodec(phrase.BIP39()),
		deriver: kdf.New(),
		rand:    rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logger.OrNop(m.log)
	m.creds = credential.NewStore(store, m.log)
	return m
}

// Credentials exposes the credential store for challenges.
func (m *Manager) Credentials() *credential.Store {
	return m.creds
}

// Enrolled reports whether this device holds credentials.
func (m *Manager) Enrolled() bool {
	return m.creds.HasCredentials()
}

// Enroll generates a new phrase and user salt, adopts the derived key and
// stores the credential hashes. The phrase is returned for display only.
func (m *Manager) Enroll() (phrase.Phrase, []byte, models.DerivedKeys, error) {
	if m.Enrolled() {
		return phrase.Phrase{}, nil, models.DerivedKeys{}, ErrAlreadyEnrolled
	}

	p, err := m.codec.Generate()
	if err != nil {
		return phrase.Phrase{}, nil, models.DerivedKeys{}, err
	}

	salt := make([]byte, UserSaltSize)
	if _, err := io.ReadFull(m.rand, salt); err != nil {
		return phrase.Phrase{}, nil, models.DerivedKeys{}, fmt.Errorf("generate user salt: %w", err)
	}

	keys, err := m.adopt(p, salt)
	if err != nil {
		return phrase.Phrase{}, nil, models.DerivedKeys{}, err
	}

	m.log.Info("device enrolled", logger.AccountField(keys.AccountID))
	return p, salt, keys, nil
}

// Recover enrolls this device with an existing phrase. userSalt is the
// salt of the original enrollment, or empty for a legacy account.
func (m *Manager) Recover(fullText string, userSalt []byte) (models.DerivedKeys, error) {
	p, ok := m.codec.Parse(fullText)
	if !ok {
		return models.DerivedKeys{}, phrase.ErrParse
	}

	if err := m.creds.Clear(); err != nil {
		return models.DerivedKeys{}, err
	}
	if err := m.store.Delete(securestore.KeyUserSalt); err != nil {
		return models.DerivedKeys{}, fmt.Errorf("delete user salt: %w", err)
	}

	keys, err := m.adopt(p, userSalt)
	if err != nil {
		return models.DerivedKeys{}, err
	}
	m.log.Info("device recovered", logger.AccountField(keys.AccountID))
	return keys, nil
}

// Unlock verifies the phrase against the stored hashes, then loads the
// stored master key and checks it equals the derived one. A missing master
// key is restored from the phrase.
func (m *Manager) Unlock(ctx context.Context, fullText string) (models.DerivedKeys, error) {
	if !m.Enrolled() {
		return models.DerivedKeys{}, ErrNotEnrolled
	}
	p, ok := m.codec.Parse(fullText)
	if !ok {
		return models.DerivedKeys{}, phrase.ErrParse
	}
	if !m.creds.VerifyPhrase(p.Text(), p.PIN) {
		m.log.Warn("unlock rejected")
		return models.DerivedKeys{}, ErrWrongPhrase
	}

	salt, err := m.UserSalt()
	if err != nil {
		return models.DerivedKeys{}, err
	}
	keys, err := m.deriver.DeriveAllKeys(p.String(), salt)
	if err != nil {
		return models.DerivedKeys{}, err
	}

	stored, err := m.store.Load(securestore.KeyMasterKey)
	switch {
	case err == nil:
		if subtle.ConstantTimeCompare(stored, keys.EncryptionKey) != 1 {
			m.log.Error("master key does not match phrase", logger.AccountField(keys.AccountID))
			return models.DerivedKeys{}, ErrKeyMismatch
		}
		if err := m.env.Initialize(ctx); err != nil {
			return models.DerivedKeys{}, err
		}
	case errors.Is(err, securestore.ErrNotFound):
		m.log.Warn("master key missing, restoring from phrase", logger.AccountField(keys.AccountID))
		if err := m.env.AdoptDerivedKey(keys.EncryptionKey, keys.AuthToken, nil); err != nil {
			return models.DerivedKeys{}, err
		}
	default:
		return models.DerivedKeys{}, fmt.Errorf("load master key: %w", err)
	}
	return keys, nil
}

// UserSalt returns the stored salt, or nil for a legacy account.
func (m *Manager) UserSalt() ([]byte, error) {
	salt, err := m.store.Load(securestore.KeyUserSalt)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user salt: %w", err)
	}
	return salt, nil
}

// Reset removes the master key, the user salt and all credential hashes.
func (m *Manager) Reset() error {
	errs := []error{
		m.env.Reset(),
		m.creds.Clear(),
		m.store.Delete(securestore.KeyUserSalt),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.log.Info("device reset")
	return nil
}

func (m *Manager) adopt(p phrase.Phrase, salt []byte) (models.DerivedKeys, error) {
	keys, err := m.deriver.DeriveAllKeys(p.String(), salt)
	if err != nil {
		return models.DerivedKeys{}, err
	}
	if err := m.env.AdoptDerivedKey(keys.EncryptionKey, keys.AuthToken, salt); err != nil {
		return models.DerivedKeys{}, err
	}
	if err := m.creds.StoreCredentials(p.Text(), p.PIN, salt); err != nil {
		return models.DerivedKeys{}, err
	}
	return keys, nil
}
