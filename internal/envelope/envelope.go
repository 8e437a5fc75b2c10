// Package envelope seals and opens payloads with the device master key
// using AES-256-GCM. Blobs are nonce(12) || ciphertext || tag(16).
package envelope

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/securestore"
)

const (
	// KeySize is the master key length in bytes.
	KeySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	ErrNotInitialized = errors.New("envelope: not initialized")
	// ErrDecryptionFailed covers wrong keys, corrupted data and malformed
	// blobs alike.
	ErrDecryptionFailed = errors.New("envelope: decryption failed")
	ErrInvalidKey       = errors.New("envelope: invalid key")
	// ErrReset is returned to callers of an initialization that a Reset
	// superseded.
	ErrReset = errors.New("envelope: initialization superseded")
)

// State is the service lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Service owns the master key lifecycle. Construct one per device identity.
type Service struct {
	store securestore.Store
	log   *zap.Logger
	rand  io.Reader
	group singleflight.Group

	// mu guards the fields below. It is never held while loading or
	// generating a key.
	mu        sync.Mutex
	state     State
	aead      cipher.AEAD
	authToken string
	epoch     uint64
}

// New returns an uninitialized service backed by store.
func New(store securestore.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: logger.OrNop(log), rand: rand.Reader}
}

// Initialize loads the stored master key, or generates and stores a new
// one. Concurrent callers share a single initialization. Cancelling ctx
// abandons the wait but not the shared work.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Ready {
		s.mu.Unlock()
		return nil
	}
	s.state = Initializing
	epoch := s.epoch
	s.mu.Unlock()

	ch := s.group.DoChan(strconv.FormatUint(epoch, 10), func() (any, error) {
		return nil, s.initialize(epoch)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) initialize(epoch uint64) error {
	key, err := s.store.Load(securestore.KeyMasterKey)
	generated := false
	switch {
	case err == nil:
	case errors.Is(err, securestore.ErrNotFound):
		key = make([]byte, KeySize)
		if _, err := io.ReadFull(s.rand, key); err != nil {
			s.abort(epoch)
			return fmt.Errorf("generate master key: %w", err)
		}
		generated = true
	default:
		s.abort(epoch)
		return fmt.Errorf("load master key: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		s.abort(epoch)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		// A derived key adopted meanwhile leaves the service ready.
		if s.state == Ready {
			return nil
		}
		return ErrReset
	}
	if generated {
		if err := s.store.Save(securestore.KeyMasterKey, key); err != nil {
			s.state = Uninitialized
			return fmt.Errorf("store master key: %w", err)
		}
		s.log.Info("generated new master key")
	}
	s.aead = aead
	s.state = Ready
	return nil
}

func (s *Service) abort(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch == epoch {
		s.state = Uninitialized
	}
}

// AdoptDerivedKey replaces the stored master key with a phrase-derived
// key, stores userSalt when present and records authToken. Any in-flight
// initialization is superseded.
func (s *Service) AdoptDerivedKey(key []byte, authToken string, userSalt []byte) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(securestore.KeyMasterKey, key); err != nil {
		return fmt.Errorf("store master key: %w", err)
	}
	if len(userSalt) > 0 {
		if err := s.store.Save(securestore.KeyUserSalt, userSalt); err != nil {
			return fmt.Errorf("store user salt: %w", err)
		}
	}

	s.epoch++
	s.aead = aead
	s.authToken = authToken
	s.state = Ready
	return nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Service) Seal(plaintext []byte) ([]byte, error) {
	aead := s.current()
	if aead == nil {
		return nil, ErrNotInitialized
	}

	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (s *Service) Open(blob []byte) ([]byte, error) {
	aead := s.current()
	if aead == nil {
		return nil, ErrNotInitialized
	}
	if len(blob) < nonceSize+tagSize {
		return nil, ErrDecryptionFailed
	}

	plain, err := aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// Reset deletes the stored master key and returns to Uninitialized.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.state = Uninitialized
	s.aead = nil
	s.authToken = ""

	if err := s.store.Delete(securestore.KeyMasterKey); err != nil {
		return fmt.Errorf("delete master key: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether Seal and Open can be used.
func (s *Service) IsReady() bool {
	return s.State() == Ready
}

// AuthToken returns the token recorded by AdoptDerivedKey.
func (s *Service) AuthToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authToken
}

func (s *Service) current() cipher.AEAD {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil
	}
	return s.aead
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return cipher.NewGCM(block)
}
