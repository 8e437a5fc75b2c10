package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/kdf"
	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/phrase"
	"github.com/atinyakov/cortexvault/internal/securestore"
)

const (
	keyWordHash       = "cortexos.wordhash.v2."
	keyPinHash        = "cortexos.pinhash.v2"
	keyLegacyWordHash = "cortexos.wordhash."
	keyLegacyPinHash  = "cortexos.pinhash"
)

// ChallengeSize is the number of positions asked in a challenge.
const ChallengeSize = 2

func wordHashKey(pos int) string       { return fmt.Sprintf("%s%d", keyWordHash, pos) }
func legacyWordHashKey(pos int) string { return fmt.Sprintf("%s%d", keyLegacyWordHash, pos) }

// Store keeps position and PIN hashes in a secure store.
type Store struct {
	store securestore.Store
	log   *zap.Logger
	rand  io.Reader
}

// NewStore returns a credential store over s.
func NewStore(s securestore.Store, log *zap.Logger) *Store {
	return &Store{store: s, log: logger.OrNop(log), rand: rand.Reader}
}

// StoreCredentials persists the six position hashes and the PIN hash,
// then removes any legacy entries for the same slots.
func (s *Store) StoreCredentials(text, pin string, userSalt []byte) error {
	hashes, err := GenerateAllWordHashes(text)
	if err != nil {
		return err
	}

	for pos, h := range hashes {
		if err := securestore.SaveString(s.store, wordHashKey(pos), h); err != nil {
			return fmt.Errorf("store word hash: %w", err)
		}
	}
	if err := securestore.SaveString(s.store, keyPinHash, HashPIN(pin, userSalt)); err != nil {
		return fmt.Errorf("store pin hash: %w", err)
	}

	for pos := range hashes {
		if err := s.store.Delete(legacyWordHashKey(pos)); err != nil {
			return fmt.Errorf("delete legacy word hash: %w", err)
		}
	}
	if err := s.store.Delete(keyLegacyPinHash); err != nil {
		return fmt.Errorf("delete legacy pin hash: %w", err)
	}
	return nil
}

// SelectChallengePositions picks two distinct positions uniformly at
// random and returns them sorted.
func (s *Store) SelectChallengePositions() ([ChallengeSize]int, error) {
	a, err := s.uniform(phrase.WordCount)
	if err != nil {
		return [ChallengeSize]int{}, err
	}
	b, err := s.uniform(phrase.WordCount - 1)
	if err != nil {
		return [ChallengeSize]int{}, err
	}
	if b >= a {
		b++
	}
	if a > b {
		a, b = b, a
	}
	return [ChallengeSize]int{a, b}, nil
}

func (s *Store) uniform(n int64) (int, error) {
	v, err := rand.Int(s.rand, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("read randomness: %w", err)
	}
	return int(v.Int64()), nil
}

// VerifyChallenge reports whether the PIN and both position words match.
// Word hashes are not read when the PIN is wrong.
func (s *Store) VerifyChallenge(pos1 int, word1 string, pos2 int, word2 string, pin string) bool {
	if pos1 == pos2 || !validPosition(pos1) || !validPosition(pos2) {
		return false
	}
	if !s.VerifyPIN(pin) {
		return false
	}
	ok1 := s.verifyWord(pos1, word1)
	ok2 := s.verifyWord(pos2, word2)
	return ok1 && ok2
}

// VerifyPhrase checks the PIN and every position of text.
func (s *Store) VerifyPhrase(text, pin string) bool {
	words := strings.Fields(kdf.Normalize(text))
	if len(words) != phrase.WordCount {
		return false
	}
	if !s.VerifyPIN(pin) {
		return false
	}
	ok := true
	for pos, w := range words {
		if !s.verifyWord(pos, w) {
			ok = false
		}
	}
	return ok
}

// VerifyPIN checks pin against the current hash. When only a legacy
// unsalted hash exists and it matches, the hash is migrated to the
// current location and the legacy entry is deleted. Repeating the
// migration is harmless.
func (s *Store) VerifyPIN(pin string) bool {
	salt := s.userSalt()

	current, err := securestore.LoadString(s.store, keyPinHash)
	if err == nil {
		if !equalHash(HashPIN(pin, salt), current) {
			return false
		}
		// a verified current hash makes any legacy hash stale
		if err := s.store.Delete(keyLegacyPinHash); err != nil {
			s.log.Warn("legacy pin hash not removed", zap.Error(err))
		}
		return true
	}
	if !errors.Is(err, securestore.ErrNotFound) {
		s.log.Error("failed to load pin hash", zap.Error(err))
		return false
	}

	legacy, err := securestore.LoadString(s.store, keyLegacyPinHash)
	if errors.Is(err, securestore.ErrNotFound) {
		// a concurrent migration writes the current hash before deleting
		// the legacy one
		if current, err := securestore.LoadString(s.store, keyPinHash); err == nil {
			return equalHash(HashPIN(pin, salt), current)
		}
		return false
	}
	if err != nil {
		s.log.Error("failed to load legacy pin hash", zap.Error(err))
		return false
	}
	if !equalHash(HashPIN(pin, nil), legacy) {
		return false
	}

	if err := securestore.SaveString(s.store, keyPinHash, HashPIN(pin, salt)); err != nil {
		s.log.Warn("pin hash migration deferred", zap.Error(err))
		return true
	}
	if err := s.store.Delete(keyLegacyPinHash); err != nil {
		s.log.Warn("legacy pin hash not removed", zap.Error(err))
	}
	s.log.Info("migrated legacy pin hash")
	return true
}

// HasCredentials reports whether a PIN hash exists in either location.
func (s *Store) HasCredentials() bool {
	for _, key := range []string{keyPinHash, keyLegacyPinHash} {
		if _, err := s.store.Load(key); err == nil {
			return true
		}
	}
	return false
}

// Clear deletes all position hashes and both PIN hash locations.
func (s *Store) Clear() error {
	var errs []error
	for pos := 0; pos < phrase.WordCount; pos++ {
		errs = append(errs, s.store.Delete(wordHashKey(pos)), s.store.Delete(legacyWordHashKey(pos)))
	}
	errs = append(errs, s.store.Delete(keyPinHash), s.store.Delete(keyLegacyPinHash))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// verifyWord compares against the current slot, falling back to the
// legacy slot and migrating it on a match.
func (s *Store) verifyWord(pos int, word string) bool {
	want := HashWordAtPosition(word, pos)

	stored, err := securestore.LoadString(s.store, wordHashKey(pos))
	if err == nil {
		return equalHash(want, stored)
	}
	if !errors.Is(err, securestore.ErrNotFound) {
		s.log.Error("failed to load word hash", zap.Int("position", pos), zap.Error(err))
		return false
	}

	legacy, err := securestore.LoadString(s.store, legacyWordHashKey(pos))
	if errors.Is(err, securestore.ErrNotFound) {
		if stored, err := securestore.LoadString(s.store, wordHashKey(pos)); err == nil {
			return equalHash(want, stored)
		}
		return false
	}
	if err != nil || !equalHash(want, legacy) {
		return false
	}
	if err := securestore.SaveString(s.store, wordHashKey(pos), legacy); err == nil {
		_ = s.store.Delete(legacyWordHashKey(pos))
	}
	return true
}

func (s *Store) userSalt() []byte {
	salt, err := s.store.Load(securestore.KeyUserSalt)
	if err != nil {
		return nil
	}
	return salt
}

func validPosition(pos int) bool {
	return pos >= 0 && pos < phrase.WordCount
}

func equalHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
