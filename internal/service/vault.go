// Package service provides the business logic of the vault server,
// delegating persistence to a VaultRepository.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/atinyakov/cortexvault/internal/models"
)

// ErrUnauthorized is returned when the presented token is not bound to the
// account.
var ErrUnauthorized = errors.New("unauthorized")

// VaultRepository defines the persistence operations needed by VaultService.
type VaultRepository interface {
	// Get returns the live vault or models.ErrNotFound.
	Get(ctx context.Context, accountID string) (*models.VaultRecord, error)
	// Stat returns the live vault without its blob, or models.ErrNotFound.
	Stat(ctx context.Context, accountID string) (*models.VaultRecord, error)
	// Put stores rec, returning models.ErrTokenMismatch when a live vault is
	// bound to another token hash.
	Put(ctx context.Context, rec models.VaultRecord) error
	// SoftDelete marks the live vault deleted, or returns models.ErrNotFound.
	SoftDelete(ctx context.Context, accountID string, at time.Time) error
}

// VaultService stores opaque blobs per account. The server never sees keys
// or plaintext. The first upload binds the SHA-256 of the bearer token to
// the account; later calls must present the same token.
type VaultService struct {
	repo VaultRepository
	now  func() time.Time
}

// NewVaultService constructs a VaultService over repo.
func NewVaultService(repo VaultRepository) *VaultService {
	return &VaultService{repo: repo, now: time.Now}
}

// TokenHash returns the digest stored in place of a bearer token.
func TokenHash(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Upload replaces the account's blob.
func (s *VaultService) Upload(ctx context.Context, accountID, token string, blob []byte) error {
	err := s.repo.Put(ctx, models.VaultRecord{
		AccountID: accountID,
		TokenHash: TokenHash(token),
		Blob:      blob,
		UpdatedAt: s.now().UTC(),
	})
	if errors.Is(err, models.ErrTokenMismatch) {
		return ErrUnauthorized
	}
	return err
}

// Download returns the account's blob.
func (s *VaultService) Download(ctx context.Context, accountID, token string) ([]byte, error) {
	rec, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := authorize(rec, token); err != nil {
		return nil, err
	}
	return rec.Blob, nil
}

// Info returns backup metadata.
func (s *VaultService) Info(ctx context.Context, accountID, token string) (*models.BackupInfo, error) {
	rec, err := s.repo.Stat(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := authorize(rec, token); err != nil {
		return nil, err
	}
	return &models.BackupInfo{Exists: true, LastModified: rec.UpdatedAt.UTC()}, nil
}

// Delete soft-deletes the account's blob, releasing the token binding.
func (s *VaultService) Delete(ctx context.Context, accountID, token string) error {
	rec, err := s.repo.Stat(ctx, accountID)
	if err != nil {
		return err
	}
	if err := authorize(rec, token); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, accountID, s.now().UTC())
}

func authorize(rec *models.VaultRecord, token string) error {
	if subtle.ConstantTimeCompare(rec.TokenHash, TokenHash(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
