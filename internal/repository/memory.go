package repository

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/atinyakov/cortexvault/internal/models"
)

// MemoryVaultRepository keeps vaults in process memory. It is used for
// development servers and tests.
type MemoryVaultRepository struct {
	mu     sync.RWMutex
	vaults map[string]models.VaultRecord
}

// NewMemoryVaultRepository returns an empty repository.
func NewMemoryVaultRepository() *MemoryVaultRepository {
	return &MemoryVaultRepository{vaults: make(map[string]models.VaultRecord)}
}

func (r *MemoryVaultRepository) Get(_ context.Context, accountID string) (*models.VaultRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.vaults[accountID]
	if !ok || rec.Deleted {
		return nil, models.ErrNotFound
	}
	rec.Blob = append([]byte(nil), rec.Blob...)
	return &rec, nil
}

func (r *MemoryVaultRepository) Stat(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	rec, err := r.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rec.Blob = nil
	return rec, nil
}

func (r *MemoryVaultRepository) Put(_ context.Context, rec models.VaultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.vaults[rec.AccountID]; ok && !cur.Deleted && !bytes.Equal(cur.TokenHash, rec.TokenHash) {
		return models.ErrTokenMismatch
	}
	rec.Blob = append([]byte(nil), rec.Blob...)
	rec.Deleted = false
	r.vaults[rec.AccountID] = rec
	return nil
}

func (r *MemoryVaultRepository) SoftDelete(_ context.Context, accountID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.vaults[accountID]
	if !ok || rec.Deleted {
		return models.ErrNotFound
	}
	rec.Deleted = true
	rec.UpdatedAt = at
	r.vaults[accountID] = rec
	return nil
}

// PurgeDeleted drops soft-deleted vaults older than cutoff and returns the
// count.
func (r *MemoryVaultRepository) PurgeDeleted(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.vaults {
		if rec.Deleted && rec.UpdatedAt.Before(cutoff) {
			delete(r.vaults, id)
			n++
		}
	}
	return n, nil
}
