// Package repository provides persistence implementations for encrypted
// vault blobs: PostgreSQL, S3 and an in-memory store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/cortexvault/internal/models"
)

// PostgresVaultRepository stores one blob per account in the vaults table.
type PostgresVaultRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresVaultRepository creates a repository using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance.
func NewPostgresVaultRepository(db *sql.DB) *PostgresVaultRepository {
	return &PostgresVaultRepository{DB: db}
}

// Get fetches the live vault of an account.
//
//	ctx:       context for cancellation and deadlines
//	accountID: derived account identifier
//
// Returns models.ErrNotFound when no live vault exists.
func (r *PostgresVaultRepository) Get(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	var rec models.VaultRecord
	err := r.DB.QueryRowContext(ctx, `
		SELECT account_id, token_hash, blob, updated_at FROM vaults
		WHERE account_id = $1 AND deleted = false
	`, accountID).Scan(&rec.AccountID, &rec.TokenHash, &rec.Blob, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vault: %w", err)
	}
	return &rec, nil
}

// Stat fetches vault metadata without the blob.
func (r *PostgresVaultRepository) Stat(ctx context.Context, accountID string) (*models.VaultRecord, error) {
	var rec models.VaultRecord
	err := r.DB.QueryRowContext(ctx, `
		SELECT account_id, token_hash, updated_at FROM vaults
		WHERE account_id = $1 AND deleted = false
	`, accountID).Scan(&rec.AccountID, &rec.TokenHash, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat vault: %w", err)
	}
	return &rec, nil
}

// Put inserts or replaces the vault of rec.AccountID. A live vault bound to
// another token hash is left untouched and models.ErrTokenMismatch is
// returned; a soft-deleted one is taken over.
//
//	ctx: context for cancellation and deadlines
//	rec: the record to store
func (r *PostgresVaultRepository) Put(ctx context.Context, rec models.VaultRecord) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO vaults (account_id, token_hash, blob, updated_at, deleted)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (account_id) DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			blob = EXCLUDED.blob,
			updated_at = EXCLUDED.updated_at,
			deleted = false
		WHERE vaults.token_hash = EXCLUDED.token_hash OR vaults.deleted = true
	`, rec.AccountID, rec.TokenHash, rec.Blob, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put vault: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrTokenMismatch
	}
	return nil
}

// SoftDelete marks the live vault as deleted. The cleaner removes it later.
//
//	ctx:       context for cancellation and deadlines
//	accountID: derived account identifier
//	at:        deletion time, used for retention
func (r *PostgresVaultRepository) SoftDelete(ctx context.Context, accountID string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE vaults SET deleted = true, updated_at = $2
		WHERE account_id = $1 AND deleted = false
	`, accountID, at)
	if err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}
