// Package models defines the core data structures shared by the vault
// client and the vault server.
package models

import "time"

// Entry is a journal entry as the client keeps it locally.
type Entry struct {
	// ID is the unique identifier for the entry.
	ID string `json:"id"`
	// Title is the user-visible headline.
	Title string `json:"title"`
	// Content holds the entry body.
	Content string `json:"content"`
	// Tags are free-form labels attached by the user.
	Tags []string `json:"tags,omitempty"`
	// CreatedAt is when the entry was first written.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last modification time, used to resolve merges.
	UpdatedAt time.Time `json:"updated_at"`
	// Deleted marks a local tombstone. Tombstones are never exported.
	Deleted bool `json:"deleted,omitempty"`
}

// Insight is a derived record attached to entries. Its body is opaque to
// the vault.
type Insight struct {
	ID        string    `json:"id"`
	EntryID   string    `json:"entry_id,omitempty"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryDTO is the exported form of an Entry inside VaultData.
// Fields are declared in lexicographic order of their JSON names so the
// encoding has stable key ordering.
type EntryDTO struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id" validate:"required"`
	Tags      []string  `json:"tags"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InsightDTO is the exported form of an Insight inside VaultData.
type InsightDTO struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	EntryID   string    `json:"entryId,omitempty"`
	ID        string    `json:"id" validate:"required"`
	Kind      string    `json:"kind"`
}

// VaultData is the plaintext payload sealed into a backup blob.
type VaultData struct {
	Entries    []EntryDTO   `json:"entries" validate:"dive"`
	ExportedAt time.Time    `json:"exportedAt"`
	Insights   []InsightDTO `json:"insights,omitempty" validate:"omitempty,dive"`
	Platform   string       `json:"platform"`
	Version    int          `json:"version" validate:"min=1"`
}

// DerivedKeys are the values derived from a recovery phrase.
// They are recomputed on demand and never persisted.
type DerivedKeys struct {
	// AccountID is the 64-char hex lookup identifier on the server.
	AccountID string
	// EncryptionKey is the 32-byte vault master key.
	EncryptionKey []byte
	// AuthToken is the 64-char hex bearer token for the server.
	AuthToken string
}

// BackupInfo describes a remote backup.
type BackupInfo struct {
	Exists       bool      `json:"exists"`
	LastModified time.Time `json:"lastModified"`
}

// VaultRecord is a stored backup blob on the server side.
type VaultRecord struct {
	// AccountID is the derived account identifier used as the key.
	AccountID string
	// TokenHash is SHA-256 of the bearer token bound to the account.
	TokenHash []byte
	// Blob is the opaque encrypted payload.
	Blob []byte
	// UpdatedAt is the time of the last upload.
	UpdatedAt time.Time
	// Deleted marks a soft-deleted record awaiting cleanup.
	Deleted bool
}
