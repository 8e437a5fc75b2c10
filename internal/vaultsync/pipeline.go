// Package vaultsync backs the local vault up to the server and restores
// it: serialize, seal, upload and the inverse download, open, decode.
package vaultsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/transport"
)

// Transport moves opaque blobs for a single account.
type Transport interface {
	UploadVault(ctx context.Context, blob []byte) error
	DownloadVault(ctx context.Context) ([]byte, error)
	VaultExists(ctx context.Context) (bool, error)
	VaultInfo(ctx context.Context) (*models.BackupInfo, error)
	DeleteVault(ctx context.Context) error
}

// Envelope seals and opens payloads.
type Envelope interface {
	IsReady() bool
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// Snapshot is a restored vault. Merging it is up to the caller.
type Snapshot struct {
	Version    int
	Platform   string
	ExportedAt time.Time
	Entries    []models.Entry
	Insights   []models.Insight
}

// Pipeline runs backups and restores. It performs no retries.
type Pipeline struct {
	transport Transport
	envelope  Envelope
	log       *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	lastBackup time.Time
}

// New returns a pipeline over t and env.
func New(t Transport, env Envelope, log *zap.Logger) *Pipeline {
	return &Pipeline{
		transport: t,
		envelope:  env,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Backup exports entries and insights, seals them and uploads the blob.
func (p *Pipeline) Backup(ctx context.Context, entries []models.Entry, insights []models.Insight) error {
	if !p.envelope.IsReady() {
		return ErrNoEncryptionKey
	}

	data := models.VaultData{
		Entries:    EntriesToDTOs(entries),
		ExportedAt: canonicalTime(p.now()),
		Insights:   InsightsToDTOs(insights),
		Platform:   Platform,
		Version:    CurrentVersion,
	}

	plain, err := Encode(data)
	if err != nil {
		return err
	}

	blob, err := p.envelope.Seal(plain)
	if err != nil {
		p.log.Error("seal backup", zap.Error(err))
		return ErrEncryptionFailed
	}

	if err := p.transport.UploadVault(ctx, blob); err != nil {
		p.log.Warn("upload backup", zap.Error(err))
		return &UploadFailedError{Err: err}
	}

	p.mu.Lock()
	p.lastBackup = p.now()
	p.mu.Unlock()

	p.log.Info("backup uploaded",
		zap.Int("entries", len(data.Entries)),
		zap.Int("insights", len(data.Insights)),
		zap.Int("bytes", len(blob)),
	)
	return nil
}

// Restore downloads, opens and decodes the backup.
func (p *Pipeline) Restore(ctx context.Context) (*Snapshot, error) {
	if !p.envelope.IsReady() {
		return nil, ErrNoEncryptionKey
	}

	blob, err := p.transport.DownloadVault(ctx)
	if err != nil {
		var apiErr *transport.APIError
		switch {
		case errors.Is(err, transport.ErrNotFound):
			return nil, ErrNoBackupFound
		case errors.As(err, &apiErr):
			return nil, apiErr
		default:
			return nil, &DownloadFailedError{Err: err}
		}
	}

	plain, err := p.envelope.Open(blob)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	data, err := Decode(plain)
	if err != nil {
		return nil, err
	}

	p.log.Info("backup restored",
		zap.Int("version", data.Version),
		zap.String("platform", data.Platform),
		zap.Int("entries", len(data.Entries)),
	)

	return &Snapshot{
		Version:    data.Version,
		Platform:   data.Platform,
		ExportedAt: data.ExportedAt,
		Entries:    EntriesFromDTOs(data.Entries),
		Insights:   InsightsFromDTOs(data.Insights),
	}, nil
}

// HasBackup reports whether a backup exists. Errors read as false.
func (p *Pipeline) HasBackup(ctx context.Context) bool {
	ok, err := p.transport.VaultExists(ctx)
	if err != nil {
		p.log.Warn("probe backup", zap.Error(err))
		return false
	}
	return ok
}

// BackupInfo returns the backup metadata, or nil when absent or on error.
func (p *Pipeline) BackupInfo(ctx context.Context) *models.BackupInfo {
	info, err := p.transport.VaultInfo(ctx)
	if err != nil {
		p.log.Warn("backup info", zap.Error(err))
		return nil
	}
	return info
}

// DeleteBackup removes the remote backup and reports success.
func (p *Pipeline) DeleteBackup(ctx context.Context) bool {
	if err := p.transport.DeleteVault(ctx); err != nil {
		p.log.Warn("delete backup", zap.Error(err))
		return false
	}
	p.mu.Lock()
	p.lastBackup = time.Time{}
	p.mu.Unlock()
	return true
}

// LastBackupAt is the time of the last successful backup in this process.
func (p *Pipeline) LastBackupAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBackup
}
