package vaultsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/cortexvault/internal/envelope"
	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/securestore"
	"github.com/atinyakov/cortexvault/internal/transport"
)

// mockTransport keeps the last uploaded blob unless a func override is set.
type mockTransport struct {
	blob []byte

	UploadFunc   func(ctx context.Context, blob []byte) error
	DownloadFunc func(ctx context.Context) ([]byte, error)
	ExistsFunc   func(ctx context.Context) (bool, error)
	InfoFunc     func(ctx context.Context) (*models.BackupInfo, error)
	DeleteFunc   func(ctx context.Context) error
}

func (m *mockTransport) UploadVault(ctx context.Context, blob []byte) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, blob)
	}
	m.blob = append([]byte(nil), blob...)
	return nil
}

func (m *mockTransport) DownloadVault(ctx context.Context) ([]byte, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx)
	}
	if m.blob == nil {
		return nil, &transport.APIError{StatusCode: http.StatusNotFound}
	}
	return m.blob, nil
}

func (m *mockTransport) VaultExists(ctx context.Context) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx)
	}
	return m.blob != nil, nil
}

func (m *mockTransport) VaultInfo(ctx context.Context) (*models.BackupInfo, error) {
	if m.InfoFunc != nil {
		return m.InfoFunc(ctx)
	}
	return nil, nil
}

func (m *mockTransport) DeleteVault(ctx context.Context) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx)
	}
	m.blob = nil
	return nil
}

// failingEnvelope is ready but cannot seal.
type failingEnvelope struct{}

func (failingEnvelope) IsReady() bool { return true }

func (failingEnvelope) Seal([]byte) ([]byte, error) { return nil, errors.New("rng failure") }

func (failingEnvelope) Open([]byte) ([]byte, error) { return nil, errors.New("unused") }

func readyEnvelope(t *testing.T) *envelope.Service {
	t.Helper()
	env := envelope.New(securestore.NewMemory(), nil)
	require.NoError(t, env.Initialize(context.Background()))
	return env
}

func newPipeline(t *testing.T, tr Transport) (*Pipeline, *envelope.Service) {
	t.Helper()
	env := readyEnvelope(t)
	p := New(tr, env, nil)
	p.now = func() time.Time { return t0 }
	return p, env
}

func sampleEntries() []models.Entry {
	return []models.Entry{
		{ID: "e1", Title: "First", Content: "hello", Tags: []string{"a"}, CreatedAt: t0, UpdatedAt: t0},
		{ID: "e2", Title: "Gone", Deleted: true},
		{ID: "e3", Title: "Third", CreatedAt: t0, UpdatedAt: t0},
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newPipeline(t, tr)

	insights := []models.Insight{{ID: "i1", EntryID: "e1", Kind: "summary", Body: "short", CreatedAt: t0}}
	require.NoError(t, p.Backup(context.Background(), sampleEntries(), insights))
	assert.Equal(t, t0, p.LastBackupAt())
	assert.True(t, p.HasBackup(context.Background()))

	snap, err := p.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, snap.Version)
	assert.Equal(t, Platform, snap.Platform)
	assert.Equal(t, t0, snap.ExportedAt)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "e1", snap.Entries[0].ID)
	assert.Equal(t, []string{"a"}, snap.Entries[0].Tags)
	assert.Equal(t, []string{}, snap.Entries[1].Tags)
	assert.Equal(t, insights, snap.Insights)
}

func TestBackupRestore_EmptyVault(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newPipeline(t, tr)

	require.NoError(t, p.Backup(context.Background(), nil, nil))
	snap, err := p.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
	assert.Nil(t, snap.Insights)
}

func TestBackup_StoresOnlyCiphertext(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newPipeline(t, tr)

	require.NoError(t, p.Backup(context.Background(), sampleEntries(), nil))
	assert.NotContains(t, string(tr.blob), "hello")
	assert.NotContains(t, string(tr.blob), "entries")
}

func TestBackup_Errors(t *testing.T) {
	locked := New(&mockTransport{}, envelope.New(securestore.NewMemory(), nil), nil)
	assert.ErrorIs(t, locked.Backup(context.Background(), nil, nil), ErrNoEncryptionKey)

	sealFail := New(&mockTransport{}, failingEnvelope{}, nil)
	assert.ErrorIs(t, sealFail.Backup(context.Background(), nil, nil), ErrEncryptionFailed)

	cause := &transport.APIError{StatusCode: http.StatusUnauthorized, Message: "bad token"}
	p, _ := newPipeline(t, &mockTransport{
		UploadFunc: func(context.Context, []byte) error { return cause },
	})
	err := p.Backup(context.Background(), sampleEntries(), nil)

	var upErr *UploadFailedError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.True(t, p.LastBackupAt().IsZero())
}

func TestRestore_ErrorMapping(t *testing.T) {
	rateLimited := &transport.APIError{StatusCode: http.StatusTooManyRequests}
	netErr := errors.New("dial tcp: connection refused")

	t.Run("not found", func(t *testing.T) {
		p, _ := newPipeline(t, &mockTransport{})
		_, err := p.Restore(context.Background())
		assert.ErrorIs(t, err, ErrNoBackupFound)
	})

	t.Run("typed transport error passes through", func(t *testing.T) {
		p, _ := newPipeline(t, &mockTransport{
			DownloadFunc: func(context.Context) ([]byte, error) { return nil, rateLimited },
		})
		_, err := p.Restore(context.Background())
		assert.Same(t, rateLimited, err)
	})

	t.Run("untyped error is wrapped", func(t *testing.T) {
		p, _ := newPipeline(t, &mockTransport{
			DownloadFunc: func(context.Context) ([]byte, error) { return nil, netErr },
		})
		_, err := p.Restore(context.Background())
		var dlErr *DownloadFailedError
		require.ErrorAs(t, err, &dlErr)
		assert.ErrorIs(t, err, netErr)
	})

	t.Run("locked", func(t *testing.T) {
		p := New(&mockTransport{}, envelope.New(securestore.NewMemory(), nil), nil)
		_, err := p.Restore(context.Background())
		assert.ErrorIs(t, err, ErrNoEncryptionKey)
	})
}

func TestRestore_WrongKey(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newPipeline(t, tr)
	require.NoError(t, p.Backup(context.Background(), sampleEntries(), nil))

	other, _ := newPipeline(t, tr)
	_, err := other.Restore(context.Background())
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Equal(t, "Could not decrypt the backup. Wrong recovery phrase?", UserMessage(err))
}

func TestRestore_CorruptedBlob(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newPipeline(t, tr)
	require.NoError(t, p.Backup(context.Background(), sampleEntries(), nil))

	tr.blob[len(tr.blob)-1] ^= 0xFF
	_, err := p.Restore(context.Background())
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	tr.blob = tr.blob[:5]
	_, err = p.Restore(context.Background())
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func sealJSON(t *testing.T, env *envelope.Service, v any) []byte {
	t.Helper()
	plain, err := json.Marshal(v)
	require.NoError(t, err)
	blob, err := env.Seal(plain)
	require.NoError(t, err)
	return blob
}

func TestRestore_VersionGate(t *testing.T) {
	tr := &mockTransport{}
	p, env := newPipeline(t, tr)

	tr.blob = sealJSON(t, env, map[string]any{"entries": []any{}, "version": CurrentVersion + 1})
	_, err := p.Restore(context.Background())
	var vm *VersionMismatchError
	require.ErrorAs(t, err, &vm)
	assert.Equal(t, CurrentVersion+1, vm.ServerVersion)

	tr.blob = sealJSON(t, env, map[string]any{"entries": []any{}, "version": CurrentVersion, "platform": "android"})
	snap, err := p.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "android", snap.Platform)
}

func TestRestore_Deserialization(t *testing.T) {
	tr := &mockTransport{}
	p, env := newPipeline(t, tr)

	blob, err := env.Seal([]byte("not json"))
	require.NoError(t, err)
	tr.blob = blob

	_, err = p.Restore(context.Background())
	assert.ErrorIs(t, err, ErrDeserializationFailed)
}

func TestProbes_Degrade(t *testing.T) {
	boom := errors.New("boom")
	p, _ := newPipeline(t, &mockTransport{
		ExistsFunc: func(context.Context) (bool, error) { return true, boom },
		InfoFunc:   func(context.Context) (*models.BackupInfo, error) { return nil, boom },
		DeleteFunc: func(context.Context) error { return boom },
	})

	assert.False(t, p.HasBackup(context.Background()))
	assert.Nil(t, p.BackupInfo(context.Background()))
	assert.False(t, p.DeleteBackup(context.Background()))
}

func TestBackupInfoAndDelete(t *testing.T) {
	info := &models.BackupInfo{Exists: true, LastModified: t0}
	tr := &mockTransport{
		InfoFunc: func(context.Context) (*models.BackupInfo, error) { return info, nil },
	}
	p, _ := newPipeline(t, tr)

	require.NoError(t, p.Backup(context.Background(), sampleEntries(), nil))
	assert.Equal(t, info, p.BackupInfo(context.Background()))

	assert.True(t, p.DeleteBackup(context.Background()))
	assert.False(t, p.HasBackup(context.Background()))
	assert.True(t, p.LastBackupAt().IsZero())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNoBackupFound, "No backup was found for this recovery phrase."},
		{&VersionMismatchError{ServerVersion: 3}, "This backup was made by a newer version of the app. Please update to restore it."},
		{&transport.APIError{StatusCode: http.StatusUnauthorized}, "The server rejected the credentials for this recovery phrase."},
		{&UploadFailedError{Err: errors.New("x")}, "Could not upload the backup. Check your connection and try again."},
		{&DownloadFailedError{Err: errors.New("x")}, "Could not download the backup. Check your connection and try again."},
		{ErrDeserializationFailed, "The backup could not be read."},
		{errors.New("other"), "Something went wrong."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
