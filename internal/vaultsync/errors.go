package vaultsync

import (
	"errors"
	"fmt"

	"github.com/atinyakov/cortexvault/internal/transport"
)

var (
	ErrNoEncryptionKey     = errors.New("vaultsync: encryption key not available")
	ErrSerializationFailed = errors.New("vaultsync: serialization failed")
	ErrEncryptionFailed    = errors.New("vaultsync: encryption failed")
	// ErrDecryptionFailed does not distinguish a wrong key from corrupted
	// data.
	ErrDecryptionFailed      = errors.New("vaultsync: decryption failed")
	ErrDeserializationFailed = errors.New("vaultsync: deserialization failed")
	ErrNoBackupFound         = errors.New("vaultsync: no backup found")
)

// UploadFailedError wraps the transport failure of a backup upload.
type UploadFailedError struct {
	Err error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("vaultsync: upload failed: %v", e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// DownloadFailedError wraps an untyped transport failure of a restore.
type DownloadFailedError struct {
	Err error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("vaultsync: download failed: %v", e.Err)
}

func (e *DownloadFailedError) Unwrap() error { return e.Err }

// VersionMismatchError reports a payload newer than this client reads.
type VersionMismatchError struct {
	ServerVersion int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("vaultsync: backup version %d is newer than supported version %d", e.ServerVersion, CurrentVersion)
}

// UserMessage renders err for display.
func UserMessage(err error) string {
	var (
		upload   *UploadFailedError
		download *DownloadFailedError
		version  *VersionMismatchError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecryptionFailed):
		return "Could not decrypt the backup. Wrong recovery phrase?"
	case errors.Is(err, ErrNoBackupFound):
		return "No backup was found for this recovery phrase."
	case errors.Is(err, ErrNoEncryptionKey):
		return "The vault is locked. Unlock it with your recovery phrase first."
	case errors.As(err, &version):
		return "This backup was made by a newer version of the app. Please update to restore it."
	case errors.Is(err, transport.ErrUnauthorized):
		return "The server rejected the credentials for this recovery phrase."
	case errors.Is(err, transport.ErrRateLimited):
		return "Too many requests. Please try again later."
	case errors.As(err, &upload):
		return "Could not upload the backup. Check your connection and try again."
	case errors.As(err, &download):
		return "Could not download the backup. Check your connection and try again."
	case errors.Is(err, ErrSerializationFailed), errors.Is(err, ErrEncryptionFailed):
		return "Could not prepare the backup."
	case errors.Is(err, ErrDeserializationFailed):
		return "The backup could not be read."
	}
	return "Something went wrong."
}
