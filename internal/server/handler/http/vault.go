// Package http provides the HTTP handlers of the vault server.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/metrics"
	"github.com/atinyakov/cortexvault/internal/middleware"
	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/service"
)

// MaxBlobSize is the largest accepted vault upload.
const MaxBlobSize = 16 << 20

var accountIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// VaultService defines the operations required by the VaultHandler.
type VaultService interface {
	// Upload stores blob for accountID, binding token on first use.
	Upload(ctx context.Context, accountID, token string, blob []byte) error
	// Download returns the stored blob.
	Download(ctx context.Context, accountID, token string) ([]byte, error)
	// Info returns backup metadata.
	Info(ctx context.Context, accountID, token string) (*models.BackupInfo, error)
	// Delete removes the stored blob.
	Delete(ctx context.Context, accountID, token string) error
}

// VaultHandler handles the /api/v1/vault/{accountId} endpoints.
type VaultHandler struct {
	Service VaultService
	Log     *zap.Logger
}

// NewVaultHandler returns a handler over svc.
func NewVaultHandler(svc VaultService, log *zap.Logger) *VaultHandler {
	return &VaultHandler{Service: svc, Log: logger.OrNop(log)}
}

// Upload handles PUT: the raw body is the sealed blob. Responds 204.
func (h *VaultHandler) Upload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBlobSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "vault too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(blob) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "empty vault")
		return
	}

	err = h.Service.Upload(r.Context(), accountID, middleware.GetTokenFromContext(r.Context()), blob)
	metrics.ObserveVault("upload", err)
	if err != nil {
		h.fail(w, "upload", accountID, err)
		return
	}
	metrics.VaultBlobSize.Observe(float64(len(blob)) / 1024)
	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET: responds with the blob as application/octet-stream.
func (h *VaultHandler) Download(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	blob, err := h.Service.Download(r.Context(), accountID, middleware.GetTokenFromContext(r.Context()))
	metrics.ObserveVault("download", err)
	if err != nil {
		h.fail(w, "download", accountID, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

// Exists handles HEAD: 200 when a vault exists, 404 otherwise.
func (h *VaultHandler) Exists(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	_, err := h.Service.Info(r.Context(), accountID, middleware.GetTokenFromContext(r.Context()))
	if err != nil {
		h.fail(w, "exists", accountID, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Info handles GET .../info: responds with {"exists","lastModified"}.
func (h *VaultHandler) Info(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	info, err := h.Service.Info(r.Context(), accountID, middleware.GetTokenFromContext(r.Context()))
	if err != nil {
		h.fail(w, "info", accountID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// Delete handles DELETE. Responds 204.
func (h *VaultHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	err := h.Service.Delete(r.Context(), accountID, middleware.GetTokenFromContext(r.Context()))
	metrics.ObserveVault("delete", err)
	if err != nil {
		h.fail(w, "delete", accountID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *VaultHandler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "accountId")
	if !accountIDPattern.MatchString(id) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid account id")
		return "", false
	}
	return id, true
}

func (h *VaultHandler) fail(w http.ResponseWriter, op, accountID string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "vault not found")
	case errors.Is(err, service.ErrUnauthorized):
		h.Log.Warn("token rejected", zap.String("op", op), logger.AccountField(accountID))
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.Log.Error("vault operation failed", zap.String("op", op), logger.AccountField(accountID), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
