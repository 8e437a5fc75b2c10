package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/cortexvault/internal/models"
	"github.com/atinyakov/cortexvault/internal/repository"
	handler "github.com/atinyakov/cortexvault/internal/server/handler/http"
	"github.com/atinyakov/cortexvault/internal/service"
)

const (
	accountID = "94be3457617eb22c8265108ad9a6dd8e5bacb814db15e6a4c914b519411543c2"
	token     = "a730988d3861c8b1af8bf2f943685a5047d108a1276d6143df71195b96c396be"
	vaultURL  = "/api/v1/vault/" + accountID
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.NewVaultService(repository.NewMemoryVaultRepository())
	return handler.NewRouter(handler.NewVaultHandler(svc, nil), nil, handler.RouterOptions{})
}

func do(t *testing.T, h http.Handler, method, url, tok string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVaultLifecycle(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodHead, vaultURL, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, vaultURL, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"vault not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, vaultURL, token, []byte("sealed-1"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodHead, vaultURL, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, vaultURL, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "sealed-1", rec.Body.String())

	rec = do(t, h, http.MethodGet, vaultURL+"/info", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.BackupInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Exists)
	assert.False(t, info.LastModified.IsZero())

	rec = do(t, h, http.MethodDelete, vaultURL, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, vaultURL, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVault_TokenBinding(t *testing.T) {
	h := newRouter(t)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, vaultURL, token, []byte("mine")).Code)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPut, vaultURL, "intruder", []byte("theirs")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, vaultURL, "intruder", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodDelete, vaultURL, "intruder", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, vaultURL, "", nil).Code)

	rec := do(t, h, http.MethodGet, vaultURL, token, nil)
	assert.Equal(t, "mine", rec.Body.String())
}

func TestVault_BadRequests(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/vault/not-hex", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/vault/"+strings.ToUpper(accountID), token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, vaultURL, token, []byte{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, vaultURL, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestVault_TooLarge(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodPut, vaultURL, token, make([]byte, handler.MaxBlobSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type failingService struct{}

func (failingService) Upload(context.Context, string, string, []byte) error {
	return errors.New("disk full")
}
func (failingService) Download(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("disk full")
}
func (failingService) Info(context.Context, string, string) (*models.BackupInfo, error) {
	return nil, errors.New("disk full")
}
func (failingService) Delete(context.Context, string, string) error { return errors.New("disk full") }

func TestVault_InternalErrorHidesCause(t *testing.T) {
	h := handler.NewRouter(handler.NewVaultHandler(failingService{}, nil), nil, handler.RouterOptions{})
	rec := do(t, h, http.MethodPut, vaultURL, token, []byte("x"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newRouter(t)
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "active_rest_connections")
}

func TestRateLimited(t *testing.T) {
	svc := service.NewVaultService(repository.NewMemoryVaultRepository())
	h := handler.NewRouter(handler.NewVaultHandler(svc, nil), nil, handler.RouterOptions{RatePerSecond: 0.001, Burst: 1})

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, vaultURL, token, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, vaultURL, token, nil).Code)
}

func TestRateLimited_ForwardedFor(t *testing.T) {
	get := func(h http.Handler, xff string) int {
		req := httptest.NewRequest(http.MethodGet, vaultURL, nil)
		req.RemoteAddr = "198.51.100.9:4000"
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	opts := handler.RouterOptions{RatePerSecond: 0.001, Burst: 1}

	direct := handler.NewRouter(handler.NewVaultHandler(service.NewVaultService(repository.NewMemoryVaultRepository()), nil), nil, opts)
	assert.Equal(t, http.StatusNotFound, get(direct, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, get(direct, "203.0.113.2"))

	opts.TrustProxy = true
	proxied := handler.NewRouter(handler.NewVaultHandler(service.NewVaultService(repository.NewMemoryVaultRepository()), nil), nil, opts)
	assert.Equal(t, http.StatusNotFound, get(proxied, "203.0.113.1"))
	assert.Equal(t, http.StatusNotFound, get(proxied, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, get(proxied, "203.0.113.1"))
}
