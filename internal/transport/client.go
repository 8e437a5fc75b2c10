// Package transport is the HTTP client for the vault server. It moves
// opaque encrypted blobs keyed by account id.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/atinyakov/cortexvault/internal/models"
)

const (
	vaultPath = "/api/v1/vault/{accountId}"
	infoPath  = vaultPath + "/info"

	defaultTimeout = 30 * time.Second
)

// Client talks to one account's vault.
type Client struct {
	http      *resty.Client
	accountID string
}

// Option configures a Client.
type Option func(*Client) error

// WithRootCA trusts the PEM encoded CA certificate at path.
func WithRootCA(path string) Option {
	return func(c *Client) error {
		caCert, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return errors.New("failed to parse CA cert")
		}
		c.http.SetTLSClientConfig(&tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12})
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.http.SetTimeout(d)
		return nil
	}
}

// New returns a client for accountID authenticating with authToken.
func New(baseURL, accountID, authToken string, opts ...Option) (*Client, error) {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetAuthToken(authToken).
			SetPathParam("accountId", accountID),
		accountID: accountID,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// HTTPClient exposes the underlying client, mainly for test mocking.
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// AccountID returns the account the client is bound to.
func (c *Client) AccountID() string {
	return c.accountID
}

// UploadVault replaces the stored blob.
func (c *Client) UploadVault(ctx context.Context, blob []byte) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(blob).
		Put(vaultPath)
	if err != nil {
		return fmt.Errorf("upload vault: %w", err)
	}
	return handleError(resp)
}

// DownloadVault returns the stored blob or an error matching ErrNotFound.
func (c *Client) DownloadVault(ctx context.Context) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/octet-stream").
		Get(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("download vault: %w", err)
	}
	if err := handleError(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// VaultExists reports whether a blob is stored.
func (c *Client) VaultExists(ctx context.Context) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Head(vaultPath)
	if err != nil {
		return false, fmt.Errorf("probe vault: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if err := handleError(resp); err != nil {
		return false, err
	}
	return true, nil
}

// VaultInfo returns the backup metadata, or nil when nothing is stored.
func (c *Client) VaultInfo(ctx context.Context) (*models.BackupInfo, error) {
	var info models.BackupInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&info).
		Get(infoPath)
	if err != nil {
		return nil, fmt.Errorf("vault info: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := handleError(resp); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteVault removes the stored blob. Deleting a missing vault succeeds.
func (c *Client) DeleteVault(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Delete(vaultPath)
	if err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return handleError(resp)
}
