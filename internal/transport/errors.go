package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	ErrNotFound     = errors.New("transport: vault not found")
	ErrUnauthorized = errors.New("transport: unauthorized")
	ErrRateLimited  = errors.New("transport: rate limited")
)

// APIError is a non-2xx response from the vault server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vault server: %d %s", e.StatusCode, e.Message)
}

// Is matches the package sentinels by status code.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

type errorBody struct {
	Error string `json:"error"`
}

func handleError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	msg := http.StatusText(resp.StatusCode())
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}
