package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrAuthentication     = errors.New("authentication error")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrMalformedTokenFile = errors.New("malformed token file")
	ErrConnectionClosed   = errors.New("connection closed")
)

// RemoteError is a non-2xx answer from the remote service.
type RemoteError struct {
	Context    string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: Server responded with code %d", e.Context, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Message)
}

func (e *RemoteError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuthentication
	}
	return nil
}

// NewRemoteError builds a RemoteError from a response body, reading its
// optional JSON "message" field.
func NewRemoteError(context string, statusCode int, body []byte) *RemoteError {
	message := ""
	if gjson.ValidBytes(body) {
		message = strings.TrimSpace(gjson.GetBytes(body, "message").String())
	}
	return &RemoteError{Context: context, StatusCode: statusCode, Message: message}
}
