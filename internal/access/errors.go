package access

import (
	"errors"
	"fmt"
)

// ErrDownloadInFlight is returned when a second download is requested for
// an asset that is already being materialized. The caller retries once
// the first attempt settles.
var ErrDownloadInFlight = errors.New("download already in progress for this asset")

// AuthError represents a missing or rejected session. Any 401 from the
// backend surfaces as this type after the session store has been cleared.
type AuthError struct {
	Operation string // the operation that required authentication
	Err       error  // underlying error, if any
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication required during %s", e.Operation)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a content item or asset catalog that the
// backend does not know about.
type NotFoundError struct {
	Resource string // what was looked up (e.g. "content", "asset catalog")
	ID       string // the identifier that missed
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// PermissionError represents a missing device storage permission. It is
// raised before any network request is attempted.
type PermissionError struct {
	Path string // the local path that could not be written
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("storage permission denied for %s", e.Path)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// DownloadError represents an asset transport failure: non-2xx responses,
// connection errors, or a failed local write. StatusCode is 0 for
// non-HTTP failures.
type DownloadError struct {
	AssetID    string
	StatusCode int
	Message    string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("download failed for asset %s (HTTP %d): %s", e.AssetID, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("download failed for asset %s: %s", e.AssetID, e.Message)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// TransportError represents a network or server failure while talking to
// the backend: 5xx responses, connection errors, timeouts. The resolver
// folds it into Denied(VerificationFailed); it never reaches a screen raw.
type TransportError struct {
	Operation  string
	StatusCode int // 0 for non-HTTP failures
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("transport error during %s: %s", e.Operation, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError represents an application-level failure: the backend answered
// HTTP 200 but with success=false in the response envelope. Distinct from
// transport failure so callers can surface the backend's message.
type APIError struct {
	Operation string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend rejected %s: %s", e.Operation, e.Message)
}
