package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing is returned when no sync key is configured. Every
	// operation is refused until one is set.
	ErrConfigMissing = errors.New("sync key not configured")

	// ErrNoData is returned by Pull when nothing is stored for the origin.
	ErrNoData = errors.New("no data stored for this origin")

	// ErrDecryptFailed is returned when a stored snapshot cannot be opened.
	// A wrong sync key and a corrupted payload are not distinguished.
	ErrDecryptFailed = errors.New("could not decrypt stored data")

	// ErrInternal is returned when a collaborator fails unexpectedly.
	ErrInternal = errors.New("internal error")
)

// RemoteError wraps a failure of the remote store. It is never retried.
type RemoteError struct {
	// Op is the remote operation: upsert, read, delete or list.
	Op string
	// Err is the underlying error, reported verbatim.
	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Message returns a short user-facing description of err.
func Message(err error) string {
	var re *RemoteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigMissing):
		return "Set up a sync key first."
	case errors.Is(err, ErrNoData):
		return "No cloud data for this site."
	case errors.Is(err, ErrDecryptFailed):
		return "Decryption failed. Check that the sync key matches."
	case errors.As(err, &re):
		return "Sync service error: " + re.Err.Error()
	default:
		return "Error: " + err.Error()
	}
}
