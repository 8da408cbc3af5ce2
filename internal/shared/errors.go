package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig  = fmt.Errorf("configuration not found")
	ErrInvalidConfig  = fmt.Errorf("invalid configuration")
	ErrUnknownBackend = fmt.Errorf("unknown storage backend")

	// Storage errors
	ErrNotFound          = fmt.Errorf("record not found")
	ErrUnknownCollection = fmt.Errorf("unknown collection")
	ErrMissingKey        = fmt.Errorf("record is missing its key field")
	ErrInvalidPayload    = fmt.Errorf("invalid payload")
	ErrStorageClosed     = fmt.Errorf("storage is closed")

	// Sync errors
	ErrOffline            = fmt.Errorf("offline: remote sync skipped")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrCoordinatorStopped = fmt.Errorf("sync coordinator stopped")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// StorageInitError reports that a storage backend could not be opened or prepared.
type StorageInitError struct {
	Backend string
	Err     error
}

func (e *StorageInitError) Error() string {
	return fmt.Sprintf("failed to initialize %s storage: %v", e.Backend, e.Err)
}

func (e *StorageInitError) Unwrap() error { return e.Err }

// StorageWriteError reports a failed or aborted write to a collection.
type StorageWriteError struct {
	Collection string
	Err        error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Collection, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// RemoteFetchError reports that the remote document store was unreachable or rejected a query.
type RemoteFetchError struct {
	Collection string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("failed to fetch remote %s: %v", e.Collection, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// ErrorKind names the class of err for logs and reports: "init", "write", "fetch", "offline", or "other".
func ErrorKind(err error) string {
	var (
		initErr  *StorageInitError
		writeErr *StorageWriteError
		fetchErr *RemoteFetchError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOffline):
		return "offline"
	case errors.As(err, &initErr):
		return "init"
	case errors.As(err, &writeErr):
		return "write"
	case errors.As(err, &fetchErr):
		return "fetch"
	default:
		return "other"
	}
}
