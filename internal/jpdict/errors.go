package jpdict

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported alongside update failures.
const (
	KindAbort    = "AbortError"
	KindOffline  = "OfflineError"
	KindDownload = "DownloadError"
	KindDatabase = "DatabaseError"
	KindUnknown  = "Error"
)

var (
	// ErrOffline means the data server could not be reached at all.
	ErrOffline = errors.New("network is offline")
	// ErrAborted means an update was cancelled.
	ErrAborted = errors.New("update aborted")
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database closed")
	// ErrUpdateInProgress is returned when Update is called while another
	// update on the same database is still running.
	ErrUpdateInProgress = errors.New("update already in progress")
)

// DownloadError is a failed fetch from the data server. It is retryable.
type DownloadError struct {
	URL  string
	Code int
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// DatabaseError is a failure inside the local store.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var dl *DownloadError
	var dbErr *DatabaseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return KindAbort
	case errors.Is(err, ErrOffline):
		return KindOffline
	case errors.As(err, &dl):
		return KindDownload
	case errors.As(err, &dbErr):
		return KindDatabase
	default:
		return KindUnknown
	}
}

// Retryable reports whether an update that failed with err should be retried.
func Retryable(err error) bool {
	return ErrorKind(err) == KindDownload
}
