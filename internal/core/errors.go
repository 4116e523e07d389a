package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrFilesystem is returned when the cache directory cannot be created or read
	ErrFilesystem = errors.New("cache filesystem error")
	// ErrSyncLocked is returned when another process holds the cache sync lock
	ErrSyncLocked = errors.New("cache sync lock held by another process")
	// ErrManifestUnavailable is returned when no manifest could be fetched or loaded
	ErrManifestUnavailable = errors.New("manifest unavailable")

	ErrDownloadTimeout   = errors.New("download timed out")
	ErrDownloadTransport = errors.New("download transport error")
	ErrDownloadHTTP      = errors.New("download returned non-success status")
	ErrDecode            = errors.New("downloaded file is not a supported image")
	ErrTooLarge          = errors.New("downloaded file exceeds size limit")
	ErrWrite             = errors.New("failed to write cache file")
)

// HTTPStatusError carries the status of a rejected download
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Is makes HTTPStatusError match ErrDownloadHTTP
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrDownloadHTTP
}

// FailureReason classifies a per-record download failure
type FailureReason string

const (
	FailureTimeout    FailureReason = "timeout"
	FailureTransport  FailureReason = "transport"
	FailureHTTPStatus FailureReason = "http_status"
	FailureDecode     FailureReason = "decode"
	FailureTooLarge   FailureReason = "too_large"
	FailureWrite      FailureReason = "write"
)

// ClassifyDownloadError maps a download pipeline error onto a FailureReason
func ClassifyDownloadError(err error) FailureReason {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrDownloadTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTimeout
	case errors.Is(err, ErrDownloadHTTP):
		return FailureHTTPStatus
	case errors.Is(err, ErrDecode):
		return FailureDecode
	case errors.Is(err, ErrTooLarge):
		return FailureTooLarge
	case errors.Is(err, ErrWrite):
		return FailureWrite
	default:
		return FailureTransport
	}
}
