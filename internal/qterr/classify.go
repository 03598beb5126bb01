package qterr

import (
	"context"
	"errors"
	"os"
	"syscall"
)

// Classify maps an error escaping a worker task into the fatal taxonomy.
// Recoverable errors never reach here; they are retried in the download
// layer. Errors that match no known condition are returned unchanged.
//
// interrupted reports whether the controlling process observed an interrupt
// signal; concurrency selects the OutOfMemory advice.
func Classify(err error, baseDir string, concurrency int, interrupted bool) error {
	if err == nil {
		return nil
	}
	if interrupted && errors.Is(err, context.Canceled) {
		return NewKeyboardInterrupt()
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return NewDiskAccessNotPermitted(baseDir)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return NewOutOfDiskSpace()
	}
	if errors.Is(err, syscall.ENOMEM) {
		return NewOutOfMemory(concurrency)
	}
	return err
}

// IsChecksumError reports whether err is (or wraps) a ChecksumError.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

// IsDownloadError reports whether err is (or wraps) a DownloadError.
func IsDownloadError(err error) bool {
	var de *DownloadError
	return errors.As(err, &de)
}
