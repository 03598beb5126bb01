// Package qterr defines the typed errors surfaced by the installer pipeline.
//
// Recoverable conditions (checksum mismatch, transient connection failure)
// are retried inside the download layer and never reach the caller. Every
// other condition is classified into exactly one of the fatal types below,
// each of which can carry suggested remedial actions for the user.
package qterr

import (
	"fmt"
	"strings"
)

// baseError is the common carrier for message plus suggested actions.
type baseError struct {
	Message          string
	SuggestedActions []string
}

func (e *baseError) Error() string {
	if len(e.SuggestedActions) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString("\nSuggested actions:")
	for _, a := range e.SuggestedActions {
		b.WriteString("\n  * ")
		b.WriteString(a)
	}
	return b.String()
}

// ChecksumError indicates a downloaded archive did not match its expected
// hash. It is retryable at the download layer: a mismatch may be a corrupted
// transfer rather than a permanently bad source.
type ChecksumError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}

// DownloadError indicates the transfer itself failed (connection refused,
// HTTP error status, truncated body). It is retryable through mirror
// fallback rather than immediate same-URL retry.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ExtractionError indicates an archive could not be extracted, either by a
// built-in extractor or by the configured external tool. Fatal.
type ExtractionError struct {
	baseError
	Output string // combined stdout/stderr of an external tool, if any
}

// NewExtractionError builds an ExtractionError with optional tool output.
func NewExtractionError(msg, output string, actions ...string) *ExtractionError {
	if output != "" {
		msg = msg + "\n" + output
	}
	return &ExtractionError{baseError: baseError{Message: msg, SuggestedActions: actions}, Output: output}
}

// DiskAccessNotPermitted indicates the base directory is not writable.
type DiskAccessNotPermitted struct{ baseError }

// OutOfDiskSpace indicates the filesystem reported ENOSPC.
type OutOfDiskSpace struct{ baseError }

// OutOfMemory indicates memory exhaustion while downloading or extracting.
type OutOfMemory struct{ baseError }

// KeyboardInterrupt indicates the install was halted by an interrupt signal.
type KeyboardInterrupt struct{ baseError }

// NewDiskAccessNotPermitted builds the permissions failure for baseDir.
func NewDiskAccessNotPermitted(baseDir string) *DiskAccessNotPermitted {
	return &DiskAccessNotPermitted{baseError{
		Message: fmt.Sprintf("failed to write to base directory at %s", baseDir),
		SuggestedActions: []string{
			"Check that the destination is writable and does not already contain files owned by another user.",
		},
	}}
}

// NewOutOfDiskSpace builds the ENOSPC failure.
func NewOutOfDiskSpace() *OutOfDiskSpace {
	return &OutOfDiskSpace{baseError{
		Message: "insufficient disk space to complete installation",
		SuggestedActions: []string{
			"Check available disk space.",
			"Check size requirements for installation.",
		},
	}}
}

const altExtractorHint = "Try the '--external' flag to use an alternate extraction tool."

// NewOutOfMemory builds the memory-exhaustion failure. The advice differs
// depending on whether archives were processed in parallel.
func NewOutOfMemory(concurrency int) *OutOfMemory {
	if concurrency > 1 {
		return &OutOfMemory{baseError{
			Message: "out of memory when downloading and extracting archives in parallel",
			SuggestedActions: []string{
				"Reduce the 'concurrency' setting in your settings file.",
				altExtractorHint,
			},
		}}
	}
	return &OutOfMemory{baseError{
		Message: "out of memory when downloading and extracting archives",
		SuggestedActions: []string{
			"Free up more memory.",
			altExtractorHint,
		},
	}}
}

// NewKeyboardInterrupt builds the interrupt failure.
func NewKeyboardInterrupt() *KeyboardInterrupt {
	return &KeyboardInterrupt{baseError{Message: "installer halted by keyboard interrupt"}}
}
