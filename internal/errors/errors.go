// Package errors provides structured error types for critdex.
// All errors include a category, code, message, and optional cause so that
// callers can distinguish layout violations from I/O problems without
// matching on error strings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	// ErrCategoryLayout covers disagreements between the observed data tree
	// and the documented cargo-criterion layout contract.
	ErrCategoryLayout ErrorCategory = "LAYOUT"
	// ErrCategoryDecode covers CBOR decode failures and records whose
	// decoded content violates structural invariants.
	ErrCategoryDecode ErrorCategory = "DECODE"
	// ErrCategoryIdentity covers benchmark identity schema violations and
	// sanitized-path cross-check failures.
	ErrCategoryIdentity ErrorCategory = "IDENTITY"
	// ErrCategoryCache covers SQLite cache failures.
	ErrCategoryCache ErrorCategory = "CACHE"
	// ErrCategoryArchive covers snapshot archive failures.
	ErrCategoryArchive ErrorCategory = "ARCHIVE"
	// ErrCategoryIO covers filesystem failures surfaced by the walk or by
	// record reads.
	ErrCategoryIO ErrorCategory = "IO"
)

// Error codes for each category.
const (
	// Layout codes
	CodeSymlink            = "SYMLINK"
	CodeUnexpectedKind     = "UNEXPECTED_ENTRY_KIND"
	CodeUnexpectedFileName = "UNEXPECTED_FILE_NAME"
	CodeNoMeasurements     = "NO_MEASUREMENTS"

	// Decode codes
	CodeBadCBOR      = "BAD_CBOR"
	CodeBadRecord    = "BAD_RECORD"
	CodeBadTimestamp = "BAD_TIMESTAMP"

	// Identity codes
	CodeInvalidIdentity = "INVALID_IDENTITY"
	CodePathMismatch    = "PATH_MISMATCH"

	// Cache codes
	CodeSchema    = "SCHEMA"
	CodeQuery     = "QUERY"
	CodeSyncAbort = "SYNC_ABORT"

	// Archive codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"

	// IO codes
	CodeReadDir  = "READ_DIR"
	CodeReadFile = "READ_FILE"
	CodeStat     = "STAT"
)

// IndexError is the structured error type used throughout critdex.
type IndexError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

// Error returns a formatted error string.
func (e *IndexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *IndexError) Is(target error) bool {
	var t *IndexError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new IndexError.
func New(category ErrorCategory, code, message string) *IndexError {
	return &IndexError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new IndexError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *IndexError {
	return &IndexError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// GetCategory extracts the error category from an error chain.
// Returns the empty string if the error is not an IndexError.
func GetCategory(err error) ErrorCategory {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns the empty string if the error is not an IndexError.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewLayoutError(code, message string) *IndexError {
	return New(ErrCategoryLayout, code, message)
}

func NewDecodeError(code, message string, cause error) *IndexError {
	return Wrap(ErrCategoryDecode, code, message, cause)
}

func NewIdentityError(code, message string) *IndexError {
	return New(ErrCategoryIdentity, code, message)
}

func NewCacheError(code, message string, cause error) *IndexError {
	return Wrap(ErrCategoryCache, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *IndexError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewIOError(code, message string, cause error) *IndexError {
	return Wrap(ErrCategoryIO, code, message, cause)
}
