package replay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that the requested frame does not exist.
	ErrNotFound = errors.New("replay: frame not found")
	// ErrSchemaHealed indicates that the persistent schema was missing, has
	// been reinitialized, and the original request should be retried.
	ErrSchemaHealed = errors.New("replay: schema reinitialized, retry request")
)

// StoreError wraps a persistence failure with a dotted operation code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code, e.g. "replay.append_frame.insert_failed".
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// isSchemaMissing reports whether an underlying SQLite failure carries the
// missing-schema signature that the self-healing path recovers from.
func isSchemaMissing(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "no such table") || strings.Contains(message, "no such index")
}
