package persistence

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by operations of a Persistence which has been closed.
var ErrClosed = errors.New("persistence is closed")

// ConflictError is returned when a write collides with an existing entry under
// a ConflictStrategy which forbids it. The entire write was aborted.
type ConflictError struct {
	// Document is the colliding document, if the conflict is of a document entry.
	Document *DocumentID
	// Index is the colliding index, if the conflict is of an index entry.
	Index *IndexID
	// Key of the colliding index entry.
	Key []byte
	// Ts is the colliding commit Timestamp.
	Ts Timestamp
}

func (e *ConflictError) Error() string {
	if e.Document != nil {
		return fmt.Sprintf("conflict: document %s already has an entry at ts %d", e.Document, e.Ts)
	}
	return fmt.Sprintf("conflict: index %s key %x already has an entry at ts %d", e.Index, e.Key, e.Ts)
}

// ValidationError is returned when an input cannot be represented, eg because
// a document value is malformed or a version chain is inconsistent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a failure reported by the backing engine, such as an
// I/O error, corruption, or a malformed row. It's fatal to the operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

// Unwrap returns the engine error.
func (e *StorageError) Unwrap() error { return e.Err }

// Cause returns the engine error, for compatibility with errors.Cause.
func (e *StorageError) Cause() error { return e.Err }

// NewStorageError wraps |err| as a *StorageError of |op|. A nil |err| or an
// |err| which is already a classified persistence error is returned as-is.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		conflict   *ConflictError
		validation *ValidationError
		storage    *StorageError
		config     *ConfigurationError
	)
	if errors.As(err, &conflict) || errors.As(err, &validation) ||
		errors.As(err, &storage) || errors.As(err, &config) || err == ErrClosed {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ConfigurationError is returned by store construction when a requested
// durability configuration could not be established.
type ConfigurationError struct {
	Setting string
	Want    string
	Got     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("could not configure %s: wanted %q but engine reports %q", e.Setting, e.Want, e.Got)
}

// IsConflict returns whether |err| is or wraps a *ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsValidation returns whether |err| is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsStorage returns whether |err| is or wraps a *StorageError.
func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// IsConfiguration returns whether |err| is or wraps a *ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
