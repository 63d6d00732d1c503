package services

import (
	"errors"
	"sort"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorCrypto          ErrorCode = "crypto"
	ErrorStorage         ErrorCode = "storage"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

// ServiceError is the only error type the HTTP layer needs to understand.
// Fields carries one message per offending input field for validation failures.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Fields  map[string]string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }

func NewCryptoError(msg string, err error) error {
	return &ServiceError{Code: ErrorCrypto, Message: msg, Err: err}
}

func NewStorageError(msg string, err error) error {
	return &ServiceError{Code: ErrorStorage, Message: msg, Err: err}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

// NewValidationError builds an invalid error carrying the field map. The map is copied.
func NewValidationError(msg string, fields map[string]string) error {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &ServiceError{Code: ErrorInvalid, Message: msg, Fields: cp}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err is a ServiceError with the given code.
func IsCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

// FieldErrors collects per-field problems so callers can report them all at once.
type FieldErrors map[string]string

// Add keeps the first message recorded for a field.
func (f FieldErrors) Add(field, msg string) {
	if _, exists := f[field]; exists {
		return
	}
	f[field] = msg
}

func (f FieldErrors) Empty() bool { return len(f) == 0 }

func (f FieldErrors) Err(msg string) error {
	if f.Empty() {
		return nil
	}
	return NewValidationError(msg, f)
}

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

var (
	// ErrDuplicateKey is returned by participant stores when the generated key is already taken.
	ErrDuplicateKey = errors.New("participant key already exists")
	// ErrSubmissionExists is returned by submission stores when the participant already has a submission.
	ErrSubmissionExists = errors.New("submission already exists for participant")
)
