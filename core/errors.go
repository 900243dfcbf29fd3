package core

import "github.com/pkg/errors"

// FieldError reports an error on a specific input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a bad-input error. It either wraps a plain error or
// carries per-field errors, in which case API handlers render a field map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldMap flattens the field errors into a field -> message map,
// or nil when the error carries no field details.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	m := make(map[string]string, len(err.Fields))
	for _, fErr := range err.Fields {
		m[fErr.Field] = fErr.Error
	}
	return m
}

// shutdown is an unrecoverable error: catching it brings the app down.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
