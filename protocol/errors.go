package protocol

import "errors"

var (
	// ErrMalformed indicates the request bytes are not a JSON object.
	ErrMalformed = errors.New("malformed request")
	// ErrMissingField indicates a required request field is absent.
	ErrMissingField = errors.New("missing field")
	// ErrTypeMismatch indicates a request field holds a value of the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")
)
