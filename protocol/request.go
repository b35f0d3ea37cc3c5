// Package protocol defines the request and response objects exchanged with
// remote clients. Both are flat JSON objects: requests are read with gjson,
// responses are built in insertion order with sjson.
package protocol

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Request is a parsed, read-only request object.
type Request struct {
	raw  string
	root gjson.Result
}

// Parse parses data as a request object. Anything other than a JSON object
// yields ErrMalformed.
func Parse(data []byte) (Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return Request{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return Request{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	return Request{raw: string(trimmed), root: root}, nil
}

// ParseLenient is Parse, except malformed input yields an empty request.
func ParseLenient(data []byte) Request {
	req, err := Parse(data)
	if err != nil {
		return Empty()
	}
	return req
}

// Empty returns a request with no fields.
func Empty() Request {
	return Request{raw: "{}", root: gjson.Parse("{}")}
}

// Raw returns the request as it was received.
func (r Request) Raw() string {
	if r.raw == "" {
		return "{}"
	}
	return r.raw
}

// Keys returns the field names in the order they were sent.
func (r Request) Keys() []string {
	keys := []string{}
	r.root.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

func (r Request) field(key string) (gjson.Result, bool) {
	var (
		out   gjson.Result
		found bool
	)
	r.root.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out, found = v, true
			return false
		}
		return true
	})
	return out, found
}

// Has reports whether the field is present, whatever its value.
func (r Request) Has(key string) bool {
	_, ok := r.field(key)
	return ok
}

// String returns the field as a string. Numbers and booleans are returned in
// their JSON spelling.
func (r Request) String(key string) (string, error) {
	v, ok := r.field(key)
	if !ok {
		return "", missing(key)
	}
	switch v.Type {
	case gjson.String:
		return v.Str, nil
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw, nil
	default:
		return "", mismatch(key, "a string")
	}
}

// OptString returns the field as a string, or def when it is absent.
func (r Request) OptString(key, def string) (string, error) {
	if !r.Has(key) {
		return def, nil
	}
	return r.String(key)
}

// Int returns the field as a 32-bit integer. Numeric strings are accepted
// and fractional values are truncated.
func (r Request) Int(key string) (int, error) {
	n, err := r.number(key, "an integer")
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, mismatch(key, "an integer")
	}
	return int(n), nil
}

// Int64 returns the field as a 64-bit integer.
func (r Request) Int64(key string) (int64, error) {
	n, err := r.number(key, "a long")
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func (r Request) number(key, want string) (float64, error) {
	v, ok := r.field(key)
	if !ok {
		return 0, missing(key)
	}
	switch v.Type {
	case gjson.Number:
		return math.Trunc(v.Num), nil
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, mismatch(key, want)
		}
		return math.Trunc(f), nil
	default:
		return 0, mismatch(key, want)
	}
}

// Bool returns the field as a boolean. The strings "true" and "false" are
// accepted in any case.
func (r Request) Bool(key string) (bool, error) {
	v, ok := r.field(key)
	if !ok {
		return false, missing(key)
	}
	switch v.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	case gjson.String:
		switch strings.ToLower(v.Str) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, mismatch(key, "a boolean")
}

func missing(key string) error {
	return fmt.Errorf("%w %q", ErrMissingField, key)
}

func mismatch(key, want string) error {
	return fmt.Errorf("%w: %q is not %s", ErrTypeMismatch, key, want)
}
