// Package storage provides the durable key/value store the agent keeps its
// configuration in (shared secret, device name, password-reset file).
package storage

import "errors"

var (
	// ErrNotFound is returned when a key has never been set.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Well-known configuration keys.
const (
	KeyPassword   = "password"
	KeyDeviceName = "deviceName"
	KeyResetFile  = "upprFile"
)

// Store defines a string-to-string configuration store.
//
// Get returns def when the key is absent; it only fails when the backing
// storage itself fails.
type Store interface {
	Has(key string) (bool, error)
	Get(key, def string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}
