// Package uuid generates random identifiers for connections.
package uuid

import "github.com/google/uuid"

// New returns a random version 4 UUID in its canonical string form.
func New() string {
	return uuid.NewString()
}
