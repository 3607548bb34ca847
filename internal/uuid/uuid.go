// Package uuid wraps github.com/google/uuid for the one UUID shape this
// repository needs: a v4 (random) identifier string, assigned once per
// resource at ingest time.
package uuid

import "github.com/google/uuid"

// NewV4String returns a new random (v4) UUID string. Object identifiers
// are assigned v4 rather than a time-ordered variant so that they carry
// no information about ingest order.
func NewV4String() string {
	return uuid.New().String()
}
