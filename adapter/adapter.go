// Package adapter defines the capability contract every storage backend
// this archive can replicate onto must implement.
package adapter

import "context"

// Adapter is a single storage backend capable of holding copies of
// ingested resources, one canonical copy per resource at most.
type Adapter interface {
	// ID returns the adapter's configured identifier.
	ID() string

	// Type returns the adapter's registered type name, as passed to
	// adapter/factory.Create.
	Type() string

	// CanOverwrite reports whether Store/StoreCanonical can replace an
	// existing copy's bytes in place. Adapters that cannot (none of the
	// three shipped here, but the interface stays general) have a
	// non-canonical copy repaired via Delete followed by Store instead.
	CanOverwrite() bool

	// Store writes a non-canonical copy of the resource identified by
	// resourceUUID, reading its bytes from sourcePath. If a non-canonical
	// copy already exists on this adapter and its bytes already hash to
	// checksum, Store returns its locator without writing again; if they
	// differ, the existing copy is overwritten. Returns the locator the
	// copy was written to.
	Store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (locator string, err error)

	// StoreCanonical writes the canonical copy of the resource. Returns
	// a StorageFailedError if a canonical copy already exists on this
	// adapter.
	StoreCanonical(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (locator string, err error)

	// Retrieve copies the resource's bytes (canonical if canonical is
	// true, otherwise the adapter's ordinary copy) to destPath.
	Retrieve(ctx context.Context, resourceUUID, destPath string, canonical bool) error

	// Delete removes the non-canonical copy of resourceUUID, if any. It
	// is idempotent: deleting a resource with no copy on this adapter is
	// not an error.
	Delete(ctx context.Context, resourceUUID string) error

	// DeleteCanonical removes the canonical copy of resourceUUID. It is
	// idempotent in the same way as Delete.
	DeleteCanonical(ctx context.Context, resourceUUID string) error

	// ActualChecksum rehashes the bytes currently stored for
	// resourceUUID (canonical if canonical is true) and returns the
	// resulting checksum, without trusting any recorded metadata.
	ActualChecksum(ctx context.Context, resourceUUID string, canonical bool) (string, error)
}
