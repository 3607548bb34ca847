// Package metadata defines the durable catalog of resources, copies,
// levels, and per-object user metadata this archive tracks. It owns no
// object bytes itself: all bytes live in Adapters, and the catalog is
// the sole source of truth about what should exist where.
package metadata

import (
	"context"

	"github.com/libreary/libreary"
)

// Store is the catalog's capability contract. Every operation is
// synchronous and, in the SQLite implementation, its own transaction.
type Store interface {
	// AddLevel records a new durability level. Returns an error if name
	// is already in use.
	AddLevel(ctx context.Context, name string, frequencySeconds int, adapters []libreary.LevelAdapterRef, copiesPerAdapter int) error

	// GetLevel returns the level registered under name.
	GetLevel(ctx context.Context, name string) (*libreary.Level, error)

	// ListLevels returns every registered level.
	ListLevels(ctx context.Context) ([]libreary.Level, error)

	// DeleteLevel removes a level and strips its name out of every
	// Resource's levels list, repairing orphaned assignments.
	DeleteLevel(ctx context.Context, name string) error

	// InsertResource records a newly ingested resource. r.UUID must be
	// unique; r.Levels is stored comma-joined.
	InsertResource(ctx context.Context, r libreary.Resource) error

	// GetResource returns the resource registered under uuid, or
	// libreary.ResourceNotIngestedError if none exists.
	GetResource(ctx context.Context, uuid string) (*libreary.Resource, error)

	// ListResources returns every tracked resource.
	ListResources(ctx context.Context) ([]libreary.Resource, error)

	// DeleteResource removes a resource's row. It does not touch Copy
	// rows; callers must remove those first.
	DeleteResource(ctx context.Context, uuid string) error

	// UpdateResourceLevels replaces a resource's levels list.
	UpdateResourceLevels(ctx context.Context, uuid string, levels []string) error

	// UpdateResourceChecksum replaces a resource's recorded checksum,
	// used by Update to record new canonical contents.
	UpdateResourceChecksum(ctx context.Context, uuid, checksum string) error

	// UpdateResourceCanonicalLocator replaces a resource's recorded
	// canonical locator, used after RestoreCanonicalCopy writes the
	// canonical bytes out under a new locator.
	UpdateResourceCanonicalLocator(ctx context.Context, uuid, locator string) error

	// Search returns resources whose filename, canonical locator, uuid,
	// or description contain term as a substring.
	Search(ctx context.Context, term string) ([]libreary.Resource, error)

	// AddCopy records a new Copy row.
	AddCopy(ctx context.Context, c libreary.Copy) error

	// GetCopy returns the non-canonical copy of uuid held by adapterID,
	// or nil if none exists.
	GetCopy(ctx context.Context, uuid, adapterID string) (*libreary.Copy, error)

	// GetCanonicalCopy returns the canonical copy row for uuid, or nil
	// if none exists.
	GetCanonicalCopy(ctx context.Context, uuid string) (*libreary.Copy, error)

	// ListCopies returns every Copy row (canonical and non-canonical)
	// recorded for uuid. This is the "summarize_copies" operation.
	ListCopies(ctx context.Context, uuid string) ([]libreary.Copy, error)

	// DeleteCopy removes the Copy row for (uuid, adapterID, canonical).
	// Deleting a row that does not exist is a no-op success, matching
	// the idempotent-delete contract Adapters themselves follow.
	DeleteCopy(ctx context.Context, uuid, adapterID string, canonical bool) error

	// AddMetadataSchema records the user-defined metadata schema for
	// uuid.
	AddMetadataSchema(ctx context.Context, uuid string, schema []libreary.ObjectMetadataSchema) error

	// SetMetadata records one user-defined key/value pair for uuid,
	// overwriting any existing value for the same key.
	SetMetadata(ctx context.Context, uuid, key, value string) error

	// GetMetadata returns every user-defined key/value pair recorded
	// for uuid.
	GetMetadata(ctx context.Context, uuid string) ([]libreary.ObjectMetadataEntry, error)

	// DeleteMetadata removes every schema entry and key/value pair
	// recorded for uuid. Called as part of resource deletion.
	DeleteMetadata(ctx context.Context, uuid string) error

	// Close releases the underlying database handle.
	Close() error
}
