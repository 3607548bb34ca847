// Package ingester turns a file sitting in the staging directory into a
// tracked Resource with a canonical copy, and handles the canonical-copy
// half of resource deletion.
package ingester

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/internal/dcontext"
	"github.com/libreary/libreary/internal/uuid"
	"github.com/libreary/libreary/metadata"
)

// Ingester accepts new files, computes their checksum, allocates a
// UUID, writes the canonical copy, and records the resource row.
type Ingester struct {
	store            metadata.Store
	canonicalAdapter adapter.Adapter
}

// New constructs an Ingester writing canonical copies to canonicalAdapter
// and recording resources in store.
func New(store metadata.Store, canonicalAdapter adapter.Adapter) *Ingester {
	return &Ingester{store: store, canonicalAdapter: canonicalAdapter}
}

// Ingest computes path's SHA-1, assigns a fresh UUIDv4, writes the
// canonical copy, and records the Resource row. The Resource row is
// written only after the canonical copy exists: if the canonical store
// fails, nothing is recorded; if recording fails after the canonical
// store succeeds, the canonical copy is an orphan to be reconciled by an
// out-of-band sweep, per spec.
func (i *Ingester) Ingest(ctx context.Context, path string, levels []string, description string, deleteAfterStore bool, schema []libreary.ObjectMetadataSchema, meta map[string]string) (string, error) {
	filename := filepath.Base(path)

	checksum, err := hashFile(path)
	if err != nil {
		return "", err
	}

	objUUID := uuid.NewV4String()

	dcontext.GetLogger(ctx).Debugf("ingester: storing canonical copy of %s as %s", filename, objUUID)
	locator, err := i.canonicalAdapter.StoreCanonical(ctx, objUUID, path, checksum, filename)
	if err != nil {
		return "", err
	}

	if err := i.store.AddCopy(ctx, libreary.Copy{
		ResourceUUID: objUUID,
		AdapterID:    i.canonicalAdapter.ID(),
		Locator:      locator,
		Checksum:     checksum,
		AdapterType:  i.canonicalAdapter.Type(),
		Canonical:    true,
	}); err != nil {
		return "", err
	}

	r := libreary.Resource{
		CanonicalLocator: locator,
		Levels:           levels,
		Filename:         filename,
		Checksum:         checksum,
		UUID:             objUUID,
		Description:      description,
	}
	if err := i.store.InsertResource(ctx, r); err != nil {
		return "", err
	}

	if len(schema) > 0 {
		if err := i.store.AddMetadataSchema(ctx, objUUID, schema); err != nil {
			return "", err
		}
	}
	for k, v := range meta {
		if err := i.store.SetMetadata(ctx, objUUID, k, v); err != nil {
			return "", err
		}
	}

	if deleteAfterStore {
		if err := os.Remove(path); err != nil {
			return "", err
		}
	}

	return objUUID, nil
}

// Delete verifies the canonical copy's actual checksum still matches
// the recorded Resource checksum, then removes the canonical copy and
// the Resource row. A mismatch surfaces ChecksumMismatchError instead
// of deleting anything: canonical drift is never auto-recovered by
// Delete, it requires explicit repair.
func (i *Ingester) Delete(ctx context.Context, objUUID string) error {
	r, err := i.store.GetResource(ctx, objUUID)
	if err != nil {
		return err
	}

	actual, err := i.canonicalAdapter.ActualChecksum(ctx, objUUID, true)
	if err != nil {
		return err
	}
	if actual != r.Checksum {
		return libreary.ChecksumMismatchError{
			ResourceUUID: objUUID,
			AdapterID:    i.canonicalAdapter.ID(),
			Expected:     r.Checksum,
			Actual:       actual,
		}
	}

	if err := i.canonicalAdapter.DeleteCanonical(ctx, objUUID); err != nil {
		return err
	}
	if err := i.store.DeleteCopy(ctx, objUUID, i.canonicalAdapter.ID(), true); err != nil {
		return err
	}
	if err := i.store.DeleteMetadata(ctx, objUUID); err != nil {
		return err
	}
	return i.store.DeleteResource(ctx, objUUID)
}

// ListResources returns every tracked resource, trusting the metadata
// catalog.
func (i *Ingester) ListResources(ctx context.Context) ([]libreary.Resource, error) {
	return i.store.ListResources(ctx)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
