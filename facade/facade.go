// Package facade provides Archive, the single top-level entry point
// binding the metadata catalog, ingester, and adapter manager together
// into the user-facing operations: ingest, retrieve, delete, update,
// search, inspect, and check.
package facade

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adaptermanager"
	"github.com/libreary/libreary/configuration"
	"github.com/libreary/libreary/health"
	"github.com/libreary/libreary/health/checks"
	"github.com/libreary/libreary/ingester"
	"github.com/libreary/libreary/internal/dcontext"
	"github.com/libreary/libreary/internal/scheduler"
	"github.com/libreary/libreary/metadata"
)

// Archive is the orchestrator a caller (the CLI, a long-running
// service, the scheduler) drives. It owns no business logic of its
// own beyond delegating to the Ingester, Adapter Manager, and Metadata
// Store it wires together.
type Archive struct {
	store      metadata.Store
	ing        *ingester.Ingester
	mgr        *adaptermanager.Manager
	sched      *scheduler.Scheduler
	dropboxDir string
	outputDir  string
}

// New opens the configured metadata store, constructs every configured
// adapter, and returns a ready-to-use Archive.
func New(ctx context.Context, cfg *configuration.Config) (*Archive, error) {
	store, err := metadata.Open(cfg.Metadata.DBFile)
	if err != nil {
		return nil, err
	}

	mgr, err := adaptermanager.New(ctx, store, cfg.AdapterRegistrations(), cfg.CanonicalAdapter, cfg.Options.DropboxDir, cfg.Options.OutputDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	ing := ingester.New(store, mgr.CanonicalAdapter())

	registerHealthChecks(cfg, store)

	return &Archive{
		store:      store,
		ing:        ing,
		mgr:        mgr,
		sched:      scheduler.New(),
		dropboxDir: cfg.Options.DropboxDir,
		outputDir:  cfg.Options.OutputDir,
	}, nil
}

// registerHealthChecks wires the archive's dependencies into the
// health package's default registry, using the configured paths as
// check names so distinct Archives (e.g. in tests) never collide.
func registerHealthChecks(cfg *configuration.Config, store *metadata.SQLiteStore) {
	health.Register("metadata-db:"+cfg.Metadata.DBFile, health.CheckFunc(store.Ping))
	health.Register("dropbox-dir:"+cfg.Options.DropboxDir, checks.DirWritableChecker(cfg.Options.DropboxDir))
	health.Register("output-dir:"+cfg.Options.OutputDir, checks.DirWritableChecker(cfg.Options.OutputDir))
}

// Close stops any scheduled checks and releases the underlying
// metadata store handle.
func (a *Archive) Close() error {
	a.sched.Stop()
	return a.store.Close()
}

// Ingest writes path's canonical copy and replicates it out to every
// adapter the given levels require.
func (a *Archive) Ingest(ctx context.Context, path string, levels []string, description string, deleteAfter bool, schema []libreary.ObjectMetadataSchema, meta map[string]string) (string, error) {
	objUUID, err := a.ing.Ingest(ctx, path, levels, description, deleteAfter, schema, meta)
	if err != nil {
		return "", err
	}
	dcontext.GetLogger(ctx).Debugf("facade: ingested %s as %s, replicating to levels %v", path, objUUID, levels)
	if err := a.mgr.SendResourceToAdapters(ctx, objUUID, false); err != nil {
		return objUUID, err
	}
	return objUUID, nil
}

// Retrieve fetches a resource's bytes, preferring its canonical
// adapter, and returns the path they were written to.
func (a *Archive) Retrieve(ctx context.Context, resourceUUID string) (string, error) {
	return a.mgr.RetrieveByPreference(ctx, resourceUUID)
}

// Delete removes every copy of a resource, canonical and otherwise,
// and its catalog rows.
func (a *Archive) Delete(ctx context.Context, resourceUUID string) error {
	if err := a.mgr.DeleteResourceFromAdapters(ctx, resourceUUID); err != nil {
		return err
	}
	return a.ing.Delete(ctx, resourceUUID)
}

// Update replaces a resource's canonical bytes with the contents of
// path, recomputes its checksum, and re-replicates it to every adapter
// its levels require. The old canonical copy is removed first since
// StoreCanonical refuses to overwrite an existing canonical copy.
func (a *Archive) Update(ctx context.Context, resourceUUID, path string) error {
	r, err := a.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return err
	}

	checksum, err := hashFile(path)
	if err != nil {
		return err
	}

	canonical := a.mgr.CanonicalAdapter()
	if err := canonical.DeleteCanonical(ctx, resourceUUID); err != nil {
		return err
	}
	if err := a.store.DeleteCopy(ctx, resourceUUID, canonical.ID(), true); err != nil {
		return err
	}

	locator, err := canonical.StoreCanonical(ctx, resourceUUID, path, checksum, r.Filename)
	if err != nil {
		return err
	}
	if err := a.store.AddCopy(ctx, libreary.Copy{
		ResourceUUID: resourceUUID,
		AdapterID:    canonical.ID(),
		Locator:      locator,
		Checksum:     checksum,
		AdapterType:  canonical.Type(),
		Canonical:    true,
	}); err != nil {
		return err
	}
	if err := a.store.UpdateResourceChecksum(ctx, resourceUUID, checksum); err != nil {
		return err
	}
	if err := a.store.UpdateResourceCanonicalLocator(ctx, resourceUUID, locator); err != nil {
		return err
	}

	dropboxPath := filepath.Join(a.dropboxDir, r.Filename)
	if err := copyFile(path, dropboxPath); err != nil {
		return err
	}
	return a.mgr.SendResourceToAdapters(ctx, resourceUUID, false)
}

// Search returns resources whose filename, locator, uuid, or
// description contain term.
func (a *Archive) Search(ctx context.Context, term string) ([]libreary.Resource, error) {
	return a.store.Search(ctx, term)
}

// List returns every tracked resource.
func (a *Archive) List(ctx context.Context) ([]libreary.Resource, error) {
	return a.store.ListResources(ctx)
}

// AddLevel registers a new durability level and reloads the adapter
// manager's caches so it takes effect immediately.
func (a *Archive) AddLevel(ctx context.Context, name string, frequencySeconds int, adapters []libreary.LevelAdapterRef, copiesPerAdapter int) error {
	if err := a.store.AddLevel(ctx, name, frequencySeconds, adapters, copiesPerAdapter); err != nil {
		return err
	}
	return a.mgr.ReloadLevelsAdapters(ctx)
}

// DeleteLevel removes a durability level, stripping it from every
// resource's levels list, and reloads the adapter manager's caches.
func (a *Archive) DeleteLevel(ctx context.Context, name string) error {
	if err := a.store.DeleteLevel(ctx, name); err != nil {
		return err
	}
	return a.mgr.ReloadLevelsAdapters(ctx)
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

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
