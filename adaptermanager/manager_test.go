package adaptermanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter/local"
	"github.com/libreary/libreary/ingester"
	"github.com/libreary/libreary/metadata"
)

type fixture struct {
	mgr      *Manager
	store    *metadata.SQLiteStore
	ing      *ingester.Ingester
	dropbox  string
	output   string
	canonDir string
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

func localReg(id string, dir string) libreary.AdapterRegistration {
	return libreary.AdapterRegistration{ID: id, Type: "local", Params: map[string]interface{}{"storage_dir": dir}}
}

func TestIngestAndRetrieveLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	regs := []libreary.AdapterRegistration{localReg("canon", filepath.Join(dir, "canon"))}
	f := newFixtureWithDirs(t, dir, nil, "canon", regs)

	path := writeFile(t, f.dropbox, "grace.jpg", "a cat photo")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "cat", false, nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.mgr.ReloadLevelsAdapters(ctx))

	r, err := f.store.GetResource(ctx, objUUID)
	require.NoError(t, err)
	require.Equal(t, r.Checksum, mustHash(t, path))

	outPath, err := f.mgr.RetrieveByPreference(ctx, objUUID)
	require.NoError(t, err)
	require.Equal(t, r.Checksum, mustHash(t, outPath))
}

func TestCrossAdapterFanOut(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", filepath.Join(dir, "local1")),
		localReg("local2", filepath.Join(dir, "local2")),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low": {{ID: "local1", Type: "local"}, {ID: "local2", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.mgr.SendResourceToAdapters(ctx, objUUID, false))

	c1, err := f.store.GetCopy(ctx, objUUID, "local1")
	require.NoError(t, err)
	require.NotNil(t, c1)
	c2, err := f.store.GetCopy(ctx, objUUID, "local2")
	require.NoError(t, err)
	require.NotNil(t, c2)
	require.Equal(t, c1.Checksum, c2.Checksum)

	match, err := f.mgr.CompareCopies(ctx, objUUID, "local1", "local2", true)
	require.NoError(t, err)
	require.True(t, match)
}

func TestMismatchDetectionAndRepair(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local2Dir := filepath.Join(dir, "local2")
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", filepath.Join(dir, "local1")),
		localReg("local2", local2Dir),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low": {{ID: "local1", Type: "local"}, {ID: "local2", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.SendResourceToAdapters(ctx, objUUID, false))

	corruptAdapterStoredFile(t, local2Dir, objUUID)

	ok, err := f.mgr.VerifyAdapterMetadata(ctx, "local2", objUUID, true)
	require.NoError(t, err)
	require.True(t, ok, "VerifyAdapterMetadata should repair the corrupt copy and report success")

	ok, err = f.mgr.VerifyAdapterMetadata(ctx, "local2", objUUID, true)
	require.NoError(t, err)
	require.True(t, ok)

	r, err := f.store.GetResource(ctx, objUUID)
	require.NoError(t, err)
	a, ok2 := f.mgr.adapterByID("local2")
	require.True(t, ok2)
	actual, err := a.ActualChecksum(ctx, objUUID, false)
	require.NoError(t, err)
	require.Equal(t, r.Checksum, actual)
}

func TestCanonicalRepair(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	canonDir := filepath.Join(dir, "canon")
	regs := []libreary.AdapterRegistration{
		localReg("canon", canonDir),
		localReg("local1", filepath.Join(dir, "local1")),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low": {{ID: "local1", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.SendResourceToAdapters(ctx, objUUID, false))

	corruptAdapterStoredFile(t, canonDir, objUUID)

	require.NoError(t, f.mgr.RestoreCanonicalCopy(ctx, objUUID))

	outPath, err := f.mgr.RetrieveByPreference(ctx, objUUID)
	require.NoError(t, err)
	r, err := f.store.GetResource(ctx, objUUID)
	require.NoError(t, err)
	require.Equal(t, r.Checksum, mustHash(t, outPath))
}

func TestLevelChange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", filepath.Join(dir, "local1")),
		localReg("local2", filepath.Join(dir, "local2")),
		localReg("medium1", filepath.Join(dir, "medium1")),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low":    {{ID: "local1", Type: "local"}, {ID: "local2", Type: "local"}},
		"medium": {{ID: "medium1", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.SendResourceToAdapters(ctx, objUUID, false))

	require.NoError(t, f.mgr.ChangeResourceLevel(ctx, objUUID, []string{"medium"}))

	c1, err := f.store.GetCopy(ctx, objUUID, "local1")
	require.NoError(t, err)
	require.Nil(t, c1)
	c2, err := f.store.GetCopy(ctx, objUUID, "local2")
	require.NoError(t, err)
	require.Nil(t, c2)
	cm, err := f.store.GetCopy(ctx, objUUID, "medium1")
	require.NoError(t, err)
	require.NotNil(t, cm)

	canonical, err := f.store.GetCanonicalCopy(ctx, objUUID)
	require.NoError(t, err)
	require.NotNil(t, canonical)
}

func TestDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", filepath.Join(dir, "local1")),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low": {{ID: "local1", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.mgr.SendResourceToAdapters(ctx, objUUID, false))

	require.NoError(t, f.mgr.DeleteResourceFromAdapters(ctx, objUUID))
	require.NoError(t, f.ing.Delete(ctx, objUUID))

	_, err = f.store.GetResource(ctx, objUUID)
	require.ErrorAs(t, err, &libreary.ResourceNotIngestedError{})

	copies, err := f.store.ListCopies(ctx, objUUID)
	require.NoError(t, err)
	require.Empty(t, copies)
}

func TestVerifyAdapterRoundTrips(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", filepath.Join(dir, "local1")),
	}
	f := newFixtureWithDirs(t, dir, nil, "canon", regs)

	ok, err := f.mgr.VerifyAdapter(ctx, "local1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckSingleResourceSingleAdapterStoresMissingCopy(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local1Dir := filepath.Join(dir, "local1")
	regs := []libreary.AdapterRegistration{
		localReg("canon", filepath.Join(dir, "canon")),
		localReg("local1", local1Dir),
	}
	levels := map[string][]libreary.LevelAdapterRef{
		"low": {{ID: "local1", Type: "local"}},
	}
	f := newFixtureWithDirs(t, dir, levels, "canon", regs)

	path := writeFile(t, f.dropbox, "f.txt", "hello world")
	objUUID, err := f.ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)

	// No SendResourceToAdapters call: local1 has no copy yet.
	c, err := f.store.GetCopy(ctx, objUUID, "local1")
	require.NoError(t, err)
	require.Nil(t, c)

	ok, err := f.mgr.CheckSingleResourceSingleAdapter(ctx, objUUID, "local1")
	require.NoError(t, err)
	require.True(t, ok)

	c, err = f.store.GetCopy(ctx, objUUID, "local1")
	require.NoError(t, err)
	require.NotNil(t, c)
}

// newFixtureWithDirs builds the catalog, manager, and ingester under the
// caller's temp dir, so tests can reach into an adapter's storage
// directory directly to simulate bit rot.
func newFixtureWithDirs(t *testing.T, dir string, levels map[string][]libreary.LevelAdapterRef, canonicalID string, registrations []libreary.AdapterRegistration) *fixture {
	t.Helper()
	store, err := metadata.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for name, adapters := range levels {
		require.NoError(t, store.AddLevel(ctx, name, 3600, adapters, 1))
	}

	dropbox := filepath.Join(dir, "dropbox")
	output := filepath.Join(dir, "output")
	require.NoError(t, os.MkdirAll(dropbox, 0o777))
	require.NoError(t, os.MkdirAll(output, 0o777))

	var canonDir string
	for _, r := range registrations {
		if r.ID == canonicalID {
			canonDir = r.Params["storage_dir"].(string)
		}
	}
	canonical := local.New(canonicalID, canonDir)

	mgr, err := New(ctx, store, registrations, canonicalID, dropbox, output)
	require.NoError(t, err)

	return &fixture{
		mgr: mgr, store: store, ing: ingester.New(store, canonical),
		dropbox: dropbox, output: output, canonDir: canonDir,
	}
}

// corruptAdapterStoredFile overwrites the single file a local adapter
// has stored for resourceUUID with garbage bytes, simulating bit rot
// detected by a later verification pass.
func corruptAdapterStoredFile(t *testing.T, storageDir, resourceUUID string) {
	t.Helper()
	entries, err := os.ReadDir(storageDir)
	require.NoError(t, err)
	prefix := resourceUUID + "_"
	canonicalPrefix := "canonical_" + resourceUUID + "_"
	for _, e := range entries {
		name := e.Name()
		hasPrefix := len(name) >= len(prefix) && name[:len(prefix)] == prefix
		hasCanonicalPrefix := len(name) >= len(canonicalPrefix) && name[:len(canonicalPrefix)] == canonicalPrefix
		if hasPrefix || hasCanonicalPrefix {
			require.NoError(t, os.WriteFile(filepath.Join(storageDir, name), []byte("corrupted bytes"), 0o644))
			return
		}
	}
	t.Fatalf("no stored file found for resource %s in %s", resourceUUID, storageDir)
}

func mustHash(t *testing.T, path string) string {
	t.Helper()
	sum, err := hashFile(path)
	require.NoError(t, err)
	return sum
}
