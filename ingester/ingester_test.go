package ingester

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter/local"
	"github.com/libreary/libreary/metadata"
)

func newFixture(t *testing.T) (*Ingester, *metadata.SQLiteStore, *local.Adapter, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := metadata.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	canonical := local.New("canon", filepath.Join(dir, "canonical"))
	dropbox := filepath.Join(dir, "dropbox")
	require.NoError(t, os.MkdirAll(dropbox, 0o777))

	return New(store, canonical), store, canonical, dropbox
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

func TestIngestRecordsResourceAfterCanonicalCopy(t *testing.T) {
	ctx := context.Background()
	ing, store, canonical, dropbox := newFixture(t)

	path := writeFile(t, dropbox, "grace.jpg", "a cat photo")

	objUUID, err := ing.Ingest(ctx, path, []string{"low"}, "cat", false, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, objUUID)

	r, err := store.GetResource(ctx, objUUID)
	require.NoError(t, err)
	require.Equal(t, "grace.jpg", r.Filename)
	require.Equal(t, []string{"low"}, r.Levels)
	require.NotEmpty(t, r.CanonicalLocator)

	checksum, err := canonical.ActualChecksum(ctx, objUUID, true)
	require.NoError(t, err)
	require.Equal(t, r.Checksum, checksum)
}

func TestIngestWithUserMetadata(t *testing.T) {
	ctx := context.Background()
	ing, store, _, dropbox := newFixture(t)

	path := writeFile(t, dropbox, "f.txt", "hello")
	objUUID, err := ing.Ingest(ctx, path, []string{"low"}, "", false,
		[]libreary.ObjectMetadataSchema{{FieldName: "author", FieldType: "string"}},
		map[string]string{"author": "grace"})
	require.NoError(t, err)

	entries, err := store.GetMetadata(ctx, objUUID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "author", entries[0].FieldName)
	require.Equal(t, "grace", entries[0].Value)
}

func TestIngestDeleteAfterStoreRemovesSourceFile(t *testing.T) {
	ctx := context.Background()
	ing, _, _, dropbox := newFixture(t)

	path := writeFile(t, dropbox, "f.txt", "hello")
	_, err := ing.Ingest(ctx, path, []string{"low"}, "", true, nil, nil)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestDeleteRemovesCanonicalAndResourceRow(t *testing.T) {
	ctx := context.Background()
	ing, store, canonical, dropbox := newFixture(t)

	path := writeFile(t, dropbox, "f.txt", "hello")
	objUUID, err := ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)

	require.NoError(t, ing.Delete(ctx, objUUID))

	_, err = store.GetResource(ctx, objUUID)
	require.ErrorAs(t, err, &libreary.ResourceNotIngestedError{})

	_, err = canonical.ActualChecksum(ctx, objUUID, true)
	require.ErrorAs(t, err, &libreary.NoCopyExistsError{})
}

func TestDeleteRefusesOnCanonicalChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	ing, store, _, dropbox := newFixture(t)

	path := writeFile(t, dropbox, "f.txt", "hello")
	objUUID, err := ing.Ingest(ctx, path, []string{"low"}, "", false, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateResourceChecksum(ctx, objUUID, "not-the-real-checksum"))

	err = ing.Delete(ctx, objUUID)
	require.ErrorAs(t, err, &libreary.ChecksumMismatchError{})

	// Nothing was removed: the row and canonical copy both survive.
	_, err = store.GetResource(ctx, objUUID)
	require.NoError(t, err)
}
