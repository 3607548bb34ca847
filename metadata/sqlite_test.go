package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libreary/libreary"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResourceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := libreary.Resource{
		UUID:             "11111111-1111-1111-1111-111111111111",
		Filename:         "grace.jpg",
		Checksum:         "6b4f683d08d5431b5f8d1c8f4071610d5cab758d",
		Levels:           []string{"low"},
		CanonicalLocator: "canonical_111_grace.jpg",
		Description:      "cat",
	}
	require.NoError(t, store.InsertResource(ctx, r))

	got, err := store.GetResource(ctx, r.UUID)
	require.NoError(t, err)
	require.Equal(t, r.Filename, got.Filename)
	require.Equal(t, r.Checksum, got.Checksum)
	require.Equal(t, []string{"low"}, got.Levels)

	_, err = store.GetResource(ctx, "does-not-exist")
	require.ErrorAs(t, err, &libreary.ResourceNotIngestedError{})

	require.NoError(t, store.UpdateResourceLevels(ctx, r.UUID, []string{"medium"}))
	got, err = store.GetResource(ctx, r.UUID)
	require.NoError(t, err)
	require.Equal(t, []string{"medium"}, got.Levels)

	require.NoError(t, store.UpdateResourceChecksum(ctx, r.UUID, "deadbeef"))
	got, err = store.GetResource(ctx, r.UUID)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", got.Checksum)

	require.NoError(t, store.DeleteResource(ctx, r.UUID))
	_, err = store.GetResource(ctx, r.UUID)
	require.ErrorAs(t, err, &libreary.ResourceNotIngestedError{})
}

func TestSearchMatchesAnyColumn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertResource(ctx, libreary.Resource{
		UUID: "u1", Filename: "grace.jpg", Checksum: "a", Levels: []string{"low"}, Description: "a cat photo",
	}))
	require.NoError(t, store.InsertResource(ctx, libreary.Resource{
		UUID: "u2", Filename: "report.pdf", Checksum: "b", Levels: []string{"low"}, Description: "quarterly report",
	}))

	found, err := store.Search(ctx, "cat")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "u1", found[0].UUID)

	found, err = store.Search(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "report.pdf", found[0].Filename)
}

func TestCopyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertResource(ctx, libreary.Resource{
		UUID: "u1", Filename: "f.txt", Checksum: "a", Levels: []string{"low"},
	}))

	require.NoError(t, store.AddCopy(ctx, libreary.Copy{
		ResourceUUID: "u1", AdapterID: "canon", Locator: "canonical_u1_f.txt", Checksum: "a", AdapterType: "local", Canonical: true,
	}))
	require.NoError(t, store.AddCopy(ctx, libreary.Copy{
		ResourceUUID: "u1", AdapterID: "local1", Locator: "u1_f.txt", Checksum: "a", AdapterType: "local", Canonical: false,
	}))

	canonical, err := store.GetCanonicalCopy(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, canonical)
	require.True(t, canonical.Canonical)

	copy1, err := store.GetCopy(ctx, "u1", "local1")
	require.NoError(t, err)
	require.NotNil(t, copy1)
	require.False(t, copy1.Canonical)

	all, err := store.ListCopies(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, store.DeleteCopy(ctx, "u1", "local1", false))
	missing, err := store.GetCopy(ctx, "u1", "local1")
	require.NoError(t, err)
	require.Nil(t, missing)

	// Deleting an already-absent copy is a no-op success.
	require.NoError(t, store.DeleteCopy(ctx, "u1", "local1", false))
}

func TestLevelDeleteRepairsOrphanedAssignments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddLevel(ctx, "low", 3600, []libreary.LevelAdapterRef{{ID: "local1", Type: "local"}}, 1))
	require.NoError(t, store.AddLevel(ctx, "medium", 600, []libreary.LevelAdapterRef{{ID: "s3main", Type: "s3"}}, 1))

	require.NoError(t, store.InsertResource(ctx, libreary.Resource{
		UUID: "u1", Filename: "f.txt", Checksum: "a", Levels: []string{"low", "medium"},
	}))

	require.NoError(t, store.DeleteLevel(ctx, "low"))

	_, err := store.GetLevel(ctx, "low")
	require.Error(t, err)

	got, err := store.GetResource(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"medium"}, got.Levels)
}

func TestObjectMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertResource(ctx, libreary.Resource{
		UUID: "u1", Filename: "f.txt", Checksum: "a", Levels: []string{"low"},
	}))

	require.NoError(t, store.AddMetadataSchema(ctx, "u1", []libreary.ObjectMetadataSchema{
		{FieldName: "author", FieldType: "string"},
	}))
	require.NoError(t, store.SetMetadata(ctx, "u1", "author", "grace"))
	require.NoError(t, store.SetMetadata(ctx, "u1", "author", "grace hopper"))

	entries, err := store.GetMetadata(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "grace hopper", entries[0].Value)

	require.NoError(t, store.DeleteMetadata(ctx, "u1"))
	entries, err = store.GetMetadata(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, entries)
}
