package local

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/adapter/conformance"
)

func hashBytes(b []byte) string {
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:])
}

func writeTemp(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, contents, 0o644))
	return p
}

func TestStoreCanonicalThenRetrieve(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)

	locator, err := a.StoreCanonical(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)
	require.Contains(t, locator, "canonical_u1_grace.jpg")

	dest := filepath.Join(root, "out", "grace.jpg")
	require.NoError(t, a.Retrieve(ctx, "u1", dest, true))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, contents, got)
}

func TestStoreCanonicalRefusesDuplicate(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)

	_, err := a.StoreCanonical(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)

	_, err = a.StoreCanonical(ctx, "u1", src, sum, "grace.jpg")
	require.Error(t, err)
	var sfe libreary.StorageFailedError
	require.ErrorAs(t, err, &sfe)
}

func TestStoreChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	src := writeTemp(t, root, "grace.jpg", []byte("a cat photo"))

	_, err := a.Store(ctx, "u1", src, "0000000000000000000000000000000000000000", "grace.jpg")
	require.Error(t, err)
	var cme libreary.ChecksumMismatchError
	require.ErrorAs(t, err, &cme)
}

func TestStoreTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)

	loc1, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)

	loc2, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)
	require.Equal(t, loc1, loc2)
}

func TestStoreOverwritesCorruptNonCanonicalCopy(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	storeDir := filepath.Join(root, "store")
	a := New("local1", storeDir)

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)

	loc, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(loc, []byte("corrupted bytes"), 0o644))

	loc2, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)
	require.Equal(t, loc, loc2)

	got, err := os.ReadFile(loc2)
	require.NoError(t, err)
	require.Equal(t, contents, got)
}

func TestRetrieveNoCopyExists(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	err := a.Retrieve(ctx, "missing", filepath.Join(root, "out", "x.jpg"), false)
	require.Error(t, err)
	var nce libreary.NoCopyExistsError
	require.ErrorAs(t, err, &nce)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	require.NoError(t, a.Delete(ctx, "never-existed"))

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)
	_, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, "u1"))
	require.NoError(t, a.Delete(ctx, "u1"))

	err = a.Retrieve(ctx, "u1", filepath.Join(root, "out", "grace.jpg"), false)
	require.Error(t, err)
}

func TestActualChecksumMatchesStoredBytes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := New("local1", filepath.Join(root, "store"))

	contents := []byte("a cat photo")
	sum := hashBytes(contents)
	src := writeTemp(t, root, "grace.jpg", contents)

	_, err := a.Store(ctx, "u1", src, sum, "grace.jpg")
	require.NoError(t, err)

	actual, err := a.ActualChecksum(ctx, "u1", false)
	require.NoError(t, err)
	require.Equal(t, sum, actual)
}

func TestIDAndType(t *testing.T) {
	a := New("local1", t.TempDir())
	require.Equal(t, "local1", a.ID())
	require.Equal(t, "local", a.Type())
}

// TestConformance runs the shared adapter.Adapter contract suite
// against this backend, the same way
// registry/storage/driver/inmemory's driver_test.go runs
// testsuites.DriverSuite against the in-memory storage driver.
func TestConformance(t *testing.T) {
	suite.Run(t, conformance.NewSuite(func(context.Context) (adapter.Adapter, error) {
		return New("local-conformance", t.TempDir()), nil
	}, conformance.NeverSkip))
}
