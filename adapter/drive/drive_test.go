package drive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/adapter/conformance"
)

// Exercising this adapter against real Drive requires service account
// credentials; these tests only run when pointed at a real key file, the
// same opt-in pattern the teacher's own gdrive suite uses.
func skipReason() string {
	if os.Getenv("LIBREARY_DRIVE_TEST_CREDENTIALS_FILE") == "" {
		return "set LIBREARY_DRIVE_TEST_CREDENTIALS_FILE to run drive adapter integration tests"
	}
	return ""
}

func skipWithoutCredentials(t *testing.T) string {
	t.Helper()
	if reason := skipReason(); reason != "" {
		t.Skip(reason)
	}
	return os.Getenv("LIBREARY_DRIVE_TEST_CREDENTIALS_FILE")
}

func newTestAdapter(ctx context.Context, id string) (*Adapter, error) {
	return FromParameters(ctx, id, map[string]interface{}{
		"credentials_file": os.Getenv("LIBREARY_DRIVE_TEST_CREDENTIALS_FILE"),
		"folder_path":      "libreary-adapter-tests",
	})
}

// TestConformance runs the shared adapter.Adapter contract suite
// against a real Drive folder, behind the same credential skip check
// as TestStoreRetrieveDeleteRoundTrip.
func TestConformance(t *testing.T) {
	suite.Run(t, conformance.NewSuite(func(ctx context.Context) (adapter.Adapter, error) {
		return newTestAdapter(ctx, "drive-conformance")
	}, skipReason))
}

func TestStoreRetrieveDeleteRoundTrip(t *testing.T) {
	credentialsFile := skipWithoutCredentials(t)
	ctx := context.Background()

	a, err := FromParameters(ctx, "drive-test", map[string]interface{}{
		"credentials_file": credentialsFile,
		"folder_path":      "libreary-adapter-tests",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello drive"), 0o644))

	checksum := "b06ae8c7456d396be0dcc7785afeadf00dce82d6"
	resourceUUID := "drive-test-resource"

	locator, err := a.Store(ctx, resourceUUID, src, checksum, "f.txt")
	require.NoError(t, err)
	require.NotEmpty(t, locator)
	defer a.Delete(ctx, resourceUUID)

	dest := filepath.Join(dir, "out.txt")
	require.NoError(t, a.Retrieve(ctx, resourceUUID, dest, false))

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello drive", string(contents))

	require.NoError(t, a.Delete(ctx, resourceUUID))
	require.NoError(t, a.Delete(ctx, resourceUUID)) // idempotent
}
