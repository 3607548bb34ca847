package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/configuration"

	_ "github.com/libreary/libreary/adapter/local"
)

// newScheduledTestArchive is newTestArchive's sibling for scheduling tests:
// it registers "fast" with frequencySeconds instead of newTestArchive's
// fixed 60s "low", so a test can drive the scheduler's ticker without
// waiting a minute.
func newScheduledTestArchive(t *testing.T, frequencySeconds int) (*Archive, string, string) {
	t.Helper()
	root := t.TempDir()
	dropbox := filepath.Join(root, "dropbox")
	output := filepath.Join(root, "output")
	canonDir := filepath.Join(root, "canon")
	local1Dir := filepath.Join(root, "local1")
	for _, d := range []string{dropbox, output, canonDir, local1Dir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	cfg := &configuration.Config{
		Metadata: configuration.MetadataConfig{DBFile: filepath.Join(root, "catalog.db"), ManagerType: "sqlite3"},
		Adapters: []configuration.AdapterConfig{
			{ID: "canon", Type: "local", Params: map[string]interface{}{"storage_dir": canonDir}},
			{ID: "local1", Type: "local", Params: map[string]interface{}{"storage_dir": local1Dir}},
		},
		Options:              configuration.OptionsConfig{DropboxDir: dropbox, OutputDir: output},
		CanonicalAdapter:     "canon",
		CanonicalAdapterType: "local",
	}

	arch, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { arch.Close() })

	require.NoError(t, arch.AddLevel(context.Background(), "fast", frequencySeconds,
		[]libreary.LevelAdapterRef{{ID: "local1", Type: "local"}}, 1))

	return arch, dropbox, local1Dir
}

func TestScheduleChecksRepairsCorruptionPeriodically(t *testing.T) {
	arch, dropbox, local1Dir := newScheduledTestArchive(t, 1)
	ctx := context.Background()

	src := filepath.Join(dropbox, "grace.txt")
	require.NoError(t, os.WriteFile(src, []byte("a good cat"), 0o644))

	objUUID, err := arch.Ingest(ctx, src, []string{"fast"}, "cat", false, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, objUUID)

	entries, err := os.ReadDir(local1Dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	corrupted := filepath.Join(local1Dir, entries[0].Name())
	require.NoError(t, os.WriteFile(corrupted, []byte("corrupted bytes"), 0o644))

	require.NoError(t, arch.ScheduleChecks(ctx, true))
	defer arch.StopChecks("fast")

	require.Eventually(t, func() bool {
		contents, err := os.ReadFile(corrupted)
		return err == nil && string(contents) == "a good cat"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleChecksSkipsNonPositiveFrequencyLevels(t *testing.T) {
	arch, _, _ := newScheduledTestArchive(t, 0)
	ctx := context.Background()

	require.NoError(t, arch.ScheduleChecks(ctx, false))

	// StopChecks must be a safe no-op here: ScheduleChecks should have
	// skipped "fast" entirely since its frequency is 0, so there is no
	// scheduled job backing it.
	arch.StopChecks("fast")
}
