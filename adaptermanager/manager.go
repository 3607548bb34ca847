// Package adaptermanager owns every interaction with Adapters other
// than initial ingestion: constructing them from configuration,
// replicating a resource out to the adapters its levels require,
// removing non-canonical copies, and re-homing a resource onto a new
// set of levels.
package adaptermanager

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/adapter/factory"
	"github.com/libreary/libreary/internal/dcontext"
	"github.com/libreary/libreary/metadata"
	"github.com/libreary/libreary/metrics"
)

// Manager tracks the pool of constructed Adapters this archive
// replicates resources onto, rebuilt from a static list of
// registrations any time levels or adapter configuration changes.
type Manager struct {
	store       metadata.Store
	canonicalID string
	dropboxDir  string
	outputDir   string

	mu            sync.RWMutex
	registrations map[string]libreary.AdapterRegistration
	adapters      map[string]adapter.Adapter
}

// New constructs a Manager and performs its initial adapter
// construction. canonicalID must name one of registrations.
func New(ctx context.Context, store metadata.Store, registrations []libreary.AdapterRegistration, canonicalID, dropboxDir, outputDir string) (*Manager, error) {
	regs := make(map[string]libreary.AdapterRegistration, len(registrations))
	for _, r := range registrations {
		regs[r.ID] = r
	}
	if _, ok := regs[canonicalID]; !ok {
		return nil, libreary.ConfigurationError{Field: "canonical_adapter", Reason: fmt.Sprintf("no adapter registered with id %q", canonicalID)}
	}

	m := &Manager{
		store:         store,
		canonicalID:   canonicalID,
		dropboxDir:    dropboxDir,
		outputDir:     outputDir,
		registrations: regs,
	}
	if err := m.ReloadLevelsAdapters(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// ReloadLevelsAdapters reconstructs every registered adapter. Run this
// any time adapter configuration changes; most callers only need it on
// construction, but a long-running process should call it again if, say,
// credentials backing an adapter have been rotated.
func (m *Manager) ReloadLevelsAdapters(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	adapters := make(map[string]adapter.Adapter, len(m.registrations))
	for id, reg := range m.registrations {
		a, err := factory.Create(ctx, reg.Type, reg.ID, reg.Params)
		if err != nil {
			return err
		}
		adapters[id] = a
		dcontext.GetLogger(ctx).Debugf("adaptermanager: created adapter %s of type %s", id, reg.Type)
	}
	m.adapters = adapters
	return nil
}

// SetAdditionalAdapter manually registers and constructs one adapter,
// without requiring a full ReloadLevelsAdapters pass.
func (m *Manager) SetAdditionalAdapter(ctx context.Context, reg libreary.AdapterRegistration) (adapter.Adapter, error) {
	a, err := factory.Create(ctx, reg.Type, reg.ID, reg.Params)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.registrations[reg.ID] = reg
	m.adapters[reg.ID] = a
	m.mu.Unlock()
	dcontext.GetLogger(ctx).Debugf("adaptermanager: manually added adapter %s of type %s", reg.ID, reg.Type)
	return a, nil
}

func (m *Manager) adapterByID(id string) (adapter.Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[id]
	return a, ok
}

// CanonicalAdapter returns the adapter holding every resource's
// canonical copy.
func (m *Manager) CanonicalAdapter() adapter.Adapter {
	a, _ := m.adapterByID(m.canonicalID)
	return a
}

func (m *Manager) adaptersForLevel(ctx context.Context, levelName string) ([]adapter.Adapter, error) {
	lvl, err := m.store.GetLevel(ctx, levelName)
	if err != nil {
		return nil, err
	}
	out := make([]adapter.Adapter, 0, len(lvl.Adapters))
	for _, ref := range lvl.Adapters {
		a, ok := m.adapterByID(ref.ID)
		if !ok {
			return nil, libreary.AdapterCreationFailedError{AdapterID: ref.ID, AdapterType: ref.Type, Reason: "adapter not constructed; call ReloadLevelsAdapters"}
		}
		out = append(out, a)
	}
	return out, nil
}

// adaptersForLevels merges the adapter sets of every named level,
// de-duplicating by adapter ID so a resource assigned to several
// overlapping levels is never stored twice on the same adapter.
func (m *Manager) adaptersForLevels(ctx context.Context, levels []string) ([]adapter.Adapter, error) {
	seen := make(map[string]bool)
	var out []adapter.Adapter
	for _, level := range levels {
		adapters, err := m.adaptersForLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		for _, a := range adapters {
			if seen[a.ID()] {
				continue
			}
			seen[a.ID()] = true
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Manager) timer(name string) func() {
	start := time.Now()
	t := metrics.ManagerNamespace.NewTimer(name, "")
	return func() { t.UpdateSince(start) }
}

// storeOnAdapter writes sourcePath to a, then reconciles the Copy row:
// inserts one if none existed, or replaces it if the adapter's locator
// or checksum changed (a repair overwrite).
func storeOnAdapter(ctx context.Context, store metadata.Store, a adapter.Adapter, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	locator, err := a.Store(ctx, resourceUUID, sourcePath, checksum, filename)
	if err != nil {
		return "", err
	}
	existing, err := store.GetCopy(ctx, resourceUUID, a.ID())
	if err != nil {
		return "", err
	}
	if existing == nil {
		err = store.AddCopy(ctx, libreary.Copy{
			ResourceUUID: resourceUUID, AdapterID: a.ID(), Locator: locator,
			Checksum: checksum, AdapterType: a.Type(), Canonical: false,
		})
	} else if existing.Locator != locator || existing.Checksum != checksum {
		if err := store.DeleteCopy(ctx, resourceUUID, a.ID(), false); err != nil {
			return "", err
		}
		err = store.AddCopy(ctx, libreary.Copy{
			ResourceUUID: resourceUUID, AdapterID: a.ID(), Locator: locator,
			Checksum: checksum, AdapterType: a.Type(), Canonical: false,
		})
	}
	return locator, err
}

// SendResourceToAdapters replicates an already-ingested resource onto
// every adapter its assigned levels require. If the file is no longer
// sitting in the dropbox directory (or has drifted from the recorded
// checksum), it's fetched back from the canonical adapter first.
func (m *Manager) SendResourceToAdapters(ctx context.Context, resourceUUID string, deleteAfterSend bool) error {
	defer m.timer("send_resource_duration_seconds")()

	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return err
	}

	expectedPath := filepath.Join(m.dropboxDir, r.Filename)
	if !fileMatchesChecksum(expectedPath, r.Checksum) {
		dcontext.GetLogger(ctx).Debugf("adaptermanager: %s not found in dropbox, fetching from canonical adapter", resourceUUID)
		if err := m.CanonicalAdapter().Retrieve(ctx, resourceUUID, expectedPath, true); err != nil {
			return err
		}
	}

	adapters, err := m.adaptersForLevels(ctx, r.Levels)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if a.ID() == m.canonicalID {
			continue
		}
		dcontext.GetLogger(ctx).Debugf("adaptermanager: storing %s to adapter %s", resourceUUID, a.ID())
		if _, err := storeOnAdapter(ctx, m.store, a, resourceUUID, expectedPath, r.Checksum, r.Filename); err != nil {
			return err
		}
	}

	if deleteAfterSend {
		return os.Remove(expectedPath)
	}
	return nil
}

// DeleteResourceFromAdapters removes every non-canonical copy of a
// resource. The canonical copy is left untouched.
func (m *Manager) DeleteResourceFromAdapters(ctx context.Context, resourceUUID string) error {
	defer m.timer("delete_resource_duration_seconds")()

	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return err
	}

	adapters, err := m.adaptersForLevels(ctx, r.Levels)
	if err != nil {
		return err
	}
	for _, a := range adapters {
		if a.ID() == m.canonicalID {
			continue
		}
		dcontext.GetLogger(ctx).Debugf("adaptermanager: deleting %s from adapter %s", resourceUUID, a.ID())
		if err := a.Delete(ctx, resourceUUID); err != nil {
			return err
		}
		if err := m.store.DeleteCopy(ctx, resourceUUID, a.ID(), false); err != nil {
			return err
		}
	}
	return nil
}

// ChangeResourceLevel removes every non-canonical copy of a resource,
// reassigns its levels, and replicates it back out under the new set.
func (m *Manager) ChangeResourceLevel(ctx context.Context, resourceUUID string, newLevels []string) error {
	if err := m.DeleteResourceFromAdapters(ctx, resourceUUID); err != nil {
		return err
	}
	if err := m.store.UpdateResourceLevels(ctx, resourceUUID, newLevels); err != nil {
		return err
	}
	if err := m.ReloadLevelsAdapters(ctx); err != nil {
		return err
	}
	return m.SendResourceToAdapters(ctx, resourceUUID, false)
}

// VerifyAdapter round-trips a throwaway resource through adapterID's
// canonical store, retrieve, and delete paths, confirming the checksum
// survives the trip. It does not touch the metadata catalog.
func (m *Manager) VerifyAdapter(ctx context.Context, adapterID string) (bool, error) {
	a, ok := m.adapterByID(adapterID)
	if !ok {
		return false, libreary.AdapterCreationFailedError{AdapterID: adapterID, Reason: "adapter not constructed"}
	}

	testUUID := "libreary_adapter_verification_test"
	dropboxPath := filepath.Join(m.dropboxDir, "libreary_test_file.txt")
	payload := randomString(500)
	if err := os.WriteFile(dropboxPath, []byte(payload), 0o644); err != nil {
		return false, err
	}
	defer os.Remove(dropboxPath)

	checksum, err := hashFile(dropboxPath)
	if err != nil {
		return false, err
	}

	locator, err := a.StoreCanonical(ctx, testUUID, dropboxPath, checksum, "libreary_test_resource.txt")
	if err != nil {
		return false, err
	}
	defer a.DeleteCanonical(ctx, testUUID)
	_ = locator

	outPath := filepath.Join(m.outputDir, "libreary_test_file_retrieved.txt")
	if err := a.Retrieve(ctx, testUUID, outPath, true); err != nil {
		return false, nil
	}
	defer os.Remove(outPath)

	actual, err := hashFile(outPath)
	if err != nil {
		return false, err
	}

	ok = actual == checksum
	dcontext.GetLogger(ctx).Debugf("adaptermanager: verified adapter %s: %v", adapterID, ok)
	return ok, nil
}

func fileMatchesChecksum(path, checksum string) bool {
	actual, err := hashFile(path)
	return err == nil && actual == checksum
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

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
