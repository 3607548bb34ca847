package adaptermanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/internal/dcontext"
	"github.com/libreary/libreary/internal/uuid"
)

// RetrieveByPreference fetches a resource, preferring its canonical
// adapter. If the canonical copy is corrupt, it attempts to restore the
// canonical copy and falls through to every other adapter its levels
// require, in level order, restoring each one it finds corrupt along
// the way. Returns the path the resource was written to.
func (m *Manager) RetrieveByPreference(ctx context.Context, resourceUUID string) (string, error) {
	defer m.timer("retrieve_by_preference_duration_seconds")()

	destPath := filepath.Join(m.outputDir, resourceUUID)

	canonical := m.CanonicalAdapter()
	err := canonical.Retrieve(ctx, resourceUUID, destPath, true)
	if err == nil {
		return destPath, nil
	}
	var mismatch libreary.ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		return "", err
	}
	dcontext.GetLogger(ctx).Errorf("adaptermanager: canonical copy of %s is corrupt, restoring", resourceUUID)
	if restoreErr := m.RestoreCanonicalCopy(ctx, resourceUUID); restoreErr != nil {
		dcontext.GetLogger(ctx).Errorf("adaptermanager: restoring canonical copy of %s failed: %v", resourceUUID, restoreErr)
	} else if err := canonical.Retrieve(ctx, resourceUUID, destPath, true); err == nil {
		return destPath, nil
	}

	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return "", err
	}
	adapters, err := m.adaptersForLevels(ctx, r.Levels)
	if err != nil {
		return "", err
	}
	for _, a := range adapters {
		if a.ID() == m.canonicalID {
			continue
		}
		err := a.Retrieve(ctx, resourceUUID, destPath, false)
		if err == nil {
			return destPath, nil
		}
		if errors.As(err, &mismatch) {
			dcontext.GetLogger(ctx).Errorf("adaptermanager: copy of %s on %s is corrupt, restoring", resourceUUID, a.ID())
			if restoreErr := m.RestoreFromCanonicalCopy(ctx, a.ID(), resourceUUID); restoreErr != nil {
				continue
			}
			if err := a.Retrieve(ctx, resourceUUID, destPath, false); err == nil {
				return destPath, nil
			}
		}
	}

	return "", libreary.RestorationFailedError{ResourceUUID: resourceUUID, Reason: "no adapter holds a recoverable copy"}
}

// CheckSingleResourceSingleAdapter checks one adapter's recorded copy of
// a resource against the resource's canonical checksum, trusting the
// metadata catalog's recorded values rather than rehashing adapter
// bytes. A mismatched copy is repaired from the canonical copy; a
// missing copy is stored fresh. Returns whether the adapter ends up
// holding a good copy.
func (m *Manager) CheckSingleResourceSingleAdapter(ctx context.Context, resourceUUID, adapterID string) (bool, error) {
	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return false, err
	}

	existingCopy, err := m.store.GetCopy(ctx, resourceUUID, adapterID)
	if err != nil {
		return false, err
	}
	if existingCopy == nil {
		a, ok := m.adapterByID(adapterID)
		if !ok {
			return false, nil
		}
		expectedPath := filepath.Join(m.dropboxDir, r.Filename)
		if !fileMatchesChecksum(expectedPath, r.Checksum) {
			if err := m.CanonicalAdapter().Retrieve(ctx, resourceUUID, expectedPath, true); err != nil {
				return false, err
			}
		}
		if _, err := storeOnAdapter(ctx, m.store, a, resourceUUID, expectedPath, r.Checksum, r.Filename); err != nil {
			dcontext.GetLogger(ctx).Errorf("adaptermanager: could not store %s on %s: %v", resourceUUID, adapterID, err)
			return false, nil
		}
		return true, nil
	}

	if existingCopy.Checksum == r.Checksum {
		return true, nil
	}

	dcontext.GetLogger(ctx).Debugf("adaptermanager: repairing %s on %s from canonical copy", resourceUUID, adapterID)
	if err := m.RestoreFromCanonicalCopy(ctx, adapterID, resourceUUID); err != nil {
		var restoreErr libreary.RestorationFailedError
		if errors.As(err, &restoreErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// VerifyAdapterMetadata is the expensive counterpart to
// CheckSingleResourceSingleAdapter: it actually retrieves and rehashes
// the adapter's bytes instead of trusting the recorded copy checksum.
// If deleteAfterCheck is true, the retrieved temp file is removed once
// checked.
func (m *Manager) VerifyAdapterMetadata(ctx context.Context, adapterID, resourceUUID string, deleteAfterCheck bool) (bool, error) {
	a, ok := m.adapterByID(adapterID)
	if !ok {
		return false, libreary.AdapterCreationFailedError{AdapterID: adapterID, Reason: "adapter not constructed"}
	}
	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return false, err
	}

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf("%s_%s_verify", resourceUUID, adapterID))
	if err := a.Retrieve(ctx, resourceUUID, tempPath, false); err != nil {
		return false, err
	}
	if deleteAfterCheck {
		defer os.Remove(tempPath)
	}

	actual, err := hashFile(tempPath)
	if err != nil {
		return false, err
	}

	if actual == r.Checksum {
		return true, nil
	}

	dcontext.GetLogger(ctx).Debugf("adaptermanager: restoring %s on %s after metadata verification failure", resourceUUID, adapterID)
	if err := m.RestoreFromCanonicalCopy(ctx, adapterID, resourceUUID); err != nil {
		var restoreErr libreary.RestorationFailedError
		if errors.As(err, &restoreErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RestoreCanonicalCopy repairs a corrupt canonical copy: it deletes the
// broken canonical bytes, searches the resource's non-canonical copies
// for the first one that actually retrieves cleanly, and re-stores that
// recovered content as the new canonical copy under the same UUID.
func (m *Manager) RestoreCanonicalCopy(ctx context.Context, resourceUUID string) error {
	defer m.timer("restore_canonical_duration_seconds")()

	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return err
	}

	if err := m.CanonicalAdapter().DeleteCanonical(ctx, resourceUUID); err != nil {
		return err
	}
	if err := m.store.DeleteCopy(ctx, resourceUUID, m.canonicalID, true); err != nil {
		return err
	}

	adapters, err := m.adaptersForLevels(ctx, r.Levels)
	if err != nil {
		return err
	}

	recoveredPath := filepath.Join(m.outputDir, fmt.Sprintf("%s_%s_canonical_restore", resourceUUID, uuid.NewV4String()))
	restored := false
	for _, a := range adapters {
		if a.ID() == m.canonicalID {
			continue
		}
		dcontext.GetLogger(ctx).Debugf("adaptermanager: trying to restore %s from adapter %s", resourceUUID, a.ID())
		if err := a.Retrieve(ctx, resourceUUID, recoveredPath, false); err != nil {
			var notIngested libreary.ResourceNotIngestedError
			var mismatch libreary.ChecksumMismatchError
			var noCopy libreary.NoCopyExistsError
			if errors.As(err, &notIngested) || errors.As(err, &mismatch) || errors.As(err, &noCopy) {
				continue
			}
			return err
		}
		restored = true
		break
	}
	if !restored {
		dcontext.GetLogger(ctx).Errorf("adaptermanager: failed to restore canonical copy of %s", resourceUUID)
		return libreary.RestorationFailedError{ResourceUUID: resourceUUID, Reason: "no non-canonical copy could be recovered"}
	}
	defer os.Remove(recoveredPath)

	locator, err := m.CanonicalAdapter().StoreCanonical(ctx, resourceUUID, recoveredPath, r.Checksum, r.Filename)
	if err != nil {
		return err
	}
	if err := m.store.AddCopy(ctx, libreary.Copy{
		ResourceUUID: resourceUUID, AdapterID: m.canonicalID, Locator: locator,
		Checksum: r.Checksum, AdapterType: m.CanonicalAdapter().Type(), Canonical: true,
	}); err != nil {
		return err
	}
	return m.store.UpdateResourceCanonicalLocator(ctx, resourceUUID, locator)
}

// RestoreFromCanonicalCopy repairs one adapter's corrupt or missing
// non-canonical copy by fetching the canonical bytes and re-storing
// them on that adapter, overwriting whatever (if anything) is there.
// An adapter whose CanOverwrite reports false has its existing copy
// and Copy row deleted first.
func (m *Manager) RestoreFromCanonicalCopy(ctx context.Context, adapterID, resourceUUID string) error {
	dcontext.GetLogger(ctx).Debugf("adaptermanager: restoring %s on adapter %s from canonical copy", resourceUUID, adapterID)

	a, ok := m.adapterByID(adapterID)
	if !ok {
		return libreary.AdapterCreationFailedError{AdapterID: adapterID, Reason: "adapter not constructed"}
	}
	r, err := m.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return err
	}

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf("%s_%s_repair", resourceUUID, uuid.NewV4String()))
	if err := m.CanonicalAdapter().Retrieve(ctx, resourceUUID, tempPath, true); err != nil {
		return libreary.RestorationFailedError{ResourceUUID: resourceUUID, Reason: "canonical copy could not be retrieved: " + err.Error()}
	}
	defer os.Remove(tempPath)

	if !a.CanOverwrite() {
		if err := a.Delete(ctx, resourceUUID); err != nil {
			return libreary.RestorationFailedError{ResourceUUID: resourceUUID, Reason: "delete on " + adapterID + " failed: " + err.Error()}
		}
		if err := m.store.DeleteCopy(ctx, resourceUUID, adapterID, false); err != nil {
			return err
		}
	}

	if _, err := storeOnAdapter(ctx, m.store, a, resourceUUID, tempPath, r.Checksum, r.Filename); err != nil {
		return libreary.RestorationFailedError{ResourceUUID: resourceUUID, Reason: "store on " + adapterID + " failed: " + err.Error()}
	}
	return nil
}

// CompareCopies reports whether two adapters' copies of a resource
// match. A shallow compare trusts the metadata catalog's recorded
// checksums; a deep compare rehashes both adapters' actual bytes.
func (m *Manager) CompareCopies(ctx context.Context, resourceUUID, adapterID1, adapterID2 string, deep bool) (bool, error) {
	if !deep {
		c1, err := m.copyOrCanonical(ctx, resourceUUID, adapterID1)
		if err != nil {
			return false, err
		}
		c2, err := m.copyOrCanonical(ctx, resourceUUID, adapterID2)
		if err != nil {
			return false, err
		}
		if c1 == nil || c2 == nil {
			return false, libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: adapterID1}
		}
		return c1.Checksum == c2.Checksum, nil
	}

	a1, ok := m.adapterByID(adapterID1)
	if !ok {
		return false, libreary.AdapterCreationFailedError{AdapterID: adapterID1, Reason: "adapter not constructed"}
	}
	a2, ok := m.adapterByID(adapterID2)
	if !ok {
		return false, libreary.AdapterCreationFailedError{AdapterID: adapterID2, Reason: "adapter not constructed"}
	}

	sum1, err := a1.ActualChecksum(ctx, resourceUUID, adapterID1 == m.canonicalID)
	if err != nil {
		return false, err
	}
	sum2, err := a2.ActualChecksum(ctx, resourceUUID, adapterID2 == m.canonicalID)
	if err != nil {
		return false, err
	}
	return sum1 == sum2, nil
}

func (m *Manager) copyOrCanonical(ctx context.Context, resourceUUID, adapterID string) (*libreary.Copy, error) {
	if adapterID == m.canonicalID {
		return m.store.GetCanonicalCopy(ctx, resourceUUID)
	}
	return m.store.GetCopy(ctx, resourceUUID, adapterID)
}

// VerifyCopy compares adapterID's copy of a resource against the
// canonical copy. See CompareCopies for the shallow/deep distinction.
func (m *Manager) VerifyCopy(ctx context.Context, resourceUUID, adapterID string, deep bool) (bool, error) {
	return m.CompareCopies(ctx, resourceUUID, adapterID, m.canonicalID, deep)
}
