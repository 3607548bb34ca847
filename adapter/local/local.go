// Package local implements an adapter.Adapter backed by a local
// filesystem directory.
package local

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/adapter/base"
	"github.com/libreary/libreary/adapter/factory"
	"github.com/libreary/libreary/internal/uuid"
)

const typeName = "local"

func init() {
	factory.Register(typeName, driverFactory{})
}

type driverFactory struct{}

func (driverFactory) Create(ctx context.Context, id string, params map[string]interface{}) (adapter.Adapter, error) {
	storageDir, ok := params["storage_dir"]
	if !ok {
		return nil, fmt.Errorf("local adapter %q: missing required parameter %q", id, "storage_dir")
	}
	return New(id, fmt.Sprint(storageDir)), nil
}

type baseEmbed struct {
	base.Base
}

// Adapter stores resources as individual files under a root directory,
// canonical and non-canonical copies side by side.
type Adapter struct {
	baseEmbed
}

type driver struct {
	id         string
	storageDir string
}

// New constructs a local filesystem adapter rooted at storageDir.
func New(id, storageDir string) *Adapter {
	return &Adapter{baseEmbed{base.New(&driver{id: id, storageDir: storageDir})}}
}

func (d *driver) ID() string   { return d.id }
func (d *driver) Type() string { return typeName }

// CanOverwrite is true: writing to an existing locator's path just
// replaces the file's bytes.
func (d *driver) CanOverwrite() bool { return true }

func (d *driver) locatorFor(resourceUUID, filename string, canonical bool) string {
	if canonical {
		return filepath.Join(d.storageDir, fmt.Sprintf("canonical_%s_%s", resourceUUID, filename))
	}
	return filepath.Join(d.storageDir, fmt.Sprintf("%s_%s", resourceUUID, filename))
}

func (d *driver) pathForUUID(resourceUUID string, canonical bool) (string, error) {
	prefix := resourceUUID + "_"
	if canonical {
		prefix = "canonical_" + resourceUUID + "_"
	}
	entries, err := os.ReadDir(d.storageDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			return filepath.Join(d.storageDir, e.Name()), nil
		}
	}
	return "", nil
}

func (d *driver) store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string, canonical bool) (string, error) {
	if err := os.MkdirAll(d.storageDir, 0o777); err != nil {
		return "", err
	}

	existing, err := d.pathForUUID(resourceUUID, canonical)
	if err != nil {
		return "", err
	}
	if existing != "" {
		if canonical {
			return "", libreary.StorageFailedError{
				ResourceUUID: resourceUUID,
				AdapterID:    d.id,
				Reason:       "a canonical copy already exists on this adapter",
			}
		}
		// A non-canonical copy already exists. If its bytes already match
		// the checksum being stored, this call is a no-op duplicate
		// (Store(R) twice == Store(R) once). If they don't, the existing
		// copy is corrupt and this call is a repair: fall through and
		// overwrite it in place, since CanOverwrite is true for this
		// adapter.
		existingSum, err := hashFile(existing)
		if err == nil && existingSum == checksum {
			return existing, nil
		}
	}

	actual, err := hashFile(sourcePath)
	if err != nil {
		return "", err
	}
	if actual != checksum {
		return "", libreary.ChecksumMismatchError{
			ResourceUUID: resourceUUID,
			AdapterID:    d.id,
			Expected:     checksum,
			Actual:       actual,
		}
	}

	dest := d.locatorFor(resourceUUID, filename, canonical)
	tempPath := fmt.Sprintf("%s.%s.tmp", dest, uuid.NewV4String())

	if err := copyFile(sourcePath, tempPath); err != nil {
		os.Remove(tempPath)
		return "", err
	}
	if err := os.Rename(tempPath, dest); err != nil {
		os.Remove(tempPath)
		return "", err
	}
	return dest, nil
}

func (d *driver) Store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	return d.store(ctx, resourceUUID, sourcePath, checksum, filename, false)
}

func (d *driver) StoreCanonical(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	return d.store(ctx, resourceUUID, sourcePath, checksum, filename, true)
}

func (d *driver) Retrieve(ctx context.Context, resourceUUID, destPath string, canonical bool) error {
	src, err := d.pathForUUID(resourceUUID, canonical)
	if err != nil {
		return err
	}
	if src == "" {
		return libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: d.id}
	}
	return copyFile(src, destPath)
}

func (d *driver) delete(resourceUUID string, canonical bool) error {
	p, err := d.pathForUUID(resourceUUID, canonical)
	if err != nil {
		return err
	}
	if p == "" {
		// Idempotent: nothing to delete.
		return nil
	}
	return os.Remove(p)
}

func (d *driver) Delete(ctx context.Context, resourceUUID string) error {
	return d.delete(resourceUUID, false)
}

func (d *driver) DeleteCanonical(ctx context.Context, resourceUUID string) error {
	return d.delete(resourceUUID, true)
}

func (d *driver) ActualChecksum(ctx context.Context, resourceUUID string, canonical bool) (string, error) {
	p, err := d.pathForUUID(resourceUUID, canonical)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", libreary.NoCopyExistsError{ResourceUUID: resourceUUID, AdapterID: d.id}
	}
	return hashFile(p)
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

	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
