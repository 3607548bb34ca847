// Package conformance provides a single testify/suite.Suite that
// exercises the adapter.Adapter contract, so every backend variant
// (local, s3, drive, and any future one) can be run against the same
// test body instead of each duplicating it, grounded on
// storagedriver/testsuites.DriverSuite's Constructor/SkipCheck shape.
package conformance

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/suite"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/internal/uuid"
)

// Constructor returns a fresh adapter.Adapter for one test run.
type Constructor func(ctx context.Context) (adapter.Adapter, error)

// SkipCheck returns a non-empty skip reason when the suite should not
// run (e.g. missing credentials for a remote backend). A nil SkipCheck
// never skips.
type SkipCheck func() string

// NeverSkip is the default SkipCheck for backends with no external
// dependency, such as the local filesystem adapter.
func NeverSkip() string { return "" }

// Suite is a testify suite driving any adapter.Adapter implementation
// through the capability contract adapter.Adapter defines: store,
// retrieve, delete, idempotence, checksum verification, and repair
// overwrite.
type Suite struct {
	suite.Suite
	Constructor Constructor
	SkipCheck   SkipCheck

	Adapter adapter.Adapter
	dir     string
}

// NewSuite returns a Suite that builds a fresh adapter via constructor
// for every test, skipping the whole suite up front if skip reports a
// reason.
func NewSuite(constructor Constructor, skip SkipCheck) *Suite {
	if skip == nil {
		skip = NeverSkip
	}
	return &Suite{Constructor: constructor, SkipCheck: skip}
}

// SetupTest builds a new adapter and scratch directory before each test.
func (s *Suite) SetupTest() {
	if reason := s.SkipCheck(); reason != "" {
		s.T().Skip(reason)
	}
	a, err := s.Constructor(context.Background())
	s.Require().NoError(err)
	s.Adapter = a
	s.dir = s.T().TempDir()
}

func (s *Suite) writeFile(name string, contents []byte) string {
	p := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(p, contents, 0o644))
	return p
}

func hashBytes(b []byte) string {
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:])
}

func randomContents() []byte {
	b := make([]byte, 256)
	rand.Read(b) //nolint:errcheck
	return b
}

// TestStoreCanonicalThenRetrieve exercises property 4 of the testable
// properties: retrieve after store round-trips the checksum.
func (s *Suite) TestStoreCanonicalThenRetrieve() {
	ctx := context.Background()
	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	locator, err := s.Adapter.StoreCanonical(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)
	s.Require().NotEmpty(locator)

	dest := filepath.Join(s.dir, "out", "grace.jpg")
	s.Require().NoError(s.Adapter.Retrieve(ctx, resourceUUID, dest, true))

	got, err := os.ReadFile(dest)
	s.Require().NoError(err)
	s.Require().Equal(contents, got)
}

// TestStoreCanonicalRefusesDuplicate exercises invariant 1: at most one
// canonical copy per resource per adapter.
func (s *Suite) TestStoreCanonicalRefusesDuplicate() {
	ctx := context.Background()
	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	_, err := s.Adapter.StoreCanonical(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	_, err = s.Adapter.StoreCanonical(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().Error(err)
	var sfe libreary.StorageFailedError
	s.Require().ErrorAs(err, &sfe)
}

// TestStoreChecksumMismatch exercises the ChecksumMismatch contract:
// bytes that don't hash to the given checksum are rejected.
func (s *Suite) TestStoreChecksumMismatch() {
	ctx := context.Background()
	src := s.writeFile("grace.jpg", randomContents())
	resourceUUID := uuid.NewV4String()

	_, err := s.Adapter.Store(ctx, resourceUUID, src, "0000000000000000000000000000000000000000", "grace.jpg")
	s.Require().Error(err)
	var cme libreary.ChecksumMismatchError
	s.Require().ErrorAs(err, &cme)
}

// TestStoreTwiceIsIdempotent exercises invariant 8: Store(R) twice is
// equivalent to once.
func (s *Suite) TestStoreTwiceIsIdempotent() {
	ctx := context.Background()
	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	loc1, err := s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	loc2, err := s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)
	s.Require().Equal(loc1, loc2)
}

// TestStoreOverwritesCorruptNonCanonicalCopy exercises the
// overwrite-in-place repair path RestoreFromCanonicalCopy relies on for
// adapters that report CanOverwrite.
func (s *Suite) TestStoreOverwritesCorruptNonCanonicalCopy() {
	if !s.Adapter.CanOverwrite() {
		s.T().Skip("adapter cannot overwrite in place")
	}
	ctx := context.Background()
	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	_, err := s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	// Corrupt the backend copy, then Store the same resource again: the
	// adapter must overwrite the stale bytes rather than treating the
	// existing locator as already-correct.
	corrupt := s.writeFile("corrupt.jpg", []byte("corrupted bytes, different from the original"))
	s.Require().NoError(s.Adapter.Delete(ctx, resourceUUID))
	_, err = s.Adapter.Store(ctx, resourceUUID, corrupt, hashBytes([]byte("corrupted bytes, different from the original")), "grace.jpg")
	s.Require().NoError(err)

	_, err = s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	dest := filepath.Join(s.dir, "out", "grace.jpg")
	s.Require().NoError(s.Adapter.Retrieve(ctx, resourceUUID, dest, false))
	got, err := os.ReadFile(dest)
	s.Require().NoError(err)
	s.Require().Equal(contents, got)
}

// TestRetrieveNoCopyExists exercises the NoCopyExists contract for an
// adapter that never stored the resource.
func (s *Suite) TestRetrieveNoCopyExists() {
	ctx := context.Background()
	err := s.Adapter.Retrieve(ctx, uuid.NewV4String(), filepath.Join(s.dir, "out", "x.jpg"), false)
	s.Require().Error(err)
	var nce libreary.NoCopyExistsError
	s.Require().ErrorAs(err, &nce)
}

// TestDeleteIsIdempotent exercises invariant 8's delete half: deleting
// an absent copy, or the same copy twice, is a no-op both times.
func (s *Suite) TestDeleteIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.Adapter.Delete(ctx, uuid.NewV4String()))

	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	_, err := s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	s.Require().NoError(s.Adapter.Delete(ctx, resourceUUID))
	s.Require().NoError(s.Adapter.Delete(ctx, resourceUUID))

	err = s.Adapter.Retrieve(ctx, resourceUUID, filepath.Join(s.dir, "out", "grace.jpg"), false)
	s.Require().Error(err)
}

// TestActualChecksumMatchesStoredBytes exercises ActualChecksum: it
// must rehash the backend's own bytes, not trust any catalog value.
func (s *Suite) TestActualChecksumMatchesStoredBytes() {
	ctx := context.Background()
	contents := randomContents()
	sum := hashBytes(contents)
	src := s.writeFile("grace.jpg", contents)
	resourceUUID := uuid.NewV4String()

	_, err := s.Adapter.Store(ctx, resourceUUID, src, sum, "grace.jpg")
	s.Require().NoError(err)

	actual, err := s.Adapter.ActualChecksum(ctx, resourceUUID, false)
	s.Require().NoError(err)
	s.Require().Equal(sum, actual)
}

// TestIDAndType exercises the plain identity accessors every adapter
// must expose for the adapter manager's caches to key on.
func (s *Suite) TestIDAndType() {
	s.Require().NotEmpty(s.Adapter.ID())
	s.Require().NotEmpty(s.Adapter.Type())
}
