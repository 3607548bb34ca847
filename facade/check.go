package facade

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/libreary/libreary"
)

// checkConcurrency bounds how many resources RunCheck processes at
// once, the same "bounded worker pool over a slice of independent
// units of work" shape the rest of the pack uses for batch fan-out.
const checkConcurrency = 8

// ResourceReport summarizes everything the catalog knows about one
// resource: its row, every Copy recorded against it, and its
// user-defined metadata.
type ResourceReport struct {
	Resource libreary.Resource
	Copies   []libreary.Copy
	Metadata []libreary.ObjectMetadataEntry
}

// Inspect returns a full catalog snapshot for one resource.
func (a *Archive) Inspect(ctx context.Context, resourceUUID string) (*ResourceReport, error) {
	r, err := a.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return nil, err
	}
	copies, err := a.store.ListCopies(ctx, resourceUUID)
	if err != nil {
		return nil, err
	}
	meta, err := a.store.GetMetadata(ctx, resourceUUID)
	if err != nil {
		return nil, err
	}
	return &ResourceReport{Resource: *r, Copies: copies, Metadata: meta}, nil
}

// CheckResult is the outcome of checking one resource on one adapter.
type CheckResult struct {
	ResourceUUID string
	AdapterID    string
	OK           bool
	Err          error
}

// CheckReport aggregates every CheckResult a check pass produced.
type CheckReport struct {
	Results []CheckResult
}

// distinctLevelAdapters returns the deduplicated, non-canonical
// adapter IDs the given levels require, in the same "union over
// assigned levels" sense as adaptermanager's own fan-out.
func (a *Archive) distinctLevelAdapters(ctx context.Context, levels []string, canonicalID string) ([]string, error) {
	allLevels, err := a.store.ListLevels(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]libreary.Level, len(allLevels))
	for _, l := range allLevels {
		byName[l.Name] = l
	}

	seen := make(map[string]bool)
	var ids []string
	for _, name := range levels {
		l, ok := byName[name]
		if !ok {
			continue
		}
		for _, ref := range l.Adapters {
			if ref.ID == canonicalID || seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			ids = append(ids, ref.ID)
		}
	}
	return ids, nil
}

// CheckSingleResource checks one resource's canonical copy and every
// non-canonical copy its levels require, repairing what it finds
// broken. deep rehashes actual adapter bytes rather than trusting the
// catalog's recorded checksums.
func (a *Archive) CheckSingleResource(ctx context.Context, resourceUUID string, deep bool) ([]CheckResult, error) {
	r, err := a.store.GetResource(ctx, resourceUUID)
	if err != nil {
		return nil, err
	}

	var results []CheckResult

	canonical := a.mgr.CanonicalAdapter()
	if deep {
		if sum, err := canonical.ActualChecksum(ctx, resourceUUID, true); err != nil || sum != r.Checksum {
			if restoreErr := a.mgr.RestoreCanonicalCopy(ctx, resourceUUID); restoreErr != nil {
				results = append(results, CheckResult{ResourceUUID: resourceUUID, AdapterID: canonical.ID(), OK: false, Err: restoreErr})
			} else {
				results = append(results, CheckResult{ResourceUUID: resourceUUID, AdapterID: canonical.ID(), OK: true})
			}
		} else {
			results = append(results, CheckResult{ResourceUUID: resourceUUID, AdapterID: canonical.ID(), OK: true})
		}
	}

	adapterIDs, err := a.distinctLevelAdapters(ctx, r.Levels, canonical.ID())
	if err != nil {
		return nil, err
	}
	for _, adapterID := range adapterIDs {
		var ok bool
		var checkErr error
		if deep {
			ok, checkErr = a.mgr.VerifyAdapterMetadata(ctx, adapterID, resourceUUID, true)
		} else {
			ok, checkErr = a.mgr.CheckSingleResourceSingleAdapter(ctx, resourceUUID, adapterID)
		}
		results = append(results, CheckResult{ResourceUUID: resourceUUID, AdapterID: adapterID, OK: ok, Err: checkErr})
	}

	return results, nil
}

// RunCheck walks every tracked resource, checking (and repairing) its
// canonical and level copies, fanning the work out across a bounded
// worker pool since resources are independent of one another.
func (a *Archive) RunCheck(ctx context.Context, deep bool) (*CheckReport, error) {
	resources, err := a.store.ListResources(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)

	var mu sync.Mutex
	var all []CheckResult

	for _, r := range resources {
		r := r
		g.Go(func() error {
			results, err := a.CheckSingleResource(gctx, r.UUID, deep)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, results...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &CheckReport{Results: all}, nil
}
