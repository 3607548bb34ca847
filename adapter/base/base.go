// Package base provides a wrapper around an adapter.Adapter that adds
// debug logging and latency metrics to every call, so individual
// backend implementations don't each have to.
//
// The canonical way to use this package is to embed Base in the
// exported adapter type, behind a private embed so the method set
// isn't exported twice:
//
//	type baseEmbed struct {
//		base.Base
//	}
//
//	type Adapter struct {
//		baseEmbed
//	}
//
// The backend's own unexported driver type implements adapter.Adapter
// and is passed to base.New to produce the wrapping Base.
package base

import (
	"context"
	"time"

	"github.com/libreary/libreary/adapter"
	"github.com/libreary/libreary/internal/dcontext"
	"github.com/libreary/libreary/metrics"
)

// Base wraps an adapter.Adapter, adding logging and timing around each
// method.
type Base struct {
	adapter.Adapter
}

// New wraps inner with logging and metrics.
func New(inner adapter.Adapter) Base {
	return Base{Adapter: inner}
}

func (b Base) durationLog(ctx context.Context, method string) func() {
	start := time.Now()
	timer := metrics.AdapterNamespace.NewTimer("operation_duration_seconds", "")
	return func() {
		timer.UpdateSince(start)
		dcontext.GetLogger(ctx).Debugf("adapter.%s %s: %s", b.Adapter.ID(), method, time.Since(start))
	}
}

func (b Base) Store(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	defer b.durationLog(ctx, "Store")()
	return b.Adapter.Store(ctx, resourceUUID, sourcePath, checksum, filename)
}

func (b Base) StoreCanonical(ctx context.Context, resourceUUID, sourcePath, checksum, filename string) (string, error) {
	defer b.durationLog(ctx, "StoreCanonical")()
	return b.Adapter.StoreCanonical(ctx, resourceUUID, sourcePath, checksum, filename)
}

func (b Base) Retrieve(ctx context.Context, resourceUUID, destPath string, canonical bool) error {
	defer b.durationLog(ctx, "Retrieve")()
	return b.Adapter.Retrieve(ctx, resourceUUID, destPath, canonical)
}

func (b Base) Delete(ctx context.Context, resourceUUID string) error {
	defer b.durationLog(ctx, "Delete")()
	return b.Adapter.Delete(ctx, resourceUUID)
}

func (b Base) DeleteCanonical(ctx context.Context, resourceUUID string) error {
	defer b.durationLog(ctx, "DeleteCanonical")()
	return b.Adapter.DeleteCanonical(ctx, resourceUUID)
}

func (b Base) ActualChecksum(ctx context.Context, resourceUUID string, canonical bool) (string, error) {
	defer b.durationLog(ctx, "ActualChecksum")()
	return b.Adapter.ActualChecksum(ctx, resourceUUID, canonical)
}
