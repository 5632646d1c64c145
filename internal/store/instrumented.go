package store

import (
	"context"

	"github.com/rgbkrk/honchkrow/internal/monitoring"
)

// Instrumented wraps an ImageStore and records store activity
type Instrumented struct {
	inner   ImageStore
	metrics *monitoring.Metrics
}

// NewInstrumented wraps a store with metrics recording. A nil metrics
// collector returns the store unchanged.
func NewInstrumented(inner ImageStore, metrics *monitoring.Metrics) ImageStore {
	if metrics == nil {
		return inner
	}
	return &Instrumented{
		inner:   inner,
		metrics: metrics,
	}
}

// Put stores the bytes and counts the registration
func (i *Instrumented) Put(ctx context.Context, data []byte) (string, error) {
	name, err := i.inner.Put(ctx, data)
	if err == nil {
		i.metrics.RecordImageStored()
	}
	return name, err
}

// Get retrieves stored bytes and counts successful fetches
func (i *Instrumented) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := i.inner.Get(ctx, name)
	if err == nil {
		i.metrics.RecordImageServed()
	}
	return data, err
}

// Close closes the wrapped store
func (i *Instrumented) Close() error {
	return i.inner.Close()
}
