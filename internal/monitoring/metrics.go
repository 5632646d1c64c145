package monitoring

import (
	"sync/atomic"
	"time"
)

// Metrics tracks process-wide counters for the kernel server
type Metrics struct {
	executionsTotal  int64
	executionsFailed int64
	variableLookups  int64
	imagesStored     int64
	imagesServed     int64

	startTime     time.Time
	lastExecution atomic.Value // time.Time
}

// Snapshot is a point-in-time copy of the counters for /api/stats
type Snapshot struct {
	ExecutionsTotal  int64  `json:"executions_total"`
	ExecutionsFailed int64  `json:"executions_failed"`
	VariableLookups  int64  `json:"variable_lookups"`
	ImagesStored     int64  `json:"images_stored"`
	ImagesServed     int64  `json:"images_served"`
	Uptime           string `json:"uptime"`
	LastExecution    string `json:"last_execution,omitempty"`
}

// NewMetrics creates a metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordExecution records one execution call and whether it failed
func (m *Metrics) RecordExecution(failed bool) {
	atomic.AddInt64(&m.executionsTotal, 1)
	if failed {
		atomic.AddInt64(&m.executionsFailed, 1)
	}
	m.lastExecution.Store(time.Now())
}

// RecordLookup records one variable lookup
func (m *Metrics) RecordLookup() {
	atomic.AddInt64(&m.variableLookups, 1)
}

// RecordImageStored records one image registration
func (m *Metrics) RecordImageStored() {
	atomic.AddInt64(&m.imagesStored, 1)
}

// RecordImageServed records one image fetch
func (m *Metrics) RecordImageServed() {
	atomic.AddInt64(&m.imagesServed, 1)
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		ExecutionsTotal:  atomic.LoadInt64(&m.executionsTotal),
		ExecutionsFailed: atomic.LoadInt64(&m.executionsFailed),
		VariableLookups:  atomic.LoadInt64(&m.variableLookups),
		ImagesStored:     atomic.LoadInt64(&m.imagesStored),
		ImagesServed:     atomic.LoadInt64(&m.imagesServed),
		Uptime:           time.Since(m.startTime).Round(time.Second).String(),
	}
	if t, ok := m.lastExecution.Load().(time.Time); ok {
		s.LastExecution = t.Format(time.RFC3339)
	}
	return s
}
