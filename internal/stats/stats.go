// Package stats holds the process-lifetime counters spec §7 requires to
// be surfaced as warnings at shutdown, kept as atomics so the ingest
// loop can increment them while another goroutine reads them.
package stats

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Counters tracks sync errors and forced segmentations across the life of
// one run.
type Counters struct {
	syncErrors          atomic.Uint64
	forcedSegmentations atomic.Uint64
}

// New returns a zeroed Counters.
func New() *Counters { return &Counters{} }

// IncSyncError records one dropped packet with a bad sync byte.
func (c *Counters) IncSyncError() { c.syncErrors.Add(1) }

// IncForcedSegmentation records one segment emitted without ever
// observing a key frame.
func (c *Counters) IncForcedSegmentation() { c.forcedSegmentations.Add(1) }

// SyncErrors returns the current sync-error count.
func (c *Counters) SyncErrors() uint64 { return c.syncErrors.Load() }

// ForcedSegmentations returns the current forced-segmentation count.
func (c *Counters) ForcedSegmentations() uint64 { return c.forcedSegmentations.Load() }

// WriteSummary prints the shutdown warnings spec §7/§8 scenario 5
// describes ("N forced segmentation happened.") to w, skipping any
// counter that stayed at zero.
func (c *Counters) WriteSummary(w io.Writer) {
	if n := c.SyncErrors(); n > 0 {
		fmt.Fprintf(w, "Warning: %d sync error happened.\n", n)
	}
	if n := c.ForcedSegmentations(); n > 0 {
		fmt.Fprintf(w, "Warning: %d forced segmentation happened.\n", n)
	}
}
