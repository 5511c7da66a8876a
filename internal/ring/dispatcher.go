package ring

import (
	"context"
	"log/slog"
)

// Dispatcher drives one SegmentEndpoint's accept/write/disconnect loop
// against a single ring slot, for as long as ctx is alive. Spec §5 allows
// grouping multiple slots per OS thread (Windows groups 20); here each
// Dispatcher is one goroutine per slot, which golang.org/x/sync/errgroup
// in cmd/tsmemseg supervises collectively.
type Dispatcher struct {
	ring      *Ring
	slotIndex int
	endpoint  SegmentEndpoint
	onAccess  func()
	logger    *slog.Logger
}

// NewDispatcher returns a Dispatcher for one ring slot. onAccess is
// called every time a reader connects, to feed the idle-timeout clock in
// internal/pacing.
func NewDispatcher(r *Ring, slotIndex int, endpoint SegmentEndpoint, onAccess func(), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{ring: r, slotIndex: slotIndex, endpoint: endpoint, onAccess: onAccess, logger: logger}
}

// Run blocks until ctx is canceled, repeatedly accepting one reader at a
// time, writing the slot's current buffer in full, then swapping in any
// pending back-buffer before accepting the next reader.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		reader, err := d.endpoint.AcceptReader(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("accept reader failed", "slot", d.slotIndex, "error", err)
			continue
		}

		if d.onAccess != nil {
			d.onAccess()
		}
		d.ring.MarkReaderAttached(d.slotIndex)

		content := d.ring.Snapshot(d.slotIndex)
		if err := reader.WriteAll(content); err != nil {
			d.logger.Debug("write to reader failed", "slot", d.slotIndex, "error", err)
		}
		_ = reader.Close()

		d.ring.SwapIfPending(d.slotIndex)
	}
}
