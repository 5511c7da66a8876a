// Package pacing implements the dual read-rate limiter and the
// access-idle timeout of spec §4.G, plus the closing-command runner
// invoked when the idle timeout fires.
package pacing

import (
	"context"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"
)

// Limiter paces the ingest loop's stdin reads against the PTS clock of
// the stream being read, per spec §4.G: an initial "fill" rate applies
// until the ring is fully populated, then a steady rate takes over, with
// the duration accumulator re-based exactly once at that crossover.
type Limiter struct {
	fillRatePerMille   int
	steadyRatePerMille int

	rebased            bool
	activeRatePerMille int

	baseTick           time.Time
	entireDurationMsec int64
}

// NewLimiter returns a Limiter starting at the fill rate.
func NewLimiter(fillRatePerMille, steadyRatePerMille int) *Limiter {
	return &Limiter{
		fillRatePerMille:   fillRatePerMille,
		steadyRatePerMille: steadyRatePerMille,
		activeRatePerMille: fillRatePerMille,
		baseTick:           time.Now(),
	}
}

// ObservePTSAdvance is called once per decided boundary with the 90kHz
// tick delta just consumed; it is folded into the duration accumulator
// the pacing check compares against wall-clock elapsed time.
func (l *Limiter) ObservePTSAdvance(ticks90kHz uint64) {
	l.entireDurationMsec += int64(ticks90kHz / 90)
}

// RingFilled must be called by the ingest loop once every ring slot has
// been populated at least once; it triggers the one-time rate switch and
// accumulator rebase described in spec §4.G / SPEC_FULL.md.
func (l *Limiter) RingFilled() {
	if l.rebased || l.fillRatePerMille == l.steadyRatePerMille {
		return
	}
	l.rebased = true
	l.activeRatePerMille = l.steadyRatePerMille
	l.baseTick = time.Now()
	l.entireDurationMsec = 0
}

// ShouldWait reports whether the ingest loop is reading too fast relative
// to the configured rate and should sleep before processing its next
// chunk, per spec §4.G's "entireDurationMsec + ptsDiff/90 >
// (now-base)*readRate/1000" check.
func (l *Limiter) ShouldWait() bool {
	if l.activeRatePerMille <= 0 {
		return false
	}
	elapsedMsec := time.Since(l.baseTick).Milliseconds()
	return l.entireDurationMsec > elapsedMsec*int64(l.activeRatePerMille)/1000
}

// IdleTracker holds the shared last-access tick the ring's delivery
// dispatchers update on every reader connect, and the ingest loop polls
// against the configured idle timeout.
type IdleTracker struct {
	lastAccessUnixMilli atomic.Int64
	timeout             time.Duration
}

// NewIdleTracker returns a tracker seeded to "now", with the given
// timeout (0 disables the idle check entirely).
func NewIdleTracker(timeout time.Duration) *IdleTracker {
	t := &IdleTracker{timeout: timeout}
	t.Touch()
	return t
}

// Touch records an access (a reader connecting to any ring slot).
func (t *IdleTracker) Touch() {
	t.lastAccessUnixMilli.Store(time.Now().UnixMilli())
}

// Expired reports whether the configured timeout has elapsed since the
// last Touch. Always false when the timeout is zero.
func (t *IdleTracker) Expired() bool {
	if t.timeout <= 0 {
		return false
	}
	last := time.UnixMilli(t.lastAccessUnixMilli.Load())
	return time.Since(last) >= t.timeout
}

// RunClosingCommand runs cmd with the endpoint base name and the elapsed
// idle duration (milliseconds) as its two arguments, fire-and-forget, per
// SPEC_FULL.md's carried-over original behavior. It does not block the
// caller on the subprocess's own lifetime; pass a context tied to process
// shutdown to bound it.
func RunClosingCommand(ctx context.Context, cmd, endpointName string, idleDuration time.Duration) {
	if cmd == "" {
		return
	}
	c := exec.CommandContext(ctx, cmd, endpointName, formatMillis(idleDuration))
	c.Stdout = nil
	c.Stderr = nil
	go func() { _ = c.Run() }()
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
