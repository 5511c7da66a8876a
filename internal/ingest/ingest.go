// Package ingest wires together the segmenter, the optional fMP4 builder,
// the ring, and the stats counters into the per-stream pipeline of spec
// §2: stdin bytes -> packet validation/PAT/PMT tracking -> NAL state ->
// boundary decisions -> (fMP4 mode) fragment/init building -> ring
// publish/index rewrite.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/tsmemseg/internal/fmp4"
	"github.com/zsiec/tsmemseg/internal/mpegts"
	"github.com/zsiec/tsmemseg/internal/pacing"
	"github.com/zsiec/tsmemseg/internal/ring"
	"github.com/zsiec/tsmemseg/internal/segmenter"
	"github.com/zsiec/tsmemseg/internal/stats"
)

// readChunkPackets bounds how many TS packets are read from stdin per
// Read call; spec §5 reads in batches rather than packet-at-a-time to
// keep syscall overhead down.
const readChunkPackets = 256

// Pipeline owns one stream's segmenter, optional fMP4 builder, ring, and
// pacing state, and drives them from a stdin-like reader.
type Pipeline struct {
	seg     *segmenter.Segmenter
	builder *fmp4.Builder // nil in TS passthrough mode
	ring    *ring.Ring
	stats   *stats.Counters
	limiter *pacing.Limiter
	idle    *pacing.IdleTracker
	logger  *slog.Logger

	builderReady bool
	segmentOpen  bool
	ringFilled   bool
	filledSlots  map[uint32]bool
}

// Params configures a new Pipeline.
type Params struct {
	SegCfg  segmenter.Config
	SegNum  int
	Mp4Mode bool
	Limiter *pacing.Limiter
	Idle    *pacing.IdleTracker
	Stats   *stats.Counters
	Logger  *slog.Logger
}

// New returns a Pipeline ready to consume packets from stream start.
func New(p Params) *Pipeline {
	return &Pipeline{
		seg:         segmenter.New(p.SegCfg),
		ring:        ring.New(p.SegNum, p.Mp4Mode),
		stats:       p.Stats,
		limiter:     p.Limiter,
		idle:        p.Idle,
		logger:      p.Logger,
		filledSlots: make(map[uint32]bool, p.SegNum),
	}
}

// Ring exposes the ring for the dispatcher goroutines to read from.
func (p *Pipeline) Ring() *ring.Ring { return p.ring }

// Run reads 188-byte TS packets from r until EOF or ctx is done, feeding
// each into the segmenter and publishing any resulting flush into the
// ring. While the pacing Limiter reports the stream is ahead of its read
// rate, it sleeps in 10 ms steps before the next read. It returns nil on
// clean EOF or once ctx is done, and the read error otherwise.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunkPackets*mpegts.PacketSize)
	leftover := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if p.limiter != nil && p.limiter.ShouldWait() {
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		n, err := r.Read(buf[leftover:])
		if n == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		total := leftover + n
		whole := (total / mpegts.PacketSize) * mpegts.PacketSize

		for off := 0; off < whole; off += mpegts.PacketSize {
			p.feedOne(buf[off : off+mpegts.PacketSize])
		}

		leftover = total - whole
		copy(buf[:leftover], buf[whole:total])

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (p *Pipeline) feedOne(packet []byte) {
	flush, err := p.seg.Feed(packet)
	if err != nil {
		p.stats.IncSyncError()
		return
	}
	if flush == nil {
		return
	}
	if p.limiter != nil && flush.Kind == segmenter.FlushSegment {
		p.limiter.ObservePTSAdvance(uint64(flush.DurationMsec) * 90)
	}
	p.publish(flush)
}

func (p *Pipeline) publish(flush *segmenter.Flush) {
	if !p.ring.IsMp4() {
		if flush.Kind == segmenter.FlushSegment {
			if flush.Forced {
				p.stats.IncForcedSegmentation()
			}
			slot := p.ring.CurrentSlotIndex()
			p.ring.PublishSegment(flush.Packets, flush.DurationMsec, nil)
			p.markFilled(slot)
		}
		return
	}

	p.ensureBuilder()
	if p.builder == nil {
		return
	}

	out := p.builder.Process(flush.Packets, true)
	if !p.builderReady && p.builder.HeaderReady() {
		p.builderReady = true
		p.ring.SetInitHeader(p.builder.Init())
	}
	if !p.builderReady {
		return
	}

	if !p.segmentOpen {
		p.ring.StartSegment()
		p.segmentOpen = true
	}
	if len(out) > 0 {
		p.ring.AppendFragment(out, p.builder.LastFragmentDurationMsec())
	}

	switch flush.Kind {
	case segmenter.FlushSegment:
		if flush.Forced {
			p.stats.IncForcedSegmentation()
		}
		slot := p.ring.CurrentSlotIndex()
		p.ring.FinalizeSegment(flush.DurationMsec)
		p.segmentOpen = false
		p.markFilled(slot)
	}
}

// ensureBuilder constructs the fMP4 builder once the PMT's PID
// assignments are known; it is a no-op once built.
func (p *Pipeline) ensureBuilder() {
	if p.builder != nil {
		return
	}
	videoPID, audioPID, id3PID, isHEVC, ok := p.seg.TrackPIDs()
	if !ok {
		return
	}
	p.builder = fmp4.NewBuilder(videoPID, audioPID, id3PID, isHEVC)
}

// markFilled records that slotIndex has received at least one segment;
// once every slot in the rotation has, the pacing Limiter switches from
// its fill rate to its steady rate (spec §4.G).
func (p *Pipeline) markFilled(slotIndex uint32) {
	if p.ringFilled || p.limiter == nil {
		return
	}
	p.filledSlots[slotIndex] = true
	if len(p.filledSlots) >= p.ring.SegNum() {
		p.ringFilled = true
		p.limiter.RingFilled()
	}
}
