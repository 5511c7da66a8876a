// Package ring implements the fixed-size rolling window of segment
// endpoints: slot 0 carries the live index/playlist, slots 1..N carry
// segment payloads. Each slot owns a primary buffer (what a connecting
// reader receives) and a back-buffer (what the writer fills while a
// reader is attached to the primary), swapped under a single mutex per
// spec §4.F/§5.
package ring

import (
	"encoding/binary"
	"sync"
	"time"
)

// SegmentCountEmpty marks a slot that has never been written.
const SegmentCountEmpty uint32 = 0x1000000

// MaxFragmentEntries bounds the fragment-duration table written into each
// segment payload header (spec §4.F: "up to 20 fragment-size entries").
const MaxFragmentEntries = 20

// Slot holds one endpoint's buffer pair and bookkeeping. Index 0 is the
// index/playlist slot; the rest carry segment payloads.
type Slot struct {
	buf     []byte
	backBuf []byte

	segIndex        uint32
	segCount        uint32
	segDurationMsec uint32
	segTimeMsec     uint64 // running stream-time total through this segment, in ms
	fragDurationsMsec []uint32

	readerAttached bool
}

// Ring is the N+1 slot window: Slots[0] is the index, Slots[1:] roll
// modulo N.
type Ring struct {
	mu    sync.Mutex
	Slots []*Slot

	segNum    int
	segIndex  uint32 // next slot (1..segNum) to be overwritten
	segCount  uint32
	isMp4     bool
	initHeader []byte // fMP4 init header, once built; nil in TS mode

	// entireDurationMsec is the running total of every finalized segment's
	// duration, stamped onto each slot as segTimeMsec at finalize time so
	// the index can report a segment's position in overall stream time.
	entireDurationMsec uint64

	endList    bool
	incomplete bool // true while the newest segment is still receiving fragments
}

func unixTime() uint32 { return uint32(time.Now().Unix()) }

// IsMp4 reports whether this Ring carries fMP4 segment payloads rather
// than raw TS.
func (r *Ring) IsMp4() bool { return r.isMp4 }

// SegNum returns the number of segment slots (excluding the index slot).
func (r *Ring) SegNum() int { return r.segNum }

// CurrentSlotIndex returns the slot index that the next PublishSegment,
// StartSegment, or FinalizeSegment call will act on.
func (r *Ring) CurrentSlotIndex() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segIndex
}

// New returns a Ring with segNum segment slots plus the index slot, all
// initially empty.
func New(segNum int, isMp4 bool) *Ring {
	r := &Ring{
		Slots:  make([]*Slot, segNum+1),
		segNum: segNum,
		isMp4:  isMp4,
		segIndex: 1,
	}
	for i := range r.Slots {
		r.Slots[i] = &Slot{segCount: SegmentCountEmpty}
	}
	return r
}

// SetInitHeader records the fMP4 ftyp+moov bytes once built, for inclusion
// at the end of the index payload (spec §4.F).
func (r *Ring) SetInitHeader(header []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initHeader = header
	r.rebuildIndexLocked()
}

// PublishSegment writes a complete segment payload into the next slot in
// the rotation and advances segIndex, then rebuilds the index.
func (r *Ring) PublishSegment(payload []byte, durationMsec uint32, fragDurationsMsec []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.Slots[r.segIndex]
	r.segCount = (r.segCount + 1) & 0xFFFFFF
	slot.segIndex = r.segIndex
	slot.segCount = r.segCount
	slot.segDurationMsec = durationMsec
	slot.fragDurationsMsec = fragDurationsMsec
	r.entireDurationMsec += uint64(durationMsec)
	slot.segTimeMsec = r.entireDurationMsec

	r.writeSlotLocked(slot, buildSegmentHeader(slot.segCount, payload, fragDurationsMsec, r.isMp4))

	r.incomplete = false
	r.segIndex = r.segIndex%uint32(r.segNum) + 1
	r.rebuildIndexLocked()
}

// StartSegment opens a fresh fMP4 segment in the slot currently pointed
// to by segIndex, clearing any fragment bookkeeping left over from that
// slot's previous occupant and assigning it the next segCount. Call it
// once before the first AppendFragment of a new segment.
func (r *Ring) StartSegment() {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.Slots[r.segIndex]
	r.segCount = (r.segCount + 1) & 0xFFFFFF
	slot.segIndex = r.segIndex
	slot.segCount = r.segCount
	slot.fragDurationsMsec = nil

	r.writeSlotLocked(slot, buildSegmentHeader(slot.segCount, nil, nil, r.isMp4))
	r.incomplete = true
	r.rebuildIndexLocked()
}

// AppendFragment extends the segment currently being built in fMP4 mode
// with one more fragment's bytes, without rolling segIndex. The index is
// rebuilt with incomplete=1 so readers know the newest segment is still
// growing.
func (r *Ring) AppendFragment(fragment []byte, fragDurationMsec uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.Slots[r.segIndex]
	slot.fragDurationsMsec = append(slot.fragDurationsMsec, fragDurationMsec)

	current := slot.backBuf
	if len(current) == 0 && !slot.readerAttached {
		current = slot.buf
	}
	payload := append(append([]byte(nil), segmentPayload(current)...), fragment...)
	r.writeSlotLocked(slot, buildSegmentHeader(slot.segCount, payload, slot.fragDurationsMsec, r.isMp4))

	r.incomplete = true
	r.rebuildIndexLocked()
}

// FinalizeSegment closes out the segment currently being built in fMP4
// mode: it records the segment's total duration, clears incomplete, and
// advances segIndex to the next slot, mirroring the bookkeeping
// PublishSegment performs for TS passthrough segments. Call it after the
// segment's final AppendFragment (if any).
func (r *Ring) FinalizeSegment(durationMsec uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.Slots[r.segIndex]
	slot.segDurationMsec = durationMsec
	r.entireDurationMsec += uint64(durationMsec)
	slot.segTimeMsec = r.entireDurationMsec

	r.incomplete = false
	r.segIndex = r.segIndex%uint32(r.segNum) + 1
	r.rebuildIndexLocked()
}

// segmentPayload strips the 188-byte header a prior buildSegmentHeader
// call prepended, or returns nil if content has no header yet.
func segmentPayload(content []byte) []byte {
	if len(content) <= 188 {
		return nil
	}
	return content[188:]
}

// writeSlotLocked picks buf or backBuf per the dual-buffer rule (spec
// §4.F): write directly to buf unless a reader is attached or backBuf is
// already pending, in which case stage into backBuf for the delivery
// dispatcher to swap in once the reader disconnects.
func (r *Ring) writeSlotLocked(slot *Slot, content []byte) {
	if slot.readerAttached || len(slot.backBuf) != 0 {
		slot.backBuf = content
		return
	}
	slot.buf = content
}

// SwapIfPending is called by the delivery dispatcher after a reader on
// this slot disconnects. If a back-buffer is pending it becomes the new
// primary.
func (r *Ring) SwapIfPending(slotIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := r.Slots[slotIndex]
	slot.readerAttached = false
	if len(slot.backBuf) != 0 {
		slot.buf = slot.backBuf
		slot.backBuf = nil
	}
}

// MarkReaderAttached records that a reader has connected to a slot, so
// subsequent writes are staged into backBuf instead of overwriting buf
// live.
func (r *Ring) MarkReaderAttached(slotIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Slots[slotIndex].readerAttached = true
}

// Snapshot returns the current readable bytes for a slot (buf), safe to
// write to a connected reader without holding the lock any longer than
// the copy.
func (r *Ring) Snapshot(slotIndex int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Slots[slotIndex].buf
}

// SetEndList flips the shutdown flag and rebuilds the index, per spec
// §4.G idle-timeout teardown.
func (r *Ring) SetEndList() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endList = true
	r.rebuildIndexLocked()
}

// rebuildIndexLocked regenerates slot 0's content per spec §4.F's index
// layout. Caller must hold r.mu.
func (r *Ring) rebuildIndexLocked() {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.segNum-1))
	binary.BigEndian.PutUint32(buf[4:8], uint32(unixTime()))
	if r.endList {
		buf[8] = 1
	}
	if r.incomplete {
		buf[9] = 1
	}
	if r.isMp4 {
		buf[10] = 1
	}

	i := r.segIndex%uint32(r.segNum) + 1
	for j := uint32(1); j < uint32(r.segNum); j++ {
		slot := r.Slots[i]
		rec := make([]byte, 16)
		binary.BigEndian.PutUint32(rec[0:4], i)
		fragCount := uint32(len(slot.fragDurationsMsec))
		binary.BigEndian.PutUint32(rec[4:8], fragCount)
		binary.BigEndian.PutUint32(rec[8:12], slot.segCount)
		binary.BigEndian.PutUint16(rec[12:14], uint16(slot.segDurationMsec))
		binary.BigEndian.PutUint16(rec[14:16], uint16(slot.segTimeMsec/10))
		buf = append(buf, rec...)
		for _, d := range slot.fragDurationsMsec {
			frag := make([]byte, 16)
			binary.BigEndian.PutUint32(frag[12:16], d)
			buf = append(buf, frag...)
		}
		i = i%uint32(r.segNum) + 1
	}

	binary.BigEndian.PutUint32(buf[12:16], uint32(len(buf)))
	if len(r.initHeader) != 0 {
		buf = append(buf, r.initHeader...)
	}

	r.writeSlotLocked(r.Slots[0], buf)
}

// buildSegmentHeader builds the first 188 bytes of a segment payload:
// a NULL-TS-shaped marker, segCount, the packet/byte count, the isMp4
// flag, and up to MaxFragmentEntries fragment-size entries.
func buildSegmentHeader(segCount uint32, payload []byte, fragDurationsMsec []uint32, isMp4 bool) []byte {
	header := make([]byte, 188)
	header[0] = 0x47
	header[1] = 0x01
	header[2] = 0xFF
	header[3] = 0x10
	binary.BigEndian.PutUint32(header[4:8], segCount)
	if isMp4 {
		binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))
		header[12] = 1
	} else {
		binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)/188))
	}
	n := len(fragDurationsMsec)
	if n > MaxFragmentEntries {
		n = MaxFragmentEntries
	}
	off := 16
	for i := 0; i < n && off+4 <= len(header); i++ {
		binary.BigEndian.PutUint32(header[off:off+4], fragDurationsMsec[i])
		off += 4
	}
	return append(header, payload...)
}
