// Package segmenter accumulates incoming transport stream packets, tracks
// per-PID unit-start positions, and decides where to cut segment and
// fragment boundaries so that every cut preserves decoder-startability
// (PAT/PMT front-loaded, no PES carrier split mid-continuation).
package segmenter

import (
	"errors"

	"github.com/zsiec/tsmemseg/internal/mpegts"
	"github.com/zsiec/tsmemseg/internal/nal"
)

// ErrSyncByte is returned by Feed when a packet's sync byte is not 0x47.
// The packet is dropped; no resynchronization is attempted.
var ErrSyncByte = errors.New("segmenter: invalid sync byte")

// unitStartState tracks, for one PID, the byte offset into the
// accumulating packets buffer of its most recent unit-start, and the
// snapshots taken the last time a segment or fragment boundary was marked.
type unitStartState struct {
	lastPos              int
	beforeKeyStart       int
	beforeMarkedKeyStart int
}

// Config holds the tunables a Segmenter needs; all duration fields are in
// milliseconds. FragMaxBytes is an internal safety bound on a single
// fragment/segment chunk, independent of the user-facing -m flag (see
// fragMaxBytesSafetyCap in cmd/tsmemseg).
type Config struct {
	InitialTargetDurationMsec uint32
	TargetDurationMsec        uint32
	TargetFragDurationMsec    uint32
	SegMaxBytes               uint64
	FragMaxBytes              uint64
	Mp4Mode                   bool
}

// FlushKind distinguishes a segment-ending flush from an
// inside-segment fragment flush.
type FlushKind int

const (
	FlushSegment FlushKind = iota
	FlushFragment
)

// Flush is returned by Feed when a boundary decision fires.
type Flush struct {
	Kind         FlushKind
	Packets      []byte // raw TS packets, reordered per spec 4.E
	Forced       bool   // true if flushed without ever seeing a key
	DurationMsec uint32 // meaningful only for Kind == FlushSegment
}

// Segmenter is not safe for concurrent use; the ingest loop is its only
// caller.
type Segmenter struct {
	cfg Config

	pat *mpegts.PAT
	pmt *mpegts.PMT

	videoScanner *nal.Scanner
	unitStart    map[uint16]*unitStartState

	packets []byte

	isFirstKey   bool
	ptsValid     bool
	curPts       uint64
	lastSegPts   uint64
	lastFragPts  uint64
	markedFragPts uint64
	markedFragSet bool
	audioArrived  bool

	targetDurationMsec uint32 // current target; switches from Initial to steady after first segment
	segBytesSoFar      int    // bytes already committed to the current segment via earlier fragments

	segCount                uint32
	forcedSegmentationCount uint32
	durationResidualTicks   uint32 // sub-millisecond (90kHz tick) remainder, carried across segments
}

// New returns a Segmenter ready to accept packets from stream start.
func New(cfg Config) *Segmenter {
	target := cfg.InitialTargetDurationMsec
	return &Segmenter{
		cfg:                cfg,
		pat:                mpegts.NewPAT(),
		unitStart:          make(map[uint16]*unitStartState),
		isFirstKey:         true,
		targetDurationMsec: target,
	}
}

// TrackPIDs returns the video/audio/ID3 PIDs and the video codec the PMT
// advertises, and ok=false until a PMT has been fully parsed.
func (s *Segmenter) TrackPIDs() (videoPID, audioPID, id3PID uint16, isHEVC bool, ok bool) {
	if s.pmt == nil {
		return 0, 0, 0, false, false
	}
	if s.pmt.FirstVideoPresent {
		videoPID = s.pmt.FirstVideoPID
		isHEVC = s.pmt.FirstVideoStreamType == mpegts.StreamTypeHEVC
	}
	if s.pmt.FirstADTSAudioPresent {
		audioPID = s.pmt.FirstADTSAudioPID
	}
	if s.pmt.FirstID3MetadataPresent {
		id3PID = s.pmt.FirstID3MetadataPID
	}
	return videoPID, audioPID, id3PID, isHEVC, true
}

// ForcedSegmentationCount returns how many segments were emitted without
// ever observing a key frame, for the shutdown warning of spec §7.
func (s *Segmenter) ForcedSegmentationCount() uint32 { return s.forcedSegmentationCount }

func (s *Segmenter) stateFor(pid uint16) *unitStartState {
	st, ok := s.unitStart[pid]
	if !ok {
		st = &unitStartState{}
		s.unitStart[pid] = st
	}
	return st
}

func packetPID(pkt []byte) uint16 {
	return uint16(pkt[1]&0x1F)<<8 | uint16(pkt[2])
}

// Feed processes one 188-byte TS packet. It returns a non-nil *Flush when
// a segment or fragment boundary fires. A sync-byte error is reported via
// the returned error; the packet is not accumulated.
func (s *Segmenter) Feed(packet []byte) (*Flush, error) {
	pkt, err := mpegts.Parse(packet)
	if err != nil {
		return nil, ErrSyncByte
	}
	hdr := pkt.Header
	payload := pkt.Payload

	if hdr.PayloadUnitStartIndicator {
		s.stateFor(hdr.PID).lastPos = len(s.packets)
	}

	isKey := false
	switch {
	case hdr.PID == mpegts.PIDPAT:
		_, _ = s.pat.Feed(payload, hdr.PayloadUnitStartIndicator, hdr.ContinuityCounter)
	case s.pat.FirstPMT.Present && hdr.PID == s.pat.FirstPMT.PID:
		if s.pmt == nil || s.pmt.PID != hdr.PID {
			s.pmt = mpegts.NewPMT(hdr.PID)
		}
		_, _ = s.pmt.Feed(payload, hdr.PayloadUnitStartIndicator, hdr.ContinuityCounter)
	case s.pmt != nil && s.pmt.FirstVideoPresent && hdr.PID == s.pmt.FirstVideoPID:
		isKey = s.feedVideoKeyPid(payload, hdr.PayloadUnitStartIndicator)
	case s.pmt != nil && !s.pmt.FirstVideoPresent && s.pmt.FirstADTSAudioPresent && hdr.PID == s.pmt.FirstADTSAudioPID:
		isKey = s.feedAudioKeyPid(hdr.PayloadUnitStartIndicator)
	}
	if s.pmt != nil && s.pmt.FirstADTSAudioPresent && hdr.PID == s.pmt.FirstADTSAudioPID && hdr.PayloadUnitStartIndicator {
		s.audioArrived = true
	}

	flush := s.decideBoundary(isKey)

	s.packets = append(s.packets, packet...)
	return flush, nil
}

// feedVideoKeyPid runs IRAP detection on a video-keyPid payload. On every
// unit-start it resets the NAL scanner (a new access unit begins), snapshots
// beforeKeyStart for every tracked PID, extracts the PES timestamp, and
// considers marking a fragment boundary.
func (s *Segmenter) feedVideoKeyPid(payload []byte, unitStart bool) bool {
	if !unitStart {
		return s.scanIRAP(payload)
	}

	for _, st := range s.unitStart {
		st.beforeKeyStart = st.lastPos
	}
	if s.videoScanner != nil {
		s.videoScanner.Reset()
	}

	if pts, ok := pesPTS(payload); ok {
		s.curPts = pts
		if !s.ptsValid {
			s.lastSegPts = pts
			s.lastFragPts = pts
			s.ptsValid = true
		}
	}

	nalStart := pesHeaderEnd(payload)
	key := false
	if nalStart >= 0 && nalStart < len(payload) {
		key = s.scanIRAP(payload[nalStart:])
	}

	s.maybeMarkFragment()
	return key
}

func (s *Segmenter) scanIRAP(data []byte) bool {
	if s.videoScanner == nil {
		s.videoScanner = nal.NewScanner(s.pmt.FirstVideoStreamType == mpegts.StreamTypeHEVC)
	}
	if !s.videoScanner.Feed(data) {
		return false
	}
	if s.isFirstKey {
		s.isFirstKey = false
		return false
	}
	return true
}

// feedAudioKeyPid treats every unit-start as a key when there is no video
// stream to drive segmentation.
func (s *Segmenter) feedAudioKeyPid(unitStart bool) bool {
	if !unitStart {
		return false
	}
	for _, st := range s.unitStart {
		st.beforeKeyStart = st.lastPos
	}
	if s.isFirstKey {
		s.isFirstKey = false
		return false
	}
	return true
}

// maybeMarkFragment marks the current video unit-start as the start of the
// next fragment once enough time has passed since the last one, deferring
// until the first audio packet has arrived if the PMT advertises audio.
func (s *Segmenter) maybeMarkFragment() {
	if !s.cfg.Mp4Mode || s.cfg.TargetFragDurationMsec == 0 || s.markedFragSet {
		return
	}
	if s.pmt != nil && s.pmt.FirstADTSAudioPresent && !s.audioArrived {
		return
	}
	elapsedMsec := mpegts.ModDiff33(s.curPts, s.lastFragPts) / 90
	if elapsedMsec < uint64(s.cfg.TargetFragDurationMsec) {
		return
	}
	s.markedFragPts = s.curPts
	for _, st := range s.unitStart {
		st.beforeMarkedKeyStart = st.lastPos
	}
	s.markedFragSet = true
}

// decideBoundary implements spec §4.E's boundary decision and, when one
// fires, performs the flush-reordering split.
func (s *Segmenter) decideBoundary(isKey bool) *Flush {
	ptsDiff := mpegts.ModDiff33(s.curPts, s.lastSegPts)
	isSegmentKey := isKey && ptsDiff >= uint64(s.targetDurationMsec)*90

	pending := len(s.packets)
	forceSegment := (s.cfg.SegMaxBytes != 0 && uint64(s.segBytesSoFar+pending+188) > s.cfg.SegMaxBytes) ||
		uint64(pending+188) > s.cfg.FragMaxBytes

	if isSegmentKey || forceSegment {
		return s.flushSegment(isKey, forceSegment, ptsDiff)
	}

	if s.createFragmentDue() {
		return s.flushFragment()
	}

	return nil
}

func (s *Segmenter) createFragmentDue() bool {
	if !s.cfg.Mp4Mode || !s.markedFragSet {
		return false
	}
	elapsedMsec := mpegts.ModDiff33(s.curPts, s.markedFragPts) / 90
	return elapsedMsec >= uint64(s.cfg.TargetFragDurationMsec)/4
}

func (s *Segmenter) flushSegment(isKey, forced bool, ptsDiff uint64) *Flush {
	var flushed, remaining []byte
	if isKey {
		splitPos := s.unitStart[s.keyPidHint()].beforeKeyStart
		flushed, remaining = s.splitAndReorder(splitPos, func(st *unitStartState) int { return st.beforeKeyStart })
	} else {
		flushed = append([]byte(nil), s.packets...)
		s.forcedSegmentationCount++
	}

	durationMsec, residual := ticksToMsec(ptsDiff, s.durationResidualTicks)
	s.durationResidualTicks = residual

	s.packets = remaining
	s.unitStart = make(map[uint16]*unitStartState)
	s.segBytesSoFar = 0
	s.markedFragSet = false
	s.lastSegPts = s.curPts
	s.lastFragPts = s.curPts
	s.targetDurationMsec = s.cfg.TargetDurationMsec
	s.segCount = (s.segCount + 1) & 0xFFFFFF

	return &Flush{Kind: FlushSegment, Packets: flushed, Forced: forced && !isKey, DurationMsec: durationMsec}
}

func (s *Segmenter) flushFragment() *Flush {
	splitPos := s.unitStart[s.keyPidHint()].beforeMarkedKeyStart
	flushed, remaining := s.splitAndReorder(splitPos, func(st *unitStartState) int { return st.beforeMarkedKeyStart })

	s.segBytesSoFar += len(flushed)
	s.packets = remaining
	s.markedFragSet = false
	s.lastFragPts = s.curPts

	return &Flush{Kind: FlushFragment, Packets: flushed}
}

// keyPidHint returns whichever PID is currently driving segmentation
// decisions, for indexing the split-position snapshot. It is always
// present in s.unitStart by the time a flush is considered, since a key
// can only be signalled after that PID's unit-start ran.
func (s *Segmenter) keyPidHint() uint16 {
	if s.pmt != nil && s.pmt.FirstVideoPresent {
		return s.pmt.FirstVideoPID
	}
	if s.pmt != nil {
		return s.pmt.FirstADTSAudioPID
	}
	return 0
}

// splitAndReorder implements the flush-reordering rule of spec §4.E: bring
// at most one PAT and one PMT packet (in that order) preceding splitPos to
// the front, then any other pre-split packet whose PID's last unit-start
// precedes the split (a complete PES continuation), with the remainder —
// including packets at or after splitPos — becoming the next buffer.
func (s *Segmenter) splitAndReorder(splitPos int, snapshot func(*unitStartState) int) (flushed, remaining []byte) {
	pmtPID := uint16(0xFFFF)
	if s.pmt != nil {
		pmtPID = s.pmt.PID
	}

	bringState := 0
	for i := 0; i+188 <= len(s.packets) && i < splitPos && bringState < 2; i += 188 {
		pid := packetPID(s.packets[i : i+188])
		if (pid == mpegts.PIDPAT && bringState == 0) || (pid == pmtPID && bringState == 1) {
			bringState++
			flushed = append(flushed, s.packets[i:i+188]...)
		}
	}

	bringState = 0
	for i := 0; i+188 <= len(s.packets); i += 188 {
		if i >= splitPos {
			remaining = append(remaining, s.packets[i:i+188]...)
			continue
		}
		pid := packetPID(s.packets[i : i+188])
		if (pid == mpegts.PIDPAT && bringState == 0) || (pid == pmtPID && bringState == 1) {
			bringState++
			continue // already inserted above
		}
		st, ok := s.unitStart[pid]
		if !ok || i < min(st.lastPos, snapshot(st)) {
			flushed = append(flushed, s.packets[i:i+188]...)
		} else {
			remaining = append(remaining, s.packets[i:i+188]...)
		}
	}
	return flushed, remaining
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ticksToMsec converts a 90kHz tick count to milliseconds, carrying the
// sub-millisecond remainder across calls the way the original's
// durationMsecResidual accumulator does, so rounding error never
// accumulates across many segments.
func ticksToMsec(ticks uint64, residual uint32) (msec uint32, newResidual uint32) {
	msec = uint32(ticks / 90)
	residual += uint32(ticks % 90)
	msec += residual / 90
	residual %= 90
	return msec, residual
}

// pesPTS extracts the PTS from a PES payload beginning at a unit-start,
// returning ok=false when no PTS is present (PTS_DTS_indicator < 2) or the
// payload is too short.
func pesPTS(payload []byte) (uint64, bool) {
	if len(payload) < 14 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return 0, false
	}
	if mpegts.PTSDTSIndicator(payload) < 2 {
		return 0, false
	}
	return mpegts.GetPESTimestamp(payload[9:14]), true
}

// pesHeaderEnd returns the payload offset where the PES optional header
// ends (and elementary stream data, here Annex-B NAL units, begins), or -1
// if payload is too short to contain one.
func pesHeaderEnd(payload []byte) int {
	hdrLen := mpegts.PESOptionalHeaderLen(payload)
	if hdrLen < 0 {
		return -1
	}
	return 9 + hdrLen
}
