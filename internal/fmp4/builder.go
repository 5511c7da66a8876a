package fmp4

import (
	"github.com/zsiec/tsmemseg/internal/mpegts"
	"github.com/zsiec/tsmemseg/internal/paramsets"
)

// decodeTimeCapTicks is the cap (in 90kHz ticks, ~10s) applied whenever a
// decode-time base is synchronized against a peer track or a fresh PTS,
// so a PCR discontinuity can't produce a huge forward jump.
const decodeTimeCapTicks = 900000

type pesAccumulator struct {
	counter int
	buf     []byte
}

// Builder accumulates elementary-stream samples observed across TS
// packets belonging to the video/audio/ID3 PIDs of one program and turns
// them into fMP4 boxes: a one-time init segment (ftyp+moov) and, per
// call to Process, zero or more moof+mdat fragments.
type Builder struct {
	videoPID, audioPID, id3PID uint16
	isHEVC                     bool

	videoPes pesAccumulator
	audioPes pesAccumulator
	id3Pes   pesAccumulator

	video *paramsets.VideoParams
	audio *paramsets.AudioParams

	moovBuilt  bool
	initHeader []byte

	videoPTS, videoDTS int64
	videoDecodeTime     uint64
	videoDecodeTimeDTS  int64

	audioPTS            int64
	audioDecodeTime     uint64
	audioDecodeTimePTS  int64

	videoMdat    []byte
	videoSamples []videoSample

	audioMdat         []byte
	audioSampleSizes  []int
	adtsWorkspace     []byte

	pendingEmsg []byte

	fragmentCount         uint32
	fragDurationResidual  int

	lastFragDurationTicks int
}

// NewBuilder returns a Builder for the given PIDs (0 = absent) and
// video codec (isHEVC selects HEVC NAL unit type numbering over AVC's).
func NewBuilder(videoPID, audioPID, id3PID uint16, isHEVC bool) *Builder {
	return &Builder{
		videoPID: videoPID, audioPID: audioPID, id3PID: id3PID, isHEVC: isHEVC,
		videoPTS: -1, videoDTS: -1, videoDecodeTimeDTS: -1,
		audioPTS: -1, audioDecodeTimePTS: -1,
	}
}

// HeaderReady reports whether BuildInit has already run; Init returns
// nil until then.
func (b *Builder) HeaderReady() bool { return b.moovBuilt }

// LastFragmentDurationMsec returns the video track duration (in
// milliseconds, 90kHz ticks rounded down) of the most recent video
// fragment produced by Process, for the caller's ring fragment-duration
// bookkeeping. Zero if the last Process call produced no video fragment.
func (b *Builder) LastFragmentDurationMsec() uint32 {
	return uint32(b.lastFragDurationTicks / 90)
}

// Init returns the one-time ftyp+moov header, or nil if not yet built.
func (b *Builder) Init() []byte { return b.initHeader }

// Process consumes a buffer of contiguous 188-byte TS packets (as
// delivered by the segmenter on a flush boundary) and returns any
// fragment bytes (a pending emsg, followed by zero, one, or two
// moof+mdat pairs) produced from samples completed within this call.
// endsAtUnitStart tells Process whether a video PES straddling the end
// of packets should be flushed as complete (true when the caller
// guarantees packets boundaries align to PES unit starts).
func (b *Builder) Process(packets []byte, endsAtUnitStart bool) []byte {
	var baseVideoDTS int64 = -1
	var baseAudioPTS int64 = -1
	b.pendingEmsg = nil
	b.videoMdat = nil
	b.videoSamples = nil
	b.audioMdat = nil
	b.audioSampleSizes = nil
	b.lastFragDurationTicks = 0

	for off := 0; off+mpegts.PacketSize <= len(packets); off += mpegts.PacketSize {
		pkt, err := mpegts.Parse(packets[off : off+mpegts.PacketSize])
		if err != nil {
			continue
		}
		hdr := pkt.Header
		if hdr.PID == 0 || (hdr.PID != b.videoPID && hdr.PID != b.audioPID && hdr.PID != b.id3PID) {
			continue
		}
		payload := pkt.Payload

		acc := b.accumulatorFor(hdr.PID)

		if hdr.PayloadUnitStartIndicator {
			acc.counter = int(hdr.ContinuityCounter)
			if pesComplete, length := pesAccumulated(acc.buf); pesComplete && length == 0 && hdr.PID == b.videoPID {
				dts := b.addVideoPES(acc.buf)
				if baseVideoDTS < 0 {
					baseVideoDTS = dts
				}
			}
			acc.buf = append([]byte(nil), payload...)
		} else if len(acc.buf) > 0 {
			acc.counter = (acc.counter + 1) & 0x0f
			if acc.counter == int(hdr.ContinuityCounter) {
				acc.buf = append(acc.buf, payload...)
			} else {
				acc.buf = nil
			}
		}

		if complete, length := pesAccumulated(acc.buf); complete && length != 0 && len(acc.buf) >= 6+length {
			acc.buf = acc.buf[:6+length]
			if acc.buf[0] == 0 && acc.buf[1] == 0 && acc.buf[2] == 1 {
				switch hdr.PID {
				case b.videoPID:
					dts := b.addVideoPES(acc.buf)
					if baseVideoDTS < 0 {
						baseVideoDTS = dts
					}
				case b.audioPID:
					pts := b.addAudioPES(acc.buf)
					if baseAudioPTS < 0 {
						baseAudioPTS = pts
					}
				case b.id3PID:
					b.addID3PES(acc.buf)
				}
			}
			acc.buf = nil
		}
	}

	if endsAtUnitStart {
		if complete, length := pesAccumulated(b.videoPes.buf); complete && length == 0 {
			dts := b.addVideoPES(b.videoPes.buf)
			if baseVideoDTS < 0 {
				baseVideoDTS = dts
			}
			b.videoPes.buf = nil
		}
	}

	if !b.moovBuilt {
		videoReady := b.videoPID == 0 || b.video != nil
		audioReady := b.audioPID == 0 || b.audio != nil
		if videoReady && audioReady {
			b.initHeader = BuildInit(b.video, b.audio)
			b.moovBuilt = true
		}
	}
	if !b.moovBuilt {
		return nil
	}

	out := append([]byte(nil), b.pendingEmsg...)
	if len(b.videoSamples) > 0 || len(b.audioSampleSizes) > 0 {
		b.rebaseDecodeTimes(baseVideoDTS, baseAudioPTS)

		if len(b.videoSamples) > 0 {
			b.fragmentCount++
			var duration int
			out, duration = pushVideoFragment(out, b.fragmentCount, b.videoDecodeTime, b.videoSamples, b.videoMdat)
			b.lastFragDurationTicks = duration
		}
		if len(b.audioSampleSizes) > 0 {
			b.fragmentCount++
			audioDecodeTimeTicks := b.audioDecodeTime * uint64(b.audio.SamplingFrequency) / 90000
			out = pushAudioFragment(out, b.fragmentCount, audioDecodeTimeTicks, b.audioSampleSizes, b.audioMdat)
		}
	}
	return out
}

func (b *Builder) accumulatorFor(pid uint16) *pesAccumulator {
	switch pid {
	case b.videoPID:
		return &b.videoPes
	case b.audioPID:
		return &b.audioPes
	default:
		return &b.id3Pes
	}
}

// pesAccumulated reports whether buf starts with a PES start code and,
// if so, its declared PES_packet_length (0 means "unbounded, keep
// reading until the next unit start").
func pesAccumulated(buf []byte) (bool, int) {
	if len(buf) < 6 || buf[0] != 0 || buf[1] != 0 || buf[2] != 1 {
		return false, 0
	}
	return true, int(buf[4])<<8 | int(buf[5])
}

func (b *Builder) rebaseDecodeTimes(baseVideoDTS, baseAudioPTS int64) {
	if baseVideoDTS >= 0 && b.videoDecodeTimeDTS >= 0 {
		diff := mpegts.ModDiff33(uint64(baseVideoDTS), uint64(b.videoDecodeTimeDTS))
		if diff < 1<<32 {
			b.videoDecodeTime += diff
		}
		b.videoDecodeTimeDTS = baseVideoDTS
	}
	if baseAudioPTS >= 0 && b.audioDecodeTimePTS >= 0 {
		diff := mpegts.ModDiff33(uint64(baseAudioPTS), uint64(b.audioDecodeTimePTS))
		if diff < 1<<32 {
			b.audioDecodeTime += diff
		}
		b.audioDecodeTimePTS = baseAudioPTS
	}

	if b.videoDecodeTimeDTS < 0 && baseVideoDTS >= 0 {
		switch {
		case b.audioDecodeTimePTS >= 0:
			diff := mpegts.ModDiff33(uint64(int64(b.audioDecodeTime)+baseVideoDTS), uint64(b.audioDecodeTimePTS))
			b.videoDecodeTime = capTicks(diff)
		case baseAudioPTS >= 0:
			diff := mpegts.ModDiff33(uint64(baseVideoDTS), uint64(baseAudioPTS))
			b.videoDecodeTime = capTicks(diff)
		}
		b.videoDecodeTimeDTS = baseVideoDTS
	}
	if b.audioDecodeTimePTS < 0 && baseAudioPTS >= 0 {
		if b.videoDecodeTimeDTS >= 0 {
			diff := mpegts.ModDiff33(uint64(int64(b.videoDecodeTime)+baseAudioPTS), uint64(b.videoDecodeTimeDTS))
			b.audioDecodeTime = capTicks(diff)
		}
		b.audioDecodeTimePTS = baseAudioPTS
	}
}

func capTicks(diff uint64) uint64 {
	if diff >= 1<<32 {
		return 0
	}
	if diff > decodeTimeCapTicks {
		return decodeTimeCapTicks
	}
	return diff
}
