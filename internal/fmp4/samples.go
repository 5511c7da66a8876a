package fmp4

import (
	"bytes"

	"github.com/zsiec/tsmemseg/internal/mpegts"
	"github.com/zsiec/tsmemseg/internal/paramsets"
)

func (b *Builder) videoNALType(firstByte byte) byte {
	if b.isHEVC {
		return paramsets.HEVCNALType(firstByte)
	}
	return firstByte & 0x1F
}

func (b *Builder) ensureVideo() *paramsets.VideoParams {
	if b.video == nil {
		b.video = &paramsets.VideoParams{IsHEVC: b.isHEVC, NumTemporalLayers: 1}
	}
	return b.video
}

// addVideoPES extracts the PTS/DTS, drops AUD/SEI, tracks parameter-set
// NALs, assembles one length-prefixed sample into videoMdat, and returns
// the DTS this PES carried (for decode-time base tracking).
func (b *Builder) addVideoPES(pes []byte) int64 {
	if len(pes) < 9 {
		return b.videoDTS
	}
	streamID := pes[3]
	if streamID&0xf0 != 0xe0 {
		return b.videoDTS
	}
	payloadPos := 9 + int(pes[8])
	if payloadPos >= len(pes) {
		return b.videoDTS
	}

	lastDTS := b.videoDTS
	ptsDtsFlags := pes[7] >> 6
	if ptsDtsFlags >= 2 && len(pes) >= 14 {
		b.videoPTS = int64(mpegts.GetPESTimestamp(pes[9:]))
		b.videoDTS = b.videoPTS
		if ptsDtsFlags == 3 && len(pes) >= 19 {
			b.videoDTS = int64(mpegts.GetPESTimestamp(pes[14:]))
		}
	}

	parameterChanged := false
	isKey := false
	var sampleSize uint32

	for _, nal := range splitNALUnits(pes[payloadPos:]) {
		if len(nal) == 0 {
			continue
		}
		nalType := b.videoNALType(nal[0])

		switch {
		case b.isHEVC && nalType == paramsets.HEVCNALVPS:
			v := b.ensureVideo()
			if !bytes.Equal(v.VPS, nal) {
				if !b.moovBuilt {
					paramsets.ParseHEVCVPS(nal, v)
				} else {
					parameterChanged = true
				}
			}

		case nalType == spsType(b.isHEVC):
			v := b.ensureVideo()
			if !bytes.Equal(v.SPS, nal) {
				if !b.moovBuilt {
					b.parseAndMergeSPS(v, nal)
				} else {
					parameterChanged = true
				}
			}

		case nalType == ppsType(b.isHEVC):
			v := b.ensureVideo()
			if !bytes.Equal(v.PPS, nal) {
				if !b.moovBuilt {
					if b.isHEVC {
						paramsets.ParseHEVCPPS(nal, v)
					} else {
						v.PPS = append([]byte(nil), nal...)
					}
				} else {
					parameterChanged = true
				}
			}

		case nalType == audType(b.isHEVC):
			// AUD dropped.

		case b.isHEVC && (nalType == paramsets.HEVCNALSEIPfx || nalType == paramsets.HEVCNALSEISfx):
			// SEI dropped.
		case !b.isHEVC && nalType == paramsets.AVCNALSEI:
			// SEI dropped.

		default:
			if b.isHEVC {
				if nalType >= paramsets.HEVCNALBLAWLP && nalType <= paramsets.HEVCNALCRANut {
					isKey = true
				}
			} else {
				if nalType == paramsets.AVCNALIDR {
					isKey = true
				} else if nalType == paramsets.AVCNALSlice && avcSliceIsIntra(nal) {
					isKey = true
				}
			}
			sampleSize += 4 + uint32(len(nal))
			b.videoMdat = appendUint32(b.videoMdat, uint32(len(nal)))
			b.videoMdat = append(b.videoMdat, nal...)
		}
	}

	wasHEVC := b.video != nil && b.moovBuilt && b.video.IsHEVC != b.isHEVC
	if wasHEVC {
		parameterChanged = true
	}

	if b.video == nil || !b.video.Valid || parameterChanged {
		b.videoMdat = nil
		b.videoSamples = nil
		return b.videoDTS
	}

	diff := mpegts.ModDiff33(uint64(b.videoDTS), uint64(lastDTS))
	duration := -1
	if lastDTS >= 0 && diff <= 900000 {
		duration = int(diff)
	}
	ctsDiff := mpegts.ModDiff33(uint64(b.videoPTS), uint64(b.videoDTS))
	cts := 0
	if ctsDiff <= 900000 {
		cts = int(ctsDiff)
	}

	b.videoSamples = append(b.videoSamples, videoSample{
		size:     sampleSize,
		isKey:    isKey,
		duration: duration,
		cts:      cts,
	})
	return b.videoDTS
}

func (b *Builder) parseAndMergeSPS(v *paramsets.VideoParams, nal []byte) {
	if b.isHEVC {
		parsed, ok := paramsets.ParseHEVCSPS(nal)
		if !ok {
			v.Valid = false
			return
		}
		v.Valid = true
		v.CodecWidth, v.CodecHeight = parsed.CodecWidth, parsed.CodecHeight
		v.SARWidth, v.SARHeight = parsed.SARWidth, parsed.SARHeight
		v.ChromaFormatIDC = parsed.ChromaFormatIDC
		v.BitDepthLumaMinus8, v.BitDepthChromaMinus8 = parsed.BitDepthLumaMinus8, parsed.BitDepthChromaMinus8
		v.GeneralProfileSpace, v.GeneralTierFlag, v.GeneralProfileIDC = parsed.GeneralProfileSpace, parsed.GeneralTierFlag, parsed.GeneralProfileIDC
		v.CompatibilityFlags = parsed.CompatibilityFlags
		v.ConstraintFlags = parsed.ConstraintFlags
		v.LevelIDC = parsed.LevelIDC
		v.MinSpatialSegmentationIDC = parsed.MinSpatialSegmentationIDC
		v.SPS = parsed.SPS
		return
	}
	parsed, ok := paramsets.ParseAVCSPS(nal)
	if !ok {
		v.Valid = false
		return
	}
	v.Valid = true
	v.CodecWidth, v.CodecHeight = parsed.CodecWidth, parsed.CodecHeight
	v.SARWidth, v.SARHeight = parsed.SARWidth, parsed.SARHeight
	v.ChromaFormatIDC = parsed.ChromaFormatIDC
	v.BitDepthLumaMinus8, v.BitDepthChromaMinus8 = parsed.BitDepthLumaMinus8, parsed.BitDepthChromaMinus8
	v.SPS = parsed.SPS
}

func spsType(isHEVC bool) byte {
	if isHEVC {
		return paramsets.HEVCNALSPS
	}
	return paramsets.AVCNALSPS
}

func ppsType(isHEVC bool) byte {
	if isHEVC {
		return paramsets.HEVCNALPPS
	}
	return paramsets.AVCNALPPS
}

func audType(isHEVC bool) byte {
	if isHEVC {
		return paramsets.HEVCNALAUD
	}
	return paramsets.AVCNALAUD
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// avcSliceIsIntra reads first_mb_in_slice and slice_type from a non-IDR
// AVC slice header to catch an all-intra picture that arrived without an
// IDR NAL (slice_type 2/4/7/9 — I or SI). Emulation-prevention bytes are
// not stripped: the fields read here are always small enough that a 0x03
// escape byte cannot legitimately appear in their encoding.
func avcSliceIsIntra(nal []byte) bool {
	if len(nal) < 5 || (nal[1] == 0 && nal[2] == 0 && nal[3] == 3) {
		return false
	}
	buf := nal[1:5]
	pos := 0
	readUELocal(buf, &pos) // first_mb_in_slice
	switch readUELocal(buf, &pos) {
	case 2, 4, 7, 9:
		return true
	}
	return false
}

func readBitLocal(data []byte, pos *int) int {
	idx := *pos / 8
	if idx >= len(data) {
		return 0
	}
	bit := (data[idx] >> uint(7-*pos%8)) & 1
	*pos++
	return int(bit)
}

func readUELocal(data []byte, pos *int) int {
	n := 0
	for n < 32 {
		if readBitLocal(data, pos) != 0 {
			break
		}
		n++
	}
	if n == 0 {
		return 0
	}
	v := 0
	for i := 0; i < n; i++ {
		v = v<<1 | readBitLocal(data, pos)
	}
	return (1<<uint(n) - 1) + v
}

// splitNALUnits scans Annex-B start codes in a fully-buffered PES
// payload and returns each contained NAL unit's bytes (header included,
// start code excluded). Unlike internal/nal.Scanner — which only needs a
// yes/no IRAP signal across a streamed, packet-at-a-time feed — this
// walks a complete payload in memory and must hand back exact NAL
// boundaries for sample framing.
func splitNALUnits(payload []byte) [][]byte {
	var out [][]byte
	nalPos := 0
	i := 2
	for {
		atStartCode := i < len(payload) && payload[i] == 1 && i >= 2 && payload[i-1] == 0 && payload[i-2] == 0
		if i >= len(payload) || atStartCode {
			if nalPos != 0 {
				end := len(payload)
				if i < len(payload) {
					end = i - 2
					if i >= 3 && payload[i-3] == 0 {
						end--
					}
				}
				if end > nalPos {
					out = append(out, payload[nalPos:end])
				}
			}
			if i >= len(payload) {
				break
			}
			nalPos = i + 1
			i += 3
			continue
		}
		if payload[i] > 0 {
			i += 3
		} else {
			i++
		}
	}
	return out
}

// syncADTSPayload appends newData to workspace, resynchronizing on the
// ADTS 0xFFFx sync word when the workspace does not already start with
// one (workspace[0]==0 is the "already synced" sentinel the builder
// leaves behind after consuming a frame).
func syncADTSPayload(workspace *[]byte, newData []byte) bool {
	if len(*workspace) > 0 && (*workspace)[0] == 0 {
		*workspace = append(*workspace, newData...)
		(*workspace)[0] = 0xff
		return true
	}
	*workspace = append(*workspace, newData...)
	i := 0
	for ; i < len(*workspace); i++ {
		if (*workspace)[i] == 0xff && (i+1 >= len(*workspace) || (*workspace)[i+1]&0xf0 == 0xf0) {
			break
		}
	}
	*workspace = (*workspace)[i:]
	return len(*workspace) >= 2
}

func (b *Builder) addAudioPES(pes []byte) int64 {
	if len(pes) < 9 {
		return b.audioPTS
	}
	streamID := pes[3]
	if streamID&0xe0 != 0xc0 {
		return b.audioPTS
	}
	payloadPos := 9 + int(pes[8])
	if payloadPos >= len(pes) || !syncADTSPayload(&b.adtsWorkspace, pes[payloadPos:]) {
		return b.audioPTS
	}

	ptsDtsFlags := pes[7] >> 6
	if ptsDtsFlags >= 2 && len(pes) >= 14 {
		b.audioPTS = int64(mpegts.GetPESTimestamp(pes[9:]))
	}

	for len(b.adtsWorkspace) > 0 {
		if b.adtsWorkspace[0] != 0xff {
			b.adtsWorkspace = nil
			break
		}
		if len(b.adtsWorkspace) < 7 {
			break
		}
		if b.adtsWorkspace[1]&0xf0 != 0xf0 {
			b.adtsWorkspace = nil
			break
		}

		protectionAbsent := b.adtsWorkspace[1]&0x01 != 0
		headerSize := 9
		if protectionAbsent {
			headerSize = 7
		}

		frameLen, err := paramsets.ADTSFrameLength(b.adtsWorkspace)
		if err != nil {
			break
		}
		if frameLen < headerSize {
			b.adtsWorkspace = nil
			break
		}
		if len(b.adtsWorkspace) < frameLen {
			break
		}

		if audio, ok := paramsets.ParseADTSHeader(b.adtsWorkspace); ok {
			if !b.moovBuilt {
				b.audio = &audio
			}
			if b.audio != nil && b.audio.Profile == audio.Profile &&
				b.audio.SamplingFrequencyIndex == audio.SamplingFrequencyIndex &&
				b.audio.ChannelConfiguration == audio.ChannelConfiguration {
				b.audioMdat = append(b.audioMdat, b.adtsWorkspace[headerSize:frameLen]...)
				b.audioSampleSizes = append(b.audioSampleSizes, frameLen-headerSize)
			}
		}
		b.adtsWorkspace = b.adtsWorkspace[frameLen:]
	}
	if len(b.adtsWorkspace) > 0 {
		b.adtsWorkspace[0] = 0
	}
	return b.audioPTS
}

func (b *Builder) addID3PES(pes []byte) {
	const privateStream1 = 0xbd
	if len(pes) < 14 || pes[3] != privateStream1 {
		return
	}
	payloadPos := 9 + int(pes[8])
	ptsDtsFlags := pes[7] >> 6
	if payloadPos >= len(pes) || ptsDtsFlags < 2 {
		return
	}

	emsgTime := b.audioDecodeTime
	mediaTimePts := b.audioDecodeTimePTS
	if b.videoDecodeTimeDTS >= 0 {
		emsgTime = b.videoDecodeTime
		mediaTimePts = b.videoDecodeTimeDTS
	}
	if mediaTimePts >= 0 {
		pts := mpegts.GetPESTimestamp(pes[9:])
		diff := mpegts.ModDiff33(pts, uint64(mediaTimePts))
		emsgTime += capTicks(diff)
	}
	b.pendingEmsg = pushEmsg(b.pendingEmsg, emsgTime, pes[payloadPos:])
}
