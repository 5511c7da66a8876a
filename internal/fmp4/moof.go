package fmp4

import "encoding/binary"

type videoSample struct {
	size     uint32
	isKey    bool
	duration int // -1 if not yet known
	cts      int
}

// nextKnownDuration returns the duration of the first sample at or after
// i whose duration is known, or the 3000 (33ms@90kHz) fallback used when
// no later sample in the fragment supplies one.
func nextKnownDuration(samples []videoSample, i int) int {
	for j := i; j < len(samples); j++ {
		if samples[j].duration >= 0 {
			return samples[j].duration
		}
	}
	return 3000
}

// pushVideoFragment appends one moof+mdat pair for the video track to dst
// and returns the extended slice and the fragment's total sample duration
// in 90kHz ticks, for the caller's running fragment-duration-in-milliseconds
// accounting.
func pushVideoFragment(dst []byte, fragCount uint32, decodeTime uint64, samples []videoSample, mdat []byte) ([]byte, int) {
	moofBegin := len(dst)
	var offsetFieldPos int
	totalDuration := 0

	dst = box(dst, "moof", func(dst []byte) []byte {
		dst = fullBox(dst, "mfhd", 0, func(dst []byte) []byte {
			return put32(dst, fragCount)
		})
		dst = box(dst, "traf", func(dst []byte) []byte {
			dst = fullBox(dst, "tfhd", 0, func(dst []byte) []byte {
				return put32(dst, VideoTrackID)
			})
			dst = fullBox(dst, "tfdt", 0x01000000, func(dst []byte) []byte {
				return put64(dst, decodeTime)
			})
			dst = fullBox(dst, "trun", 0x00000f01, func(dst []byte) []byte {
				dst = put32(dst, uint32(len(samples)))
				offsetFieldPos = len(dst)
				dst = put32(dst, 0) // data_offset, back-patched below
				for i, s := range samples {
					duration := nextKnownDuration(samples, i)
					totalDuration += duration
					flags := uint32(0x01010000)
					if s.isKey {
						flags = 0x02400000
					}
					dst = put32(dst, uint32(duration))
					dst = put32(dst, s.size)
					dst = put32(dst, flags)
					dst = put32(dst, uint32(s.cts))
				}
				return dst
			})
			return dst
		})
		return dst
	})

	dst = box(dst, "mdat", func(dst []byte) []byte {
		dataOffset := uint32(len(dst) - moofBegin)
		binary.BigEndian.PutUint32(dst[offsetFieldPos:], dataOffset)
		return append(dst, mdat...)
	})
	return dst, totalDuration
}

// pushAudioFragment emits one moof+mdat pair for the audio track; only
// per-sample size is present in trun (flags 0x201), duration/flags come
// from tfhd's default_sample_duration/default_sample_flags.
func pushAudioFragment(dst []byte, fragCount uint32, decodeTime uint64, sizes []int, mdat []byte) []byte {
	moofBegin := len(dst)
	var offsetFieldPos int

	dst = box(dst, "moof", func(dst []byte) []byte {
		dst = fullBox(dst, "mfhd", 0, func(dst []byte) []byte {
			return put32(dst, fragCount)
		})
		dst = box(dst, "traf", func(dst []byte) []byte {
			dst = fullBox(dst, "tfhd", 0x000028, func(dst []byte) []byte {
				dst = put32(dst, AudioTrackID)
				dst = put32(dst, 1024) // default_sample_duration
				return put32(dst, 0x02000000) // default_sample_flags
			})
			dst = fullBox(dst, "tfdt", 0x01000000, func(dst []byte) []byte {
				return put64(dst, decodeTime)
			})
			dst = fullBox(dst, "trun", 0x00000201, func(dst []byte) []byte {
				dst = put32(dst, uint32(len(sizes)))
				offsetFieldPos = len(dst)
				dst = put32(dst, 0)
				for _, sz := range sizes {
					dst = put32(dst, uint32(sz))
				}
				return dst
			})
			return dst
		})
		return dst
	})

	dst = box(dst, "mdat", func(dst []byte) []byte {
		dataOffset := uint32(len(dst) - moofBegin)
		binary.BigEndian.PutUint32(dst[offsetFieldPos:], dataOffset)
		return append(dst, mdat...)
	})
	return dst
}
