package fmp4

import "github.com/zsiec/tsmemseg/internal/paramsets"

const (
	VideoTrackID = 1
	AudioTrackID = 2
)

// BuildInit assembles ftyp+moov once the parameter sets needed for each
// present track are known. Either video or audio may be absent (nil).
func BuildInit(video *paramsets.VideoParams, audio *paramsets.AudioParams) []byte {
	var out []byte
	out = box(out, "ftyp", func(dst []byte) []byte {
		dst = putString(dst, "isom")
		dst = put32(dst, 1)
		dst = putString(dst, "isom")
		dst = putString(dst, "avc1")
		return dst
	})
	out = box(out, "moov", func(dst []byte) []byte {
		dst = pushMvhd(dst)
		if video != nil {
			dst = pushVideoTrak(dst, video)
		}
		if audio != nil {
			dst = pushAudioTrak(dst, audio)
		}
		dst = box(dst, "mvex", func(dst []byte) []byte {
			if video != nil {
				dst = pushTrex(dst, VideoTrackID)
			}
			if audio != nil {
				dst = pushTrex(dst, AudioTrackID)
			}
			return dst
		})
		return dst
	})
	return out
}

func pushMvhd(dst []byte) []byte {
	return fullBox(dst, "mvhd", 0, func(dst []byte) []byte {
		dst = put32(dst, 0) // creation_time
		dst = put32(dst, 0) // modification_time
		dst = put32(dst, 1000)
		dst = put32(dst, 0) // duration
		dst = put32(dst, 0x00010000)
		dst = put16(dst, 0x0100)
		dst = put16(dst, 0) // reserved
		dst = put32(dst, 0)
		dst = put32(dst, 0)
		dst = pushUnityMatrix(dst)
		dst = putZeros(dst, 6*4) // pre_defined
		dst = put32(dst, AudioTrackID+1)
		return dst
	})
}

func pushUnityMatrix(dst []byte) []byte {
	dst = put32(dst, 0x00010000)
	dst = put32(dst, 0)
	dst = put32(dst, 0)
	dst = put32(dst, 0)
	dst = put32(dst, 0x00010000)
	dst = put32(dst, 0)
	dst = put32(dst, 0)
	dst = put32(dst, 0)
	dst = put32(dst, 0x40000000)
	return dst
}

func pushTrex(dst []byte, trackID uint32) []byte {
	return fullBox(dst, "trex", 0, func(dst []byte) []byte {
		dst = put32(dst, trackID)
		dst = put32(dst, 1) // default_sample_description_index
		dst = put32(dst, 0) // default_sample_duration
		dst = put32(dst, 0) // default_sample_size
		dst = put32(dst, 0) // default_sample_flags
		return dst
	})
}

func pushVideoTrak(dst []byte, v *paramsets.VideoParams) []byte {
	sarW, sarH := v.SARWidth, v.SARHeight
	if sarW == 0 || sarH == 0 {
		sarW, sarH = 1, 1
	}
	width := (v.CodecWidth*sarW + sarH - 1) / sarH

	return box(dst, "trak", func(dst []byte) []byte {
		dst = fullBox(dst, "tkhd", 0x000003, func(dst []byte) []byte {
			dst = put32(dst, 0) // creation_time
			dst = put32(dst, 0) // modification_time
			dst = put32(dst, VideoTrackID)
			dst = put32(dst, 0) // reserved
			dst = put32(dst, 0) // duration
			dst = put32(dst, 0)
			dst = put32(dst, 0)
			dst = put16(dst, 0) // layer
			dst = put16(dst, 0) // alternate_group
			dst = put16(dst, 0) // volume
			dst = put16(dst, 0) // reserved
			dst = pushUnityMatrix(dst)
			dst = put16(dst, uint16(width))
			dst = put16(dst, 0)
			dst = put16(dst, uint16(v.CodecHeight))
			dst = put16(dst, 0)
			return dst
		})
		dst = box(dst, "mdia", func(dst []byte) []byte {
			dst = fullBox(dst, "mdhd", 0, func(dst []byte) []byte {
				dst = put32(dst, 0)
				dst = put32(dst, 0)
				dst = put32(dst, 90000)
				dst = put32(dst, 0)
				dst = put16(dst, 0x55c4) // language "und"
				dst = put16(dst, 0)
				return dst
			})
			dst = pushHdlr(dst, "vide", "Video Handler")
			dst = box(dst, "minf", func(dst []byte) []byte {
				dst = fullBox(dst, "vmhd", 1, func(dst []byte) []byte {
					return put64(dst, 0)
				})
				dst = pushDinf(dst)
				dst = box(dst, "stbl", func(dst []byte) []byte {
					dst = fullBox(dst, "stsd", 0, func(dst []byte) []byte {
						dst = put32(dst, 1)
						return pushVideoSampleEntry(dst, v)
					})
					dst = pushEmptySampleTables(dst)
					return dst
				})
				return dst
			})
			return dst
		})
		return dst
	})
}

func pushHdlr(dst []byte, handlerType, name string) []byte {
	return fullBox(dst, "hdlr", 0, func(dst []byte) []byte {
		dst = put32(dst, 0)
		dst = putString(dst, handlerType)
		dst = put32(dst, 0)
		dst = put32(dst, 0)
		dst = put32(dst, 0)
		dst = putString(dst, name)
		return append(dst, 0)
	})
}

func pushDinf(dst []byte) []byte {
	return box(dst, "dinf", func(dst []byte) []byte {
		return fullBox(dst, "dref", 0, func(dst []byte) []byte {
			dst = put32(dst, 1)
			return fullBox(dst, "url ", 1, func(dst []byte) []byte { return dst })
		})
	})
}

func pushEmptySampleTables(dst []byte) []byte {
	dst = fullBox(dst, "stts", 0, func(dst []byte) []byte { return put32(dst, 0) })
	dst = fullBox(dst, "stsc", 0, func(dst []byte) []byte { return put32(dst, 0) })
	dst = fullBox(dst, "stsz", 0, func(dst []byte) []byte { dst = put32(dst, 0); return put32(dst, 0) })
	dst = fullBox(dst, "stco", 0, func(dst []byte) []byte { return put32(dst, 0) })
	return dst
}

func pushVideoSampleEntry(dst []byte, v *paramsets.VideoParams) []byte {
	sampleEntryType := "avc1"
	if v.IsHEVC {
		sampleEntryType = "hvc1"
	}
	return box(dst, sampleEntryType, func(dst []byte) []byte {
		dst = putZeros(dst, 6) // reserved
		dst = put16(dst, 1)    // data_reference_index
		dst = put16(dst, 0)    // pre_defined
		dst = put16(dst, 0)    // reserved
		dst = put32(dst, 0)    // pre_defined[0..2]
		dst = put32(dst, 0)
		dst = put32(dst, 0)
		dst = put16(dst, uint16(v.CodecWidth))
		dst = put16(dst, uint16(v.CodecHeight))
		dst = put16(dst, 72) // horizresolution 72 dpi
		dst = put16(dst, 0)
		dst = put16(dst, 72) // vertresolution
		dst = put16(dst, 0)
		dst = put32(dst, 0) // reserved
		dst = put16(dst, 1) // frame_count
		dst = putZeros(dst, 32) // compressorname
		dst = put16(dst, 24) // depth
		dst = put16(dst, 0xffff)
		if v.IsHEVC {
			dst = pushHvcC(dst, v)
		} else {
			dst = pushAvcC(dst, v)
		}
		return dst
	})
}

func pushAvcC(dst []byte, v *paramsets.VideoParams) []byte {
	return box(dst, "avcC", func(dst []byte) []byte {
		dst = append(dst, 1)
		dst = append(dst, v.SPS[1], v.SPS[2], v.SPS[3])
		dst = append(dst, 0xff, 0xe1)
		dst = put16(dst, uint16(len(v.SPS)))
		dst = append(dst, v.SPS...)
		dst = append(dst, 1)
		dst = put16(dst, uint16(len(v.PPS)))
		dst = append(dst, v.PPS...)

		profileIDC := v.SPS[1]
		if profileIDC != 66 && profileIDC != 77 && profileIDC != 88 {
			dst = append(dst, 0xfc|v.ChromaFormatIDC)
			dst = append(dst, 0xf8|v.BitDepthLumaMinus8)
			dst = append(dst, 0xf8|v.BitDepthChromaMinus8)
			dst = append(dst, 0)
		}
		return dst
	})
}

func pushHvcC(dst []byte, v *paramsets.VideoParams) []byte {
	return box(dst, "hvcC", func(dst []byte) []byte {
		dst = append(dst, 1)
		dst = append(dst, (v.GeneralProfileSpace<<6)|(v.GeneralTierFlag<<5)|v.GeneralProfileIDC)
		dst = append(dst, v.CompatibilityFlags[:]...)
		dst = append(dst, v.ConstraintFlags[:]...)
		dst = append(dst, v.LevelIDC)
		dst = put16(dst, uint16(0xf000|v.MinSpatialSegmentationIDC))
		dst = append(dst, byte(0xfc|v.ParallelismType))
		dst = append(dst, 0xfc|v.ChromaFormatIDC)
		dst = append(dst, 0xf8|v.BitDepthLumaMinus8)
		dst = append(dst, 0xf8|v.BitDepthChromaMinus8)
		dst = put16(dst, 0)

		nesting := byte(0)
		if v.TemporalIDNestingFlag {
			nesting = 1
		}
		dst = append(dst, byte((v.NumTemporalLayers&0x07)<<3)|(nesting<<2)|3)

		dst = append(dst, 3) // numOfArrays
		dst = pushHvcCArray(dst, 0x80|32, v.VPS)
		dst = pushHvcCArray(dst, 0x80|33, v.SPS)
		dst = pushHvcCArray(dst, 0x80|34, v.PPS)
		return dst
	})
}

func pushHvcCArray(dst []byte, arrayHeader byte, nal []byte) []byte {
	dst = append(dst, arrayHeader)
	dst = put16(dst, 1) // numNalus
	dst = put16(dst, uint16(len(nal)))
	return append(dst, nal...)
}

func pushAudioTrak(dst []byte, a *paramsets.AudioParams) []byte {
	return box(dst, "trak", func(dst []byte) []byte {
		dst = fullBox(dst, "tkhd", 0x000003, func(dst []byte) []byte {
			dst = put32(dst, 0)
			dst = put32(dst, 0)
			dst = put32(dst, AudioTrackID)
			dst = put32(dst, 0)
			dst = put32(dst, 0)
			dst = put32(dst, 0)
			dst = put32(dst, 0)
			dst = put16(dst, 0)      // layer
			dst = put16(dst, 1)      // alternate_group
			dst = put16(dst, 0x0100) // volume
			dst = put16(dst, 0)
			dst = pushUnityMatrix(dst)
			dst = put32(dst, 0) // width
			dst = put32(dst, 0) // height
			return dst
		})
		dst = box(dst, "mdia", func(dst []byte) []byte {
			dst = fullBox(dst, "mdhd", 0, func(dst []byte) []byte {
				dst = put32(dst, 0)
				dst = put32(dst, 0)
				dst = put32(dst, uint32(a.SamplingFrequency))
				dst = put32(dst, 0)
				dst = put16(dst, 0x55c4)
				dst = put16(dst, 0)
				return dst
			})
			dst = pushHdlr(dst, "soun", "Audio Handler")
			dst = box(dst, "minf", func(dst []byte) []byte {
				dst = fullBox(dst, "smhd", 0, func(dst []byte) []byte {
					dst = put16(dst, 0)
					return put16(dst, 0)
				})
				dst = pushDinf(dst)
				dst = box(dst, "stbl", func(dst []byte) []byte {
					dst = fullBox(dst, "stsd", 0, func(dst []byte) []byte {
						dst = put32(dst, 1)
						return pushAudioSampleEntry(dst, a)
					})
					dst = pushEmptySampleTables(dst)
					return dst
				})
				return dst
			})
			return dst
		})
		return dst
	})
}

func pushAudioSampleEntry(dst []byte, a *paramsets.AudioParams) []byte {
	return box(dst, "mp4a", func(dst []byte) []byte {
		dst = putZeros(dst, 6)
		dst = put16(dst, 1) // data_reference_index
		dst = put32(dst, 0) // reserved
		dst = put32(dst, 0)
		dst = put16(dst, uint16(a.ChannelConfiguration))
		dst = put16(dst, 16) // sample_size
		dst = put32(dst, 0)
		dst = put16(dst, uint16(a.SamplingFrequency))
		dst = put16(dst, 0)
		return pushEsds(dst, a)
	})
}

func pushEsds(dst []byte, a *paramsets.AudioParams) []byte {
	return fullBox(dst, "esds", 0, func(dst []byte) []byte {
		dst = append(dst, 0x03, 25)
		dst = put16(dst, 1)
		dst = append(dst, 0)

		dst = append(dst, 0x04, 17)
		dst = append(dst, 0x40, 0x15)
		dst = append(dst, 0, 0, 0)
		dst = put32(dst, 0)
		dst = put32(dst, 0)

		dst = append(dst, 0x05, 2)
		dst = append(dst, (a.Profile<<3)|(a.SamplingFrequencyIndex>>1))
		dst = append(dst, (a.SamplingFrequencyIndex&0x01)<<7|(a.ChannelConfiguration<<3))

		dst = append(dst, 0x06, 1, 2)
		return dst
	})
}
