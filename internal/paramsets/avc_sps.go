package paramsets

// AVC NAL unit types used by the segmenter and fMP4 builder.
const (
	AVCNALSlice = 1
	AVCNALIDR   = 5
	AVCNALSEI   = 6
	AVCNALSPS   = 7
	AVCNALPPS   = 8
	AVCNALAUD   = 9
)

// chromaProfilesWithExtendedFields are the profile_idc values whose SPS
// carries chroma_format_idc / bit_depth / scaling-matrix fields.
var chromaProfilesWithExtendedFields = map[uint64]bool{
	100: true, 110: true, 122: true, 244: true, 44: true, 83: true,
	86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// ParseAVCSPS parses an H.264 SPS NAL unit (nalu[0] is the NAL header
// byte) and populates the video-relevant fields of VideoParams. It
// returns ok=false on any structural parse failure, in which case
// CodecWidth must be treated as invalid.
func ParseAVCSPS(nalu []byte) (VideoParams, bool) {
	var out VideoParams
	if len(nalu) < 4 {
		return out, false
	}

	rbsp := EBSPToRBSP(nalu[1:])
	r := newBitReader(rbsp)

	profileIDC, err := r.readBits(8)
	if err != nil {
		return out, false
	}
	if err := r.skipBits(8); err != nil { // constraint_set flags + reserved
		return out, false
	}
	if err := r.skipBits(8); err != nil { // level_idc
		return out, false
	}
	if _, err := r.readUE(); err != nil { // seq_parameter_set_id
		return out, false
	}

	chromaFormatIDC := uint64(1)
	separateColourPlane := false

	if chromaProfilesWithExtendedFields[profileIDC] {
		chromaFormatIDC, err = r.readUE()
		if err != nil {
			return out, false
		}
		if chromaFormatIDC == 3 {
			v, err := r.readBits(1)
			if err != nil {
				return out, false
			}
			separateColourPlane = v == 1
		}
		bdLuma, err := r.readUE()
		if err != nil {
			return out, false
		}
		bdChroma, err := r.readUE()
		if err != nil {
			return out, false
		}
		out.BitDepthLumaMinus8 = byte(bdLuma)
		out.BitDepthChromaMinus8 = byte(bdChroma)

		if err := r.skipBits(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return out, false
		}
		scalingMatrixPresent, err := r.readBits(1)
		if err != nil {
			return out, false
		}
		if scalingMatrixPresent == 1 {
			limit := 8
			if chromaFormatIDC == 3 {
				limit = 12
			}
			for i := 0; i < limit; i++ {
				present, err := r.readBits(1)
				if err != nil {
					return out, false
				}
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := r.skipScalingList(size); err != nil {
						return out, false
					}
				}
			}
		}
	}
	out.ChromaFormatIDC = byte(chromaFormatIDC)

	if _, err := r.readUE(); err != nil { // log2_max_frame_num_minus4
		return out, false
	}
	picOrderCntType, err := r.readUE()
	if err != nil {
		return out, false
	}
	switch picOrderCntType {
	case 0:
		if _, err := r.readUE(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return out, false
		}
	case 1:
		if err := r.skipBits(1); err != nil { // delta_pic_order_always_zero_flag
			return out, false
		}
		if _, err := r.readSE(); err != nil { // offset_for_non_ref_pic
			return out, false
		}
		if _, err := r.readSE(); err != nil { // offset_for_top_to_bottom_field
			return out, false
		}
		numRefFrames, err := r.readUE()
		if err != nil {
			return out, false
		}
		for i := uint64(0); i < numRefFrames; i++ {
			if _, err := r.readSE(); err != nil {
				return out, false
			}
		}
	}

	if _, err := r.readUE(); err != nil { // max_num_ref_frames
		return out, false
	}
	if err := r.skipBits(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return out, false
	}

	picWidthMbsMinus1, err := r.readUE()
	if err != nil {
		return out, false
	}
	picHeightMapUnitsMinus1, err := r.readUE()
	if err != nil {
		return out, false
	}
	frameMbsOnly, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if frameMbsOnly == 0 {
		if err := r.skipBits(1); err != nil { // mb_adaptive_frame_field_flag
			return out, false
		}
	}
	if err := r.skipBits(1); err != nil { // direct_8x8_inference_flag
		return out, false
	}

	var cropLeft, cropRight, cropTop, cropBottom uint64
	frameCropping, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if frameCropping == 1 {
		if cropLeft, err = r.readUE(); err != nil {
			return out, false
		}
		if cropRight, err = r.readUE(); err != nil {
			return out, false
		}
		if cropTop, err = r.readUE(); err != nil {
			return out, false
		}
		if cropBottom, err = r.readUE(); err != nil {
			return out, false
		}
	}

	chromaArrayType := chromaFormatIDC
	if separateColourPlane {
		chromaArrayType = 0
	}
	cropUnitX := 2
	if chromaArrayType == 0 || chromaArrayType == 3 {
		cropUnitX = 1
	}
	cropUnitY := 1
	if chromaArrayType == 1 {
		cropUnitY = 2
	}
	cropUnitY *= int(2 - frameMbsOnly)

	out.CodecWidth = int(picWidthMbsMinus1+1)*16 - int(cropLeft+cropRight)*cropUnitX
	out.CodecHeight = int(2-frameMbsOnly)*int(picHeightMapUnitsMinus1+1)*16 - int(cropTop+cropBottom)*cropUnitY

	out.SARWidth, out.SARHeight = 1, 1
	vuiPresent, err := r.readBits(1)
	if err == nil && vuiPresent == 1 {
		parseAVCVUIAspectRatio(r, &out)
	}

	out.SPS = append([]byte(nil), nalu...)
	out.Valid = true
	return out, true
}

func parseAVCVUIAspectRatio(r *bitReader, out *VideoParams) {
	arPresent, err := r.readBits(1)
	if err != nil || arPresent == 0 {
		return
	}
	idc, err := r.readBits(8)
	if err != nil {
		return
	}
	if idc == 255 { // Extended_SAR
		w, err := r.readBits(16)
		if err != nil {
			return
		}
		h, err := r.readBits(16)
		if err != nil {
			return
		}
		out.SARWidth = int(w)
		out.SARHeight = int(h)
		if out.SARHeight < 1 {
			out.SARHeight = 1
		}
		return
	}
	if int(idc) < len(avcSARTable) {
		out.SARWidth = avcSARTable[idc][0]
		out.SARHeight = avcSARTable[idc][1]
		if out.SARWidth == 0 {
			out.SARWidth, out.SARHeight = 1, 1
		}
	}
}
