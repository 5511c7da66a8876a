package paramsets

// ParseHEVCSPS parses an HEVC SPS NAL unit (nalu[0:2] is the 2-byte NAL
// header) and populates VideoParams. It returns ok=false on structural
// failure, in which case CodecWidth must be treated as invalid.
func ParseHEVCSPS(nalu []byte) (VideoParams, bool) {
	var out VideoParams
	out.IsHEVC = true
	if len(nalu) < 4 {
		return out, false
	}

	rbsp := EBSPToRBSP(nalu[2:])
	r := newBitReader(rbsp)

	if err := r.skipBits(4); err != nil { // sps_video_parameter_set_id
		return out, false
	}
	maxSubLayersMinus1, err := r.readBits(3)
	if err != nil {
		return out, false
	}
	if err := r.skipBits(1); err != nil { // sps_temporal_id_nesting_flag
		return out, false
	}

	if !parseHEVCProfileTierLevel(r, &out, maxSubLayersMinus1) {
		return out, false
	}

	if _, err := r.readUE(); err != nil { // sps_seq_parameter_set_id
		return out, false
	}
	chromaFormatIDC, err := r.readUE()
	if err != nil {
		return out, false
	}
	out.ChromaFormatIDC = byte(chromaFormatIDC)
	if chromaFormatIDC == 3 {
		if err := r.skipBits(1); err != nil { // separate_colour_plane_flag
			return out, false
		}
	}

	width, err := r.readUE()
	if err != nil {
		return out, false
	}
	height, err := r.readUE()
	if err != nil {
		return out, false
	}
	out.CodecWidth = int(width)
	out.CodecHeight = int(height)

	confWindow, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if confWindow == 1 {
		left, err1 := r.readUE()
		right, err2 := r.readUE()
		top, err3 := r.readUE()
		bottom, err4 := r.readUE()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return out, false
		}
		subWC, subHC := 1, 1
		switch chromaFormatIDC {
		case 1:
			subWC, subHC = 2, 2
		case 2:
			subWC, subHC = 2, 1
		}
		out.CodecWidth -= int(left+right) * subWC
		out.CodecHeight -= int(top+bottom) * subHC
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

	log2MaxPocLsbMinus4, err := r.readUE()
	if err != nil {
		return out, false
	}

	subLayerOrderingInfoPresent, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	startI := maxSubLayersMinus1
	if subLayerOrderingInfoPresent == 1 {
		startI = 0
	}
	for i := startI; i <= maxSubLayersMinus1; i++ {
		if _, err := r.readUE(); err != nil { // sps_max_dec_pic_buffering_minus1
			return out, false
		}
		if _, err := r.readUE(); err != nil { // sps_max_num_reorder_pics
			return out, false
		}
		if _, err := r.readUE(); err != nil { // sps_max_latency_increase_plus1
			return out, false
		}
	}

	for _, skip := range []string{
		"log2_min_luma_coding_block_size_minus3",
		"log2_diff_max_min_luma_coding_block_size",
		"log2_min_luma_transform_block_size_minus2",
		"log2_diff_max_min_luma_transform_block_size",
		"max_transform_hierarchy_depth_inter",
		"max_transform_hierarchy_depth_intra",
	} {
		_ = skip
		if _, err := r.readUE(); err != nil {
			return out, false
		}
	}

	scalingListEnabled, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if scalingListEnabled == 1 {
		spsScalingListPresent, err := r.readBits(1)
		if err != nil {
			return out, false
		}
		if spsScalingListPresent == 1 {
			if !skipHEVCScalingListData(r) {
				return out, false
			}
		}
	}

	if err := r.skipBits(1); err != nil { // amp_enabled_flag
		return out, false
	}
	if err := r.skipBits(1); err != nil { // sample_adaptive_offset_enabled_flag
		return out, false
	}
	pcmEnabled, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if pcmEnabled == 1 {
		if err := r.skipBits(4 + 4); err != nil {
			return out, false
		}
		if _, err := r.readUE(); err != nil {
			return out, false
		}
		if _, err := r.readUE(); err != nil {
			return out, false
		}
		if err := r.skipBits(1); err != nil { // pcm_loop_filter_disabled_flag
			return out, false
		}
	}

	numShortTermRefPicSets, err := r.readUE()
	if err != nil {
		return out, false
	}
	numDeltaPocs := make([]uint64, numShortTermRefPicSets)
	for i := uint64(0); i < numShortTermRefPicSets; i++ {
		n, ok := parseHEVCShortTermRefPicSet(r, i, numShortTermRefPicSets, numDeltaPocs)
		if !ok {
			return out, false
		}
		numDeltaPocs[i] = n
	}

	longTermPresent, err := r.readBits(1)
	if err != nil {
		return out, false
	}
	if longTermPresent == 1 {
		numLongTerm, err := r.readUE()
		if err != nil {
			return out, false
		}
		pocLsbBits := int(log2MaxPocLsbMinus4) + 4
		for i := uint64(0); i < numLongTerm; i++ {
			if err := r.skipBits(pocLsbBits); err != nil {
				return out, false
			}
			if err := r.skipBits(1); err != nil { // used_by_curr_pic_lt_sps_flag
				return out, false
			}
		}
	}

	if err := r.skipBits(1); err != nil { // sps_temporal_mvp_enabled_flag
		return out, false
	}
	if err := r.skipBits(1); err != nil { // strong_intra_smoothing_enabled_flag
		return out, false
	}

	vuiPresent, err := r.readBits(1)
	if err == nil && vuiPresent == 1 {
		parseHEVCVUI(r, &out, maxSubLayersMinus1)
	}

	out.SPS = append([]byte(nil), nalu...)
	out.Valid = true
	return out, true
}

func skipHEVCScalingListData(r *bitReader) bool {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			predModeFlag, err := r.readBits(1)
			if err != nil {
				return false
			}
			if predModeFlag == 0 {
				if _, err := r.readUE(); err != nil { // scaling_list_pred_matrix_id_delta
					return false
				}
				continue
			}
			coefNum := 64
			if sizeID == 0 {
				coefNum = 16
			}
			if sizeID > 1 {
				if _, err := r.readSE(); err != nil { // scaling_list_dc_coef_minus8
					return false
				}
			}
			for i := 0; i < coefNum; i++ {
				if _, err := r.readSE(); err != nil {
					return false
				}
			}
		}
	}
	return true
}

// parseHEVCShortTermRefPicSet parses st_ref_pic_set(stRpsIdx), including
// the inter-ref-pic-set-prediction variant, and returns NumDeltaPocs for
// this index.
func parseHEVCShortTermRefPicSet(r *bitReader, stRpsIdx, numSets uint64, numDeltaPocs []uint64) (uint64, bool) {
	interPred := uint64(0)
	if stRpsIdx != 0 {
		v, err := r.readBits(1)
		if err != nil {
			return 0, false
		}
		interPred = v
	}

	if interPred == 1 {
		refRpsIdx := stRpsIdx - 1
		if stRpsIdx == numSets {
			deltaIdxMinus1, err := r.readUE()
			if err != nil {
				return 0, false
			}
			refRpsIdx = stRpsIdx - 1 - deltaIdxMinus1
		}
		if err := r.skipBits(1); err != nil { // delta_rps_sign
			return 0, false
		}
		if _, err := r.readUE(); err != nil { // abs_delta_rps_minus1
			return 0, false
		}

		refNumDeltaPocs := uint64(0)
		if int(refRpsIdx) < len(numDeltaPocs) {
			refNumDeltaPocs = numDeltaPocs[refRpsIdx]
		}

		numDelta := uint64(0)
		for j := uint64(0); j <= refNumDeltaPocs; j++ {
			usedByCurr, err := r.readBits(1)
			if err != nil {
				return 0, false
			}
			useDelta := uint64(1)
			if usedByCurr == 0 {
				useDelta, err = r.readBits(1)
				if err != nil {
					return 0, false
				}
			}
			if usedByCurr == 1 || useDelta == 1 {
				numDelta++
			}
		}
		return numDelta, true
	}

	numNegative, err := r.readUE()
	if err != nil {
		return 0, false
	}
	numPositive, err := r.readUE()
	if err != nil {
		return 0, false
	}
	for i := uint64(0); i < numNegative; i++ {
		if _, err := r.readUE(); err != nil { // delta_poc_s0_minus1
			return 0, false
		}
		if err := r.skipBits(1); err != nil { // used_by_curr_pic_s0_flag
			return 0, false
		}
	}
	for i := uint64(0); i < numPositive; i++ {
		if _, err := r.readUE(); err != nil { // delta_poc_s1_minus1
			return 0, false
		}
		if err := r.skipBits(1); err != nil { // used_by_curr_pic_s1_flag
			return 0, false
		}
	}
	return numNegative + numPositive, true
}

func parseHEVCProfileTierLevel(r *bitReader, out *VideoParams, maxSubLayersMinus1 uint64) bool {
	profileSpace, err := r.readBits(2)
	if err != nil {
		return false
	}
	tierFlag, err := r.readBits(1)
	if err != nil {
		return false
	}
	profileIDC, err := r.readBits(5)
	if err != nil {
		return false
	}
	out.GeneralProfileSpace = byte(profileSpace)
	out.GeneralTierFlag = byte(tierFlag)
	out.GeneralProfileIDC = byte(profileIDC)

	for i := 0; i < 4; i++ {
		b, err := r.readBits(8)
		if err != nil {
			return false
		}
		out.CompatibilityFlags[i] = byte(b)
	}
	for i := 0; i < 6; i++ {
		b, err := r.readBits(8)
		if err != nil {
			return false
		}
		out.ConstraintFlags[i] = byte(b)
	}
	levelIDC, err := r.readBits(8)
	if err != nil {
		return false
	}
	out.LevelIDC = byte(levelIDC)

	if maxSubLayersMinus1 == 0 {
		return true
	}

	subLayerProfilePresent := make([]bool, maxSubLayersMinus1)
	subLayerLevelPresent := make([]bool, maxSubLayersMinus1)
	for i := uint64(0); i < maxSubLayersMinus1; i++ {
		pp, err := r.readBits(1)
		if err != nil {
			return false
		}
		lp, err := r.readBits(1)
		if err != nil {
			return false
		}
		subLayerProfilePresent[i] = pp == 1
		subLayerLevelPresent[i] = lp == 1
	}
	if maxSubLayersMinus1 < 8 {
		if err := r.skipBits(int(8-maxSubLayersMinus1) * 2); err != nil {
			return false
		}
	}
	for i := uint64(0); i < maxSubLayersMinus1; i++ {
		if subLayerProfilePresent[i] {
			if err := r.skipBits(88); err != nil { // 2+1+5+32+48
				return false
			}
		}
		if subLayerLevelPresent[i] {
			if err := r.skipBits(8); err != nil {
				return false
			}
		}
	}
	return true
}

func parseHEVCVUI(r *bitReader, out *VideoParams, maxSubLayersMinus1 uint64) {
	arPresent, err := r.readBits(1)
	if err == nil && arPresent == 1 {
		idc, err := r.readBits(8)
		if err == nil {
			if idc == 255 {
				r.readBits(32) // sar_width, sar_height
			}
		}
	}

	overscanPresent, err := r.readBits(1)
	if err == nil && overscanPresent == 1 {
		r.skipBits(1)
	}

	videoSignalPresent, err := r.readBits(1)
	if err == nil && videoSignalPresent == 1 {
		r.skipBits(4) // video_format(3) + video_full_range_flag(1)
		colourDescPresent, err := r.readBits(1)
		if err == nil && colourDescPresent == 1 {
			r.skipBits(24)
		}
	}

	chromaLocPresent, err := r.readBits(1)
	if err == nil && chromaLocPresent == 1 {
		r.readUE()
		r.readUE()
	}

	r.skipBits(1) // neutral_chroma_indication_flag
	r.skipBits(1) // field_seq_flag
	r.skipBits(1) // frame_field_info_present_flag

	defaultDisplayWindow, err := r.readBits(1)
	if err == nil && defaultDisplayWindow == 1 {
		r.readUE()
		r.readUE()
		r.readUE()
		r.readUE()
	}

	timingInfoPresent, err := r.readBits(1)
	if err == nil && timingInfoPresent == 1 {
		r.skipBits(32) // vui_num_units_in_tick
		r.skipBits(32) // vui_time_scale
		pocProportional, err := r.readBits(1)
		if err == nil && pocProportional == 1 {
			r.readUE()
		}
		hrdPresent, err := r.readBits(1)
		if err == nil && hrdPresent == 1 {
			parseHEVCHRDParameters(r, maxSubLayersMinus1)
		}
	}

	bitstreamRestriction, err := r.readBits(1)
	if err == nil && bitstreamRestriction == 1 {
		r.skipBits(1) // tiles_fixed_structure_flag
		r.skipBits(1) // motion_vectors_over_pic_boundaries_flag
		r.skipBits(1) // restricted_ref_pic_lists_flag
		minSpatialSegIdc, err := r.readUE()
		if err == nil {
			out.MinSpatialSegmentationIDC = int(minSpatialSegIdc)
		}
		r.readUE() // max_bytes_per_pic_denom
		r.readUE() // max_bits_per_min_cu_denom
		r.readUE() // log2_max_mv_length_horizontal
		r.readUE() // log2_max_mv_length_vertical
	}
}

func parseHEVCHRDParameters(r *bitReader, maxNumSubLayersMinus1 uint64) {
	nalHRD, _ := r.readBits(1)
	vclHRD, _ := r.readBits(1)

	subPicHRD := uint64(0)
	if nalHRD == 1 || vclHRD == 1 {
		subPicHRD, _ = r.readBits(1)
		if subPicHRD == 1 {
			r.skipBits(8) // tick_divisor_minus2
			r.skipBits(5) // du_cpb_removal_delay_increment_length_minus1
			r.skipBits(1) // sub_pic_cpb_params_in_pic_timing_sei_flag
			r.skipBits(5) // dpb_output_delay_du_length_minus1
		}
		r.skipBits(4) // bit_rate_scale
		r.skipBits(4) // cpb_size_scale
		if subPicHRD == 1 {
			r.skipBits(4) // cpb_size_du_scale
		}
		r.skipBits(5) // initial_cpb_removal_delay_length_minus1
		r.skipBits(5) // au_cpb_removal_delay_length_minus1
		r.skipBits(5) // dpb_output_delay_length_minus1
	}

	for i := uint64(0); i <= maxNumSubLayersMinus1; i++ {
		fixedPicRateGeneral, _ := r.readBits(1)
		fixedPicRateWithinCVS := fixedPicRateGeneral
		if fixedPicRateGeneral == 0 {
			fixedPicRateWithinCVS, _ = r.readBits(1)
		}
		lowDelay := uint64(0)
		if fixedPicRateWithinCVS == 1 {
			r.readUE() // elemental_duration_in_tc_minus1
		} else {
			lowDelay, _ = r.readBits(1)
		}
		cpbCnt := uint64(0)
		if lowDelay == 0 {
			cpbCnt, _ = r.readUE()
		}
		if nalHRD == 1 {
			skipHEVCSubLayerHRD(r, cpbCnt, subPicHRD == 1)
		}
		if vclHRD == 1 {
			skipHEVCSubLayerHRD(r, cpbCnt, subPicHRD == 1)
		}
	}
}

func skipHEVCSubLayerHRD(r *bitReader, cpbCntMinus1 uint64, subPicHRD bool) {
	for i := uint64(0); i <= cpbCntMinus1; i++ {
		r.readUE() // bit_rate_value_minus1
		r.readUE() // cpb_size_value_minus1
		if subPicHRD {
			r.readUE() // cpb_size_du_value_minus1
			r.readUE() // bit_rate_du_value_minus1
		}
		r.skipBits(1) // cbr_flag
	}
}
