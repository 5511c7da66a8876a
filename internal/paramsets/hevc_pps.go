package paramsets

// ParseHEVCPPS reads tiles_enabled_flag and entropy_coding_sync_enabled_flag
// from an HEVC PPS NAL unit and derives ParallelismType per the mapping:
// neither set -> 1 (slice), tiles only -> 2 (tile), wavefront only -> 3,
// both set -> 0 (mixed, no single parallelism tool declared).
func ParseHEVCPPS(nalu []byte, out *VideoParams) bool {
	if len(nalu) < 4 {
		return false
	}
	rbsp := EBSPToRBSP(nalu[2:])
	r := newBitReader(rbsp)

	if _, err := r.readUE(); err != nil { // pps_pic_parameter_set_id
		return false
	}
	if _, err := r.readUE(); err != nil { // pps_seq_parameter_set_id
		return false
	}
	if err := r.skipBits(1); err != nil { // dependent_slice_segments_enabled_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // output_flag_present_flag
		return false
	}
	if err := r.skipBits(3); err != nil { // num_extra_slice_header_bits
		return false
	}
	if err := r.skipBits(1); err != nil { // sign_data_hiding_enabled_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // cabac_init_present_flag
		return false
	}
	if _, err := r.readUE(); err != nil { // num_ref_idx_l0_default_active_minus1
		return false
	}
	if _, err := r.readUE(); err != nil { // num_ref_idx_l1_default_active_minus1
		return false
	}
	if _, err := r.readSE(); err != nil { // init_qp_minus26
		return false
	}
	if err := r.skipBits(1); err != nil { // constrained_intra_pred_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // transform_skip_enabled_flag
		return false
	}
	cuQpDeltaEnabled, err := r.readBits(1)
	if err != nil {
		return false
	}
	if cuQpDeltaEnabled == 1 {
		if _, err := r.readUE(); err != nil { // diff_cu_qp_delta_depth
			return false
		}
	}
	if _, err := r.readSE(); err != nil { // pps_cb_qp_offset
		return false
	}
	if _, err := r.readSE(); err != nil { // pps_cr_qp_offset
		return false
	}
	if err := r.skipBits(1); err != nil { // pps_slice_chroma_qp_offsets_present_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // weighted_pred_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // weighted_bipred_flag
		return false
	}
	if err := r.skipBits(1); err != nil { // transquant_bypass_enabled_flag
		return false
	}

	tilesEnabled, err := r.readBits(1)
	if err != nil {
		return false
	}
	entropyCodingSync, err := r.readBits(1)
	if err != nil {
		return false
	}

	switch {
	case tilesEnabled == 0 && entropyCodingSync == 0:
		out.ParallelismType = 1
	case tilesEnabled == 1 && entropyCodingSync == 0:
		out.ParallelismType = 2
	case tilesEnabled == 0 && entropyCodingSync == 1:
		out.ParallelismType = 3
	default:
		out.ParallelismType = 0
	}

	out.PPS = append([]byte(nil), nalu...)
	return true
}
