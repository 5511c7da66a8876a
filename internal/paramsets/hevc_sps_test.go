package paramsets

import "testing"

func writeHEVCSPSCommonPrefix(w *bitWriter, maxSubLayersMinus1 uint64) {
	w.writeBits(0, 4)                  // sps_video_parameter_set_id
	w.writeBits(maxSubLayersMinus1, 3) // sps_max_sub_layers_minus1
	w.writeBits(0, 1)                  // sps_temporal_id_nesting_flag

	w.writeBits(0, 2)   // general_profile_space
	w.writeBits(0, 1)   // general_tier_flag
	w.writeBits(1, 5)   // general_profile_idc
	w.writeBits(0, 32)  // general_profile_compatibility_flags
	w.writeBits(0, 48)  // general_constraint flags (6 bytes)
	w.writeBits(120, 8) // general_level_idc
}

func buildMinimalHEVCSPS() []byte {
	w := &bitWriter{}
	writeHEVCSPSCommonPrefix(w, 0)

	w.writeUE(0)    // sps_seq_parameter_set_id
	w.writeUE(1)    // chroma_format_idc
	w.writeUE(1920) // pic_width_in_luma_samples
	w.writeUE(1080) // pic_height_in_luma_samples
	w.writeBits(0, 1) // conformance_window_flag
	w.writeUE(0)      // bit_depth_luma_minus8
	w.writeUE(0)      // bit_depth_chroma_minus8
	w.writeUE(4)      // log2_max_pic_order_cnt_lsb_minus4
	w.writeBits(1, 1) // sps_sub_layer_ordering_info_present_flag
	w.writeUE(4)      // sps_max_dec_pic_buffering_minus1[0]
	w.writeUE(2)      // sps_max_num_reorder_pics[0]
	w.writeUE(0)      // sps_max_latency_increase_plus1[0]
	w.writeUE(0)      // log2_min_luma_coding_block_size_minus3
	w.writeUE(3)      // log2_diff_max_min_luma_coding_block_size
	w.writeUE(0)      // log2_min_luma_transform_block_size_minus2
	w.writeUE(3)      // log2_diff_max_min_luma_transform_block_size
	w.writeUE(0)      // max_transform_hierarchy_depth_inter
	w.writeUE(0)      // max_transform_hierarchy_depth_intra
	w.writeBits(0, 1) // scaling_list_enabled_flag
	w.writeBits(0, 1) // amp_enabled_flag
	w.writeBits(0, 1) // sample_adaptive_offset_enabled_flag
	w.writeBits(0, 1) // pcm_enabled_flag
	w.writeUE(0)      // num_short_term_ref_pic_sets
	w.writeBits(0, 1) // long_term_ref_pics_present_flag
	w.writeBits(0, 1) // sps_temporal_mvp_enabled_flag
	w.writeBits(0, 1) // strong_intra_smoothing_enabled_flag
	w.writeBits(0, 1) // vui_parameters_present_flag

	return append(hevcNALHeader(HEVCNALSPS), w.finish()...)
}

func TestParseHEVCSPSMinimal(t *testing.T) {
	out, ok := ParseHEVCSPS(buildMinimalHEVCSPS())
	if !ok {
		t.Fatal("expected SPS parse to succeed")
	}
	if out.CodecWidth != 1920 || out.CodecHeight != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", out.CodecWidth, out.CodecHeight)
	}
	if out.GeneralProfileIDC != 1 {
		t.Errorf("GeneralProfileIDC = %d, want 1", out.GeneralProfileIDC)
	}
	if out.LevelIDC != 120 {
		t.Errorf("LevelIDC = %d, want 120", out.LevelIDC)
	}
	if !out.IsHEVC || !out.Valid {
		t.Error("expected IsHEVC and Valid to be true")
	}
}

func TestParseHEVCSPSConformanceWindowAndRestriction(t *testing.T) {
	w := &bitWriter{}
	writeHEVCSPSCommonPrefix(w, 0)

	w.writeUE(0)    // sps_seq_parameter_set_id
	w.writeUE(1)    // chroma_format_idc = 4:2:0 -> subWC=2, subHC=2
	w.writeUE(1920)
	w.writeUE(1080)
	w.writeBits(1, 1) // conformance_window_flag
	w.writeUE(0)      // conf_win_left_offset
	w.writeUE(0)      // conf_win_right_offset
	w.writeUE(0)      // conf_win_top_offset
	w.writeUE(1)      // conf_win_bottom_offset -> height -= 1*2 = 2
	w.writeUE(0)      // bit_depth_luma_minus8
	w.writeUE(0)      // bit_depth_chroma_minus8
	w.writeUE(4)      // log2_max_pic_order_cnt_lsb_minus4
	w.writeBits(1, 1) // sps_sub_layer_ordering_info_present_flag
	w.writeUE(4)
	w.writeUE(2)
	w.writeUE(0)
	w.writeUE(0) // log2_min_luma_coding_block_size_minus3
	w.writeUE(3)
	w.writeUE(0)
	w.writeUE(3)
	w.writeUE(0)
	w.writeUE(0)
	w.writeBits(0, 1) // scaling_list_enabled_flag
	w.writeBits(0, 1) // amp_enabled_flag
	w.writeBits(0, 1) // sample_adaptive_offset_enabled_flag
	w.writeBits(0, 1) // pcm_enabled_flag

	w.writeUE(1) // num_short_term_ref_pic_sets
	// st_ref_pic_set(0): stRpsIdx==0, no inter-pred flag read.
	w.writeUE(1)      // num_negative_pics
	w.writeUE(0)      // num_positive_pics
	w.writeUE(0)      // delta_poc_s0_minus1[0]
	w.writeBits(1, 1) // used_by_curr_pic_s0_flag[0]

	w.writeBits(0, 1) // long_term_ref_pics_present_flag
	w.writeBits(0, 1) // sps_temporal_mvp_enabled_flag
	w.writeBits(0, 1) // strong_intra_smoothing_enabled_flag

	w.writeBits(1, 1) // vui_parameters_present_flag
	w.writeBits(0, 1) // aspect_ratio_info_present_flag
	w.writeBits(0, 1) // overscan_info_present_flag
	w.writeBits(0, 1) // video_signal_type_present_flag
	w.writeBits(0, 1) // chroma_loc_info_present_flag
	w.writeBits(0, 1) // neutral_chroma_indication_flag
	w.writeBits(0, 1) // field_seq_flag
	w.writeBits(0, 1) // frame_field_info_present_flag
	w.writeBits(0, 1) // default_display_window_flag
	w.writeBits(0, 1) // vui_timing_info_present_flag
	w.writeBits(1, 1) // bitstream_restriction_flag
	w.writeBits(0, 1) // tiles_fixed_structure_flag
	w.writeBits(0, 1) // motion_vectors_over_pic_boundaries_flag
	w.writeBits(0, 1) // restricted_ref_pic_lists_flag
	w.writeUE(21)     // min_spatial_segmentation_idc
	w.writeUE(0)      // max_bytes_per_pic_denom
	w.writeUE(0)      // max_bits_per_min_cu_denom
	w.writeUE(0)      // log2_max_mv_length_horizontal
	w.writeUE(0)      // log2_max_mv_length_vertical

	nalu := append(hevcNALHeader(HEVCNALSPS), w.finish()...)
	out, ok := ParseHEVCSPS(nalu)
	if !ok {
		t.Fatal("expected SPS parse to succeed")
	}
	if out.CodecHeight != 1078 {
		t.Errorf("CodecHeight = %d, want 1078 after conformance window crop", out.CodecHeight)
	}
	if out.MinSpatialSegmentationIDC != 21 {
		t.Errorf("MinSpatialSegmentationIDC = %d, want 21", out.MinSpatialSegmentationIDC)
	}
}

func TestParseHEVCSPSTooShort(t *testing.T) {
	if _, ok := ParseHEVCSPS([]byte{0x42, 0x01}); ok {
		t.Fatal("expected failure on truncated SPS")
	}
}
