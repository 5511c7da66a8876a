package paramsets

// HEVC NAL unit types relevant to segmentation and parameter parsing.
const (
	HEVCNALBLAWLP   = 16
	HEVCNALIDRWRadl = 19
	HEVCNALIDRNLP   = 20
	HEVCNALCRANut   = 21
	HEVCNALVPS      = 32
	HEVCNALSPS      = 33
	HEVCNALPPS      = 34
	HEVCNALAUD      = 35
	HEVCNALSEIPfx   = 39
	HEVCNALSEISfx   = 40
)

// HEVCNALType extracts the 6-bit nal_unit_type from the first byte of the
// 2-byte HEVC NAL header.
func HEVCNALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// ParseHEVCVPS reads vps_max_sub_layers_minus1 and
// vps_temporal_id_nesting_flag from the NAL unit (nalu[0:2] is the 2-byte
// NAL header) and populates NumTemporalLayers/TemporalIDNestingFlag.
func ParseHEVCVPS(nalu []byte, out *VideoParams) bool {
	if len(nalu) < 4 {
		return false
	}
	rbsp := EBSPToRBSP(nalu[2:])
	r := newBitReader(rbsp)

	if err := r.skipBits(4); err != nil { // vps_video_parameter_set_id
		return false
	}
	if err := r.skipBits(2); err != nil { // vps_base_layer_internal/available_flag
		return false
	}
	if err := r.skipBits(6); err != nil { // vps_max_layers_minus1
		return false
	}
	maxSubLayersMinus1, err := r.readBits(3)
	if err != nil {
		return false
	}
	nesting, err := r.readBits(1)
	if err != nil {
		return false
	}

	out.NumTemporalLayers = int(maxSubLayersMinus1) + 1
	out.TemporalIDNestingFlag = nesting == 1
	out.VPS = append([]byte(nil), nalu...)
	return true
}
