// Package paramsets parses AVC/HEVC parameter sets (SPS/PPS/VPS) and ADTS
// AAC headers to populate the fMP4 builder's avcC/hvcC/esds boxes. Parsers
// take a whole EBSP NAL unit, skip its 1-byte (AVC) or 2-byte (HEVC)
// header themselves, and return ok=false on any structural failure, never a partial
// result the caller might mistake for valid.
package paramsets

// overrunPad is appended after the real RBSP bytes so Exp-Golomb reads
// near the end of a truncated or malformed NAL unit run off the end of
// real data into zeros instead of out of the slice. BitReader still
// tracks the original length and fails reads that cross it.
const overrunPad = 64

// EBSPToRBSP strips emulation-prevention bytes: B[i]=0x03 is removed
// whenever B[i-2]==B[i-1]==0x00 and B[i+1] (if present) is <= 0x03.
func EBSPToRBSP(ebsp []byte) []byte {
	rbsp := make([]byte, 0, len(ebsp))
	zeros := 0
	for i := 0; i < len(ebsp); i++ {
		b := ebsp[i]
		if zeros >= 2 && b == 0x03 && (i+1 >= len(ebsp) || ebsp[i+1] <= 0x03) {
			zeros = 0
			continue
		}
		rbsp = append(rbsp, b)
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return rbsp
}
