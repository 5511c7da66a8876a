package fmp4

// pushEmsg builds a version-1 'emsg' box carrying one ID3 payload.
// presentationTime is the 90kHz-timescale media time the ID3 tag applies
// at, already clamped and adjusted by the caller.
func pushEmsg(dst []byte, presentationTime uint64, messageData []byte) []byte {
	return fullBox(dst, "emsg", 0x01000000, func(dst []byte) []byte {
		dst = put32(dst, 90000)
		dst = put64(dst, presentationTime)
		dst = put32(dst, 0xffffffff) // event_duration: unknown
		dst = put32(dst, 0)          // id
		dst = putString(dst, "https://aomedia.org/emsg/ID3")
		dst = append(dst, 0) // scheme_id_uri NUL
		dst = append(dst, 0) // value "" NUL
		return append(dst, messageData...)
	})
}
