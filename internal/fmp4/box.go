// Package fmp4 builds fragmented ISO base media file format (fMP4) boxes:
// a single moov-bearing init segment followed by per-fragment moof+mdat
// pairs, matching the field layouts a compliant fMP4 player expects while
// keeping the emitter itself a plain byte-oriented writer rather than a
// general-purpose muxer.
package fmp4

import "encoding/binary"

// box appends a box with a 32-bit size (back-patched once body is known)
// and the given four-character type, running body to fill the payload.
func box(dst []byte, boxType string, body func(dst []byte) []byte) []byte {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = append(dst, boxType...)
	dst = body(dst)
	binary.BigEndian.PutUint32(dst[start:], uint32(len(dst)-start))
	return dst
}

// fullBox is a box carrying a version+flags field ahead of its body.
func fullBox(dst []byte, boxType string, versionAndFlags uint32, body func(dst []byte) []byte) []byte {
	return box(dst, boxType, func(dst []byte) []byte {
		dst = put32(dst, versionAndFlags)
		return body(dst)
	})
}

func put16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

func put32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func put64(dst []byte, v uint64) []byte {
	return put32(put32(dst, uint32(v>>32)), uint32(v))
}

func putString(dst []byte, s string) []byte {
	return append(dst, s...)
}

func putZeros(dst []byte, n int) []byte {
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}
