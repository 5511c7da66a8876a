// Package nal implements the minimal Annex-B start-code scanner the
// segmenter uses to find IRAP/IDR access units on the fly, without
// allocating or buffering the PES payload it scans.
package nal

// Scanner runs the 5-state start-code recognizer over a stream of bytes
// handed to it in arbitrary-sized chunks (one call per TS packet payload
// is typical). It does not distinguish a "00 00 01" start code preceded by
// an emulation-prevention 0x00 from a genuine one — per spec, that
// ambiguity is accepted in exchange for not allocating.
type Scanner struct {
	state  int // 0,1,2: counting leading zeros; 3: read type next byte; 4: absorbing
	isHEVC bool
}

// NewScanner returns a Scanner for either AVC or HEVC NAL unit type
// layouts.
func NewScanner(isHEVC bool) *Scanner {
	return &Scanner{isHEVC: isHEVC}
}

// Reset returns the scanner to state 0. The caller does this at every PES
// unit-start so each access unit is scanned independently.
func (s *Scanner) Reset() {
	s.state = 0
}

// Feed scans data and reports whether an IRAP (AVC type 5, HEVC type
// 19/20/21) NAL unit start was recognized anywhere within it.
func (s *Scanner) Feed(data []byte) bool {
	found := false
	for _, b := range data {
		switch s.state {
		case 0:
			if b == 0x00 {
				s.state = 1
			}
		case 1:
			if b == 0x00 {
				s.state = 2
			} else {
				s.state = 0
			}
		case 2:
			switch b {
			case 0x00:
				// stay in state 2: any number of leading zeros is allowed
			case 0x01:
				s.state = 3
			default:
				s.state = 0
			}
		case 3:
			if s.isIRAP(b) {
				found = true
			}
			s.state = 4
		case 4:
			// absorbing until Reset
		}
	}
	return found
}

func (s *Scanner) isIRAP(firstByte byte) bool {
	if s.isHEVC {
		nalType := (firstByte >> 1) & 0x3F
		return nalType == 19 || nalType == 20 || nalType == 21
	}
	nalType := firstByte & 0x1F
	return nalType == 5
}
