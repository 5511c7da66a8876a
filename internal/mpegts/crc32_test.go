package mpegts

import "testing"

func TestCRC32SelfCheck(t *testing.T) {
	section := buildPATSection(1, []patEntry{{programNumber: 1, pmtPID: 0x1000}})
	if calcCRC32(section) != 0 {
		t.Fatalf("calcCRC32 self-check failed, want 0")
	}
	section[len(section)-1] ^= 0xFF
	if calcCRC32(section) == 0 {
		t.Fatal("expected corrupted section to fail CRC32 self-check")
	}
}
