package mpegts

import "testing"

func TestPATFindsFirstNonZeroProgram(t *testing.T) {
	section := buildPATSection(7, []patEntry{
		{programNumber: 0, pmtPID: 0x10},   // NIT, skipped
		{programNumber: 1, pmtPID: 0x1000}, // first real program
		{programNumber: 2, pmtPID: 0x1001},
	})

	pat := NewPAT()
	accepted, err := pat.Feed(packetizeSingle(section), true, 0)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !accepted {
		t.Fatal("expected section accepted")
	}
	if pat.TransportStreamID != 7 {
		t.Fatalf("TransportStreamID = %d, want 7", pat.TransportStreamID)
	}
	if !pat.FirstPMT.Present || pat.FirstPMT.PID != 0x1000 || pat.FirstPMT.ProgramNumber != 1 {
		t.Fatalf("FirstPMT = %+v, want PID=0x1000 ProgramNumber=1", pat.FirstPMT)
	}
}

func TestPATRejectsBadCRC(t *testing.T) {
	section := buildPATSection(1, []patEntry{{programNumber: 1, pmtPID: 0x1000}})
	section[len(section)-1] ^= 0xFF

	pat := NewPAT()
	accepted, err := pat.Feed(packetizeSingle(section), true, 0)
	if err == nil || accepted {
		t.Fatal("expected CRC failure to be rejected")
	}
}

func TestPATContinuityMismatchResets(t *testing.T) {
	section := buildPATSection(1, []patEntry{{programNumber: 1, pmtPID: 0x1000}})
	// Split the section across two packets so the continuity counter matters.
	half := 4
	first := append([]byte{0x00}, section[:half]...)
	second := section[half:]

	pat := NewPAT()
	if accepted, err := pat.Feed(first, true, 0); err != nil || accepted {
		t.Fatalf("first half should not complete a section: accepted=%v err=%v", accepted, err)
	}
	// Skip a counter value — continuation should be dropped, not completed.
	accepted, err := pat.Feed(second, false, 5)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if accepted {
		t.Fatal("continuity mismatch should have discarded in-flight section")
	}
}
