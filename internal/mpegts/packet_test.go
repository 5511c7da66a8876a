package mpegts

import "testing"

func TestParseRejectsBadSync(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = 0x00
	if _, err := Parse(buf); err == nil {
		t.Fatal("expected error for bad sync byte")
	}
}

func TestParseRejectsWrongSize(t *testing.T) {
	if _, err := Parse(make([]byte, 100)); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestParseHeaderFields(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = 0x40 | 0x01 // unit start, PID high bits = 1
	buf[2] = 0x00        // PID low bits
	buf[3] = 0x10 | 0x05 // payload only, CC=5
	for i := 4; i < PacketSize; i++ {
		buf[i] = byte(i)
	}

	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Header.PID != 0x100 {
		t.Fatalf("PID = 0x%X, want 0x100", p.Header.PID)
	}
	if !p.Header.PayloadUnitStartIndicator {
		t.Fatal("expected unit-start flag")
	}
	if p.Header.ContinuityCounter != 5 {
		t.Fatalf("CC = %d, want 5", p.Header.ContinuityCounter)
	}
	if len(p.Payload) != 184 {
		t.Fatalf("payload len = %d, want 184", len(p.Payload))
	}
}

func TestParseWithAdaptationField(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[3] = 0x30 | 0x02 // adaptation + payload, CC=2
	buf[4] = 7           // adaptation_field_length
	// 7 bytes of adaptation field follow at offset 5..11, payload starts at 12
	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Payload) != PacketSize-12 {
		t.Fatalf("payload len = %d, want %d", len(p.Payload), PacketSize-12)
	}
}

func TestPayloadSize(t *testing.T) {
	buf := make([]byte, 5)
	buf[3] = 0x10 // payload only
	if got := PayloadSize(buf); got != 184 {
		t.Fatalf("PayloadSize = %d, want 184", got)
	}
	buf[3] = 0x20 // adaptation only
	if got := PayloadSize(buf); got != 0 {
		t.Fatalf("PayloadSize = %d, want 0", got)
	}
	buf[3] = 0x30 // both
	buf[4] = 10
	if got := PayloadSize(buf); got != 183-10 {
		t.Fatalf("PayloadSize = %d, want %d", got, 183-10)
	}
}
