package segmenter

import (
	"encoding/binary"
	"testing"

	"github.com/zsiec/tsmemseg/internal/mpegts"
)

// crc32MPEG mirrors mpegts' internal calcCRC32 (polynomial 0x04C11DB7, no
// reflection, no final XOR) so the fixtures built here pass verifySection.
func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func withCRC(section []byte) []byte {
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc32MPEG(section))
	return append(section, crcBytes[:]...)
}

func buildPATSection(tsid, pmtPID uint16) []byte {
	body := make([]byte, 5)
	binary.BigEndian.PutUint16(body[0:2], tsid)
	body[2] = 0x01
	entry := make([]byte, 4)
	binary.BigEndian.PutUint16(entry[0:2], 1)
	binary.BigEndian.PutUint16(entry[2:4], pmtPID&0x1FFF)
	body = append(body, entry...)

	sectionLength := len(body) + 4
	header := []byte{0x00, 0x80 | byte(sectionLength>>8), byte(sectionLength)}
	return withCRC(append(header, body...))
}

func buildPMTSection(programNumber, videoPID uint16, streamType byte) []byte {
	body := make([]byte, 7)
	binary.BigEndian.PutUint16(body[0:2], programNumber)
	body[2] = 0x01
	binary.BigEndian.PutUint16(body[5:7], videoPID&0x1FFF)
	body = append(body, 0x00, 0x00)

	es := make([]byte, 5)
	es[0] = streamType
	binary.BigEndian.PutUint16(es[1:3], videoPID&0x1FFF)
	body = append(body, es...)

	sectionLength := len(body) + 4
	header := []byte{0x02, 0x80 | byte(sectionLength>>8), byte(sectionLength)}
	return withCRC(append(header, body...))
}

func tsPacket(pid uint16, unitStart bool, cc byte, payload []byte) []byte {
	pkt := make([]byte, mpegts.PacketSize)
	pkt[0] = mpegts.SyncByte
	pkt[1] = byte(pid >> 8 & 0x1F)
	if unitStart {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | (cc & 0x0F)
	n := copy(pkt[4:], payload)
	for i := 4 + n; i < len(pkt); i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

func psiPacket(pid uint16, cc byte, section []byte) []byte {
	return tsPacket(pid, true, cc, append([]byte{0x00}, section...))
}

// idrPES builds a minimal video PES carrying a single IDR NAL (AVC type 5)
// with a PTS, wrapped in a unit-start TS packet.
func idrPES(pts uint64) []byte {
	ptsBytes := encodePTSOnly(pts)
	body := append([]byte{0x80, 0x80, byte(len(ptsBytes))}, ptsBytes...)
	nal := []byte{0, 0, 1, 0x65, 0xAA, 0xBB} // start code + IDR NAL
	body = append(body, nal...)
	pesLen := len(body)
	pes := []byte{0, 0, 1, 0xE0, byte(pesLen >> 8), byte(pesLen)}
	return append(pes, body...)
}

func encodePTSOnly(pts uint64) []byte {
	b := make([]byte, 5)
	b[0] = 0x20 | byte((pts>>30)&0x07)<<1 | 1
	b[1] = byte((pts >> 22) & 0xFF)
	b[2] = byte((pts>>15)&0x7F)<<1 | 1
	b[3] = byte((pts >> 7) & 0xFF)
	b[4] = byte(pts&0x7F)<<1 | 1
	return b
}

const (
	pmtPID   = 0x1000
	videoPID = 0x100
)

func feedAll(t *testing.T, s *Segmenter, packets [][]byte) []*Flush {
	t.Helper()
	var flushes []*Flush
	for _, p := range packets {
		fl, err := s.Feed(p)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if fl != nil {
			flushes = append(flushes, fl)
		}
	}
	return flushes
}

func gopPackets(pts uint64) [][]byte {
	return [][]byte{
		psiPacket(mpegts.PIDPAT, 0, buildPATSection(1, pmtPID)),
		psiPacket(pmtPID, 0, buildPMTSection(1, videoPID, mpegts.StreamTypeAVC)),
		tsPacket(videoPID, true, 0, idrPES(pts)),
	}
}

func TestSegmenterSecondGOPFlushesFirstSegment(t *testing.T) {
	t.Parallel()
	s := New(Config{
		InitialTargetDurationMsec: 1000,
		TargetDurationMsec:        1000,
		SegMaxBytes:               4096 * 1024,
		FragMaxBytes:              4096 * 1024,
	})

	var flushes []*Flush
	flushes = append(flushes, feedAll(t, s, gopPackets(90000))...)
	flushes = append(flushes, feedAll(t, s, gopPackets(180000))...)

	// The very first key never triggers a boundary (isFirstKey); only the
	// second GOP's IDR, one second later, should flush.
	if len(flushes) != 1 {
		t.Fatalf("got %d flushes, want 1", len(flushes))
	}
	fl := flushes[0]
	if fl.Kind != FlushSegment {
		t.Errorf("kind = %v, want FlushSegment", fl.Kind)
	}
	if fl.Forced {
		t.Error("unexpected forced flush")
	}
	if fl.DurationMsec != 1000 {
		t.Errorf("segDurationMsec = %d, want 1000", fl.DurationMsec)
	}
	if len(fl.Packets)%mpegts.PacketSize != 0 {
		t.Fatalf("flushed bytes %d not a multiple of packet size", len(fl.Packets))
	}
	if got := packetPID(fl.Packets[0:188]); got != mpegts.PIDPAT {
		t.Errorf("first flushed packet PID = %#x, want PAT", got)
	}
	if got := packetPID(fl.Packets[188:376]); got != pmtPID {
		t.Errorf("second flushed packet PID = %#x, want PMT", got)
	}
}

func TestSegmenterForcedSegmentationWithoutKey(t *testing.T) {
	t.Parallel()
	s := New(Config{
		InitialTargetDurationMsec: 1000,
		TargetDurationMsec:        1000,
		SegMaxBytes:               64 * 1024,
		FragMaxBytes:              64 * 1024,
	})

	// PAT/PMT once, then enough non-key video packets (continuity, no
	// unit-start, no IDR) to exceed the 64 KB budget without ever seeing a
	// second key.
	flushes := feedAll(t, s, gopPackets(90000)) // first IDR, suppressed by isFirstKey
	if len(flushes) != 0 {
		t.Fatalf("unexpected flush from the first GOP: %d", len(flushes))
	}

	filler := tsPacket(videoPID, false, 1, []byte{0xAA, 0xBB, 0xCC})
	for i := 0; i < 64*1024/188+5; i++ {
		fl, err := s.Feed(filler)
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if fl != nil {
			flushes = append(flushes, fl)
			break
		}
	}

	if len(flushes) != 1 {
		t.Fatalf("got %d flushes, want 1", len(flushes))
	}
	if !flushes[0].Forced {
		t.Error("expected forced flush")
	}
	if s.ForcedSegmentationCount() != 1 {
		t.Errorf("ForcedSegmentationCount = %d, want 1", s.ForcedSegmentationCount())
	}
}

func TestSegmenterFirstKeyNeverFlushesAlone(t *testing.T) {
	t.Parallel()
	s := New(Config{InitialTargetDurationMsec: 0, TargetDurationMsec: 1000, SegMaxBytes: 4096 * 1024, FragMaxBytes: 4096 * 1024})
	flushes := feedAll(t, s, gopPackets(90000))
	if len(flushes) != 0 {
		t.Fatalf("got %d flushes from the very first key, want 0", len(flushes))
	}
}
