package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/zsiec/tsmemseg/internal/mpegts"
	"github.com/zsiec/tsmemseg/internal/segmenter"
	"github.com/zsiec/tsmemseg/internal/stats"
)

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

func encodePTSOnly(pts uint64) []byte {
	b := make([]byte, 5)
	b[0] = 0x20 | byte((pts>>30)&0x07)<<1 | 1
	b[1] = byte((pts >> 22) & 0xFF)
	b[2] = byte((pts>>15)&0x7F)<<1 | 1
	b[3] = byte((pts >> 7) & 0xFF)
	b[4] = byte(pts&0x7F)<<1 | 1
	return b
}

func idrPES(pts uint64) []byte {
	ptsBytes := encodePTSOnly(pts)
	body := append([]byte{0x80, 0x80, byte(len(ptsBytes))}, ptsBytes...)
	nal := []byte{0, 0, 1, 0x65, 0xAA, 0xBB}
	body = append(body, nal...)
	pesLen := len(body)
	pes := []byte{0, 0, 1, 0xE0, byte(pesLen >> 8), byte(pesLen)}
	return append(pes, body...)
}

const (
	pmtPID   = 0x1000
	videoPID = 0x100
)

func gopPackets(pts uint64) [][]byte {
	return [][]byte{
		psiPacket(mpegts.PIDPAT, 0, buildPATSection(1, pmtPID)),
		psiPacket(pmtPID, 0, buildPMTSection(1, videoPID, mpegts.StreamTypeAVC)),
		tsPacket(videoPID, true, 0, idrPES(pts)),
	}
}

func concatPackets(groups ...[][]byte) []byte {
	var out []byte
	for _, g := range groups {
		for _, p := range g {
			out = append(out, p...)
		}
	}
	return out
}

func TestPipelineTSModeTwoGOPsPublishesOneSegment(t *testing.T) {
	t.Parallel()
	p := New(Params{
		SegCfg: segmenter.Config{
			InitialTargetDurationMsec: 1000,
			TargetDurationMsec:        1000,
			SegMaxBytes:               4096 * 1024,
			FragMaxBytes:              4096 * 1024,
		},
		SegNum: 4,
		Stats:  stats.New(),
	})

	data := concatPackets(gopPackets(90000), gopPackets(180000))
	if err := p.Run(context.Background(), bytes.NewReader(data)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	slot := p.Ring().Snapshot(1)
	if len(slot) == 0 {
		t.Fatal("expected slot 1 to have received a published segment")
	}
	if slot[0] != 0x47 || slot[1] != 0x01 {
		t.Fatalf("segment header magic = %x", slot[0:4])
	}
	if got := binary.BigEndian.Uint32(slot[4:8]); got != 1 {
		t.Errorf("segCount = %d, want 1", got)
	}
}

func TestPipelineSyncErrorIncrementsCounter(t *testing.T) {
	t.Parallel()
	st := stats.New()
	p := New(Params{
		SegCfg: segmenter.Config{TargetDurationMsec: 1000, SegMaxBytes: 4096 * 1024, FragMaxBytes: 4096 * 1024},
		SegNum: 4,
		Stats:  st,
	})

	bad := make([]byte, mpegts.PacketSize)
	bad[0] = 0x00 // invalid sync byte
	if err := p.Run(context.Background(), bytes.NewReader(bad)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.SyncErrors() != 1 {
		t.Errorf("SyncErrors = %d, want 1", st.SyncErrors())
	}
}
