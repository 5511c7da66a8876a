package mpegts

import "encoding/binary"

type patEntry struct {
	programNumber uint16
	pmtPID        uint16
}

// buildPATSection builds a complete, CRC-valid PAT section.
func buildPATSection(tsid uint16, entries []patEntry) []byte {
	body := make([]byte, 5) // transport_stream_id, version/current_next, section_number, last_section_number
	binary.BigEndian.PutUint16(body[0:2], tsid)
	body[2] = 0x01 // version 0, current_next_indicator=1
	// section_number, last_section_number left at 0
	for _, e := range entries {
		entry := make([]byte, 4)
		binary.BigEndian.PutUint16(entry[0:2], e.programNumber)
		binary.BigEndian.PutUint16(entry[2:4], e.pmtPID&0x1FFF)
		body = append(body, entry...)
	}

	sectionLength := len(body) + 4 // + CRC32
	header := []byte{
		tableIDPAT,
		0x80 | byte(sectionLength>>8), // section_syntax_indicator=1
		byte(sectionLength),
	}

	section := append(header, body...)
	crc := calcCRC32(section)
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc)
	return append(section, crcBytes[:]...)
}

type esEntry struct {
	streamType byte
	pid        uint16
}

// buildPMTSection builds a complete, CRC-valid PMT section.
func buildPMTSection(programNumber, pcrPID uint16, entries []esEntry) []byte {
	body := make([]byte, 7)
	binary.BigEndian.PutUint16(body[0:2], programNumber)
	body[2] = 0x01 // version 0, current_next_indicator=1
	binary.BigEndian.PutUint16(body[5:7], pcrPID&0x1FFF)
	body = append(body, 0x00, 0x00) // program_info_length = 0

	for _, e := range entries {
		es := make([]byte, 5)
		es[0] = e.streamType
		binary.BigEndian.PutUint16(es[1:3], e.pid&0x1FFF)
		body = append(body, es...)
	}

	sectionLength := len(body) + 4
	header := []byte{
		tableIDPMT,
		0x80 | byte(sectionLength>>8),
		byte(sectionLength),
	}

	section := append(header, body...)
	crc := calcCRC32(section)
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc)
	return append(section, crcBytes[:]...)
}

// packetizeSingle wraps one section in a single unit-start TS payload
// (pointer field 0 followed by the section).
func packetizeSingle(section []byte) []byte {
	return append([]byte{0x00}, section...)
}
