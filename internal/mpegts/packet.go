package mpegts

import "fmt"

// Parse decodes a single 188-byte transport stream packet. buf must be
// exactly PacketSize bytes. A bad sync byte is the caller's signal to
// count a sync error and drop the packet — there is no resynchronization.
func Parse(buf []byte) (Packet, error) {
	var p Packet
	if len(buf) != PacketSize {
		return p, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != SyncByte {
		return p, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.TransportPriority = buf[1]&0x20 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.ScramblingControl = (buf[3] >> 6) & 0x03
	p.Header.AdaptationFieldControl = (buf[3] >> 4) & 0x03
	p.Header.HasAdaptationField = p.Header.AdaptationFieldControl&0x02 != 0
	p.Header.HasPayload = p.Header.AdaptationFieldControl&0x01 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if p.Header.HasAdaptationField {
		if offset >= PacketSize {
			return p, nil
		}
		afLen := int(buf[offset])
		offset += 1 + afLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = buf[offset:PacketSize]
	}

	return p, nil
}

// PayloadSize returns how many of the packet's 188 bytes are payload,
// per the adaptation_field_control field: 184 with payload and no
// adaptation field, 183 minus the adaptation field length with both, or 0
// when the packet carries adaptation-field-only data.
func PayloadSize(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	afc := (buf[3] >> 4) & 0x03
	switch afc {
	case 0x01:
		return 184
	case 0x03:
		if len(buf) < 5 {
			return 0
		}
		return 183 - int(buf[4])
	default:
		return 0
	}
}
