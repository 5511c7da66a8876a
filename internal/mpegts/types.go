// Package mpegts decodes the fixed 188-byte MPEG-2 Transport Stream packet
// header, reassembles PAT/PMT PSI sections across packet boundaries, and
// extracts PES timestamps. It does not reassemble PES payloads itself —
// callers accumulate payload bytes per PID and hand complete PES units to
// GetPESTimestamp and the parameter-set parsers.
package mpegts

const (
	PacketSize = 188
	SyncByte   = 0x47
)

// Packet is a parsed 188-byte transport stream packet. Payload is a
// sub-slice of the backing buffer passed to Parse; callers that retain it
// past the next read must copy it.
type Packet struct {
	Header  Header
	Payload []byte
}

// Header holds the fields of the fixed 4-byte TS header, plus flags
// derived from its adaptation_field_control bits.
type Header struct {
	PID                       uint16
	ContinuityCounter         byte
	TransportErrorIndicator   bool
	PayloadUnitStartIndicator bool
	TransportPriority         bool
	ScramblingControl         byte
	AdaptationFieldControl    byte // 2 bits: 01 payload only, 10 adaptation only, 11 both
	HasAdaptationField        bool
	HasPayload                bool
}
