package mpegts

const (
	tableIDPMT byte = 0x02

	StreamTypeAVC       byte = 0x1B
	StreamTypeHEVC      byte = 0x24
	StreamTypeADTSAudio byte = 0x0F
	StreamTypeID3Meta   byte = 0x15
)

// PMT holds the state accumulated from a Program Map Table. On a version
// change all First* fields are reset before the new table is re-scanned,
// so a shrinking PMT can never leave a stale PID behind.
type PMT struct {
	psi *PSIBuffer

	PID           uint16
	ProgramNumber uint16
	VersionNumber byte
	PCRPid        uint16

	FirstVideoPID        uint16
	FirstVideoPresent    bool
	FirstVideoStreamType byte

	FirstADTSAudioPID     uint16
	FirstADTSAudioPresent bool

	FirstID3MetadataPID     uint16
	FirstID3MetadataPresent bool
}

// NewPMT returns a PMT tracker bound to the given PID (as discovered via
// PAT.FirstPMT), with its own PSI reassembly buffer.
func NewPMT(pid uint16) *PMT {
	return &PMT{psi: NewPSIBuffer(), PID: pid}
}

// Feed processes one TS packet payload on the PMT PID. It returns true
// when a new PMT section was accepted.
func (m *PMT) Feed(payload []byte, unitStart bool, counter byte) (bool, error) {
	section, err := m.psi.Feed(payload, unitStart, counter)
	if err != nil || section == nil {
		return false, err
	}
	if err := verifySection(section, tableIDPMT); err != nil {
		return false, err
	}
	m.parse(section)
	return true, nil
}

func (m *PMT) parse(data []byte) {
	sectionLength := int(data[1]&0x0F)<<8 | int(data[2])
	m.ProgramNumber = uint16(data[3])<<8 | uint16(data[4])
	m.VersionNumber = (data[5] >> 1) & 0x1F
	m.PCRPid = uint16(data[8]&0x1F)<<8 | uint16(data[9])

	m.FirstVideoPID = 0
	m.FirstVideoPresent = false
	m.FirstVideoStreamType = 0
	m.FirstADTSAudioPID = 0
	m.FirstADTSAudioPresent = false
	m.FirstID3MetadataPID = 0
	m.FirstID3MetadataPresent = false

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := 12 + programInfoLength
	sectionEnd := 3 + sectionLength

	for offset+5 <= sectionEnd-4 {
		streamType := data[offset]
		elementaryPID := uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2])
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])

		switch streamType {
		case StreamTypeAVC, StreamTypeHEVC:
			if !m.FirstVideoPresent {
				m.FirstVideoPresent = true
				m.FirstVideoPID = elementaryPID
				m.FirstVideoStreamType = streamType
			}
		case StreamTypeADTSAudio:
			if !m.FirstADTSAudioPresent {
				m.FirstADTSAudioPresent = true
				m.FirstADTSAudioPID = elementaryPID
			}
		case StreamTypeID3Meta:
			if !m.FirstID3MetadataPresent {
				m.FirstID3MetadataPresent = true
				m.FirstID3MetadataPID = elementaryPID
			}
		}

		offset += 5 + esInfoLength
	}
}
