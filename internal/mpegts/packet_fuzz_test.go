package mpegts

import "testing"

func FuzzParse(f *testing.F) {
	f.Add(make([]byte, PacketSize))
	seed := make([]byte, PacketSize)
	seed[0] = SyncByte
	f.Add(seed)

	f.Fuzz(func(t *testing.T, buf []byte) {
		if len(buf) != PacketSize {
			t.Skip()
		}
		// Parse must never panic regardless of adaptation-field content.
		_, _ = Parse(buf)
	})
}
