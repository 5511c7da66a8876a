package paramsets

import "errors"

var errOverrun = errors.New("paramsets: bit read past original RBSP length")

// bitReader reads MSB-first bits from RBSP data, padded with overrunPad
// zero bytes so Exp-Golomb reads can run past truncated data without an
// out-of-range slice access — but every read is checked against origBits,
// the bit length of the data before padding, and fails once crossed.
type bitReader struct {
	data     []byte
	origBits int
	pos      int // bit position
}

func newBitReader(rbsp []byte) *bitReader {
	padded := make([]byte, len(rbsp)+overrunPad)
	copy(padded, rbsp)
	return &bitReader{data: padded, origBits: len(rbsp) * 8}
}

func (r *bitReader) readBit() (uint64, error) {
	if r.pos >= r.origBits {
		return 0, errOverrun
	}
	byteIdx := r.pos / 8
	bitIdx := uint(7 - r.pos%8)
	r.pos++
	return uint64((r.data[byteIdx] >> bitIdx) & 1), nil
}

func (r *bitReader) readBits(n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		b, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// readUE reads an unsigned Exp-Golomb code, up to 61 significant bits.
func (r *bitReader) readUE() (uint64, error) {
	zeros := 0
	for {
		b, err := r.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 61 {
			return 0, errOverrun
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := r.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return (uint64(1)<<uint(zeros) - 1) + suffix, nil
}

// readSE reads a signed Exp-Golomb code.
func (r *bitReader) readSE() (int64, error) {
	v, err := r.readUE()
	if err != nil {
		return 0, err
	}
	if v%2 == 0 {
		return -int64(v / 2), nil
	}
	return int64((v + 1) / 2), nil
}

func (r *bitReader) skipBits(n int) error {
	_, err := r.readBits(n)
	return err
}

// skipScalingList consumes an H.264 scaling list of the given size
// without retaining its values — the fMP4 builder only needs to advance
// past it to reach the fields that follow.
func (r *bitReader) skipScalingList(size int) error {
	lastScale, nextScale := 8, 8
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := r.readSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + int(delta) + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}
