package fmp4

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBoxSizeBackpatch(t *testing.T) {
	t.Parallel()
	out := box(nil, "free", func(dst []byte) []byte {
		return append(dst, 1, 2, 3, 4, 5)
	})
	if len(out) != 13 {
		t.Fatalf("len = %d, want 13", len(out))
	}
	size := binary.BigEndian.Uint32(out[0:4])
	if size != 13 {
		t.Errorf("size field = %d, want 13", size)
	}
	if !bytes.Equal(out[4:8], []byte("free")) {
		t.Errorf("box type = %q, want free", out[4:8])
	}
}

func TestFullBoxVersionFlags(t *testing.T) {
	t.Parallel()
	out := fullBox(nil, "tfdt", 0x01000000, func(dst []byte) []byte {
		return put64(dst, 12345)
	})
	size := binary.BigEndian.Uint32(out[0:4])
	if int(size) != len(out) {
		t.Fatalf("size field = %d, want %d", size, len(out))
	}
	if !bytes.Equal(out[4:8], []byte("tfdt")) {
		t.Fatalf("box type = %q", out[4:8])
	}
	vf := binary.BigEndian.Uint32(out[8:12])
	if vf != 0x01000000 {
		t.Errorf("version+flags = %#x, want 0x01000000", vf)
	}
	got := binary.BigEndian.Uint64(out[12:20])
	if got != 12345 {
		t.Errorf("body = %d, want 12345", got)
	}
}

func TestNestedBoxSizes(t *testing.T) {
	t.Parallel()
	out := box(nil, "moof", func(dst []byte) []byte {
		dst = box(dst, "mfhd", func(dst []byte) []byte {
			return put32(dst, 7)
		})
		dst = box(dst, "traf", func(dst []byte) []byte {
			return put32(dst, 99)
		})
		return dst
	})

	outerSize := binary.BigEndian.Uint32(out[0:4])
	if int(outerSize) != len(out) {
		t.Fatalf("moof size = %d, want %d", outerSize, len(out))
	}

	mfhdSize := binary.BigEndian.Uint32(out[8:12])
	if mfhdSize != 12 {
		t.Errorf("mfhd size = %d, want 12", mfhdSize)
	}
	trafOff := 8 + int(mfhdSize)
	trafSize := binary.BigEndian.Uint32(out[trafOff : trafOff+4])
	if trafSize != 12 {
		t.Errorf("traf size = %d, want 12", trafSize)
	}
}

func TestPutHelpers(t *testing.T) {
	t.Parallel()
	var dst []byte
	dst = put16(dst, 0xabcd)
	dst = put32(dst, 0x01020304)
	dst = put64(dst, 0x0102030405060708)
	dst = putString(dst, "isom")
	dst = putZeros(dst, 3)

	want := []byte{
		0xab, 0xcd,
		0x01, 0x02, 0x03, 0x04,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		'i', 's', 'o', 'm',
		0, 0, 0,
	}
	if !bytes.Equal(dst, want) {
		t.Fatalf("got %x, want %x", dst, want)
	}
}
