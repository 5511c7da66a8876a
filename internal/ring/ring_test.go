package ring

import (
	"encoding/binary"
	"testing"
)

func TestNewRingAllSlotsEmpty(t *testing.T) {
	t.Parallel()
	r := New(3, false)
	for i, s := range r.Slots {
		if s.segCount != SegmentCountEmpty {
			t.Errorf("slot %d segCount = %#x, want SegmentCountEmpty", i, s.segCount)
		}
	}
}

func TestPublishSegmentWritesHeaderAndAdvancesIndex(t *testing.T) {
	t.Parallel()
	r := New(2, false)
	payload := make([]byte, 188*3)
	r.PublishSegment(payload, 1000, nil)

	slot1 := r.Slots[1]
	if slot1.segCount != 1 {
		t.Errorf("segCount = %d, want 1", slot1.segCount)
	}
	buf := r.Snapshot(1)
	if buf[0] != 0x47 || buf[1] != 0x01 || buf[2] != 0xFF || buf[3] != 0x10 {
		t.Fatalf("segment header magic = %x", buf[0:4])
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != 1 {
		t.Errorf("header segCount = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint32(buf[8:12]); got != 3 {
		t.Errorf("header packet count = %d, want 3", got)
	}
	if r.segIndex != 2 {
		t.Errorf("segIndex = %d, want 2", r.segIndex)
	}
}

func TestPublishSegmentWhenReaderAttachedStagesBackBuf(t *testing.T) {
	t.Parallel()
	r := New(2, false)
	r.MarkReaderAttached(1)
	r.PublishSegment(make([]byte, 188), 500, nil)

	slot := r.Slots[1]
	if len(slot.buf) != 0 {
		t.Error("expected buf untouched while reader attached")
	}
	if len(slot.backBuf) == 0 {
		t.Fatal("expected backBuf staged")
	}

	r.SwapIfPending(1)
	if len(slot.buf) == 0 || len(slot.backBuf) != 0 {
		t.Error("expected swap to move backBuf into buf and clear backBuf")
	}
}

func TestIndexReflectsEndList(t *testing.T) {
	t.Parallel()
	r := New(2, false)
	r.PublishSegment(make([]byte, 188), 1000, nil)
	r.SetEndList()

	idx := r.Snapshot(0)
	if idx[8] != 1 {
		t.Errorf("endList flag = %d, want 1", idx[8])
	}
}

func TestPublishSegmentIndexRecordCarriesDurationAndTime(t *testing.T) {
	t.Parallel()
	r := New(2, false)
	r.PublishSegment(make([]byte, 188), 1500, nil)

	idx := r.Snapshot(0)
	rec := idx[16:32] // segNum=2 -> exactly one index record
	if got := binary.BigEndian.Uint32(rec[8:12]); got != 1 {
		t.Errorf("record segCount = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint16(rec[12:14]); got != 1500 {
		t.Errorf("record segDurationMsec = %d, want 1500", got)
	}
	if got := binary.BigEndian.Uint16(rec[14:16]); got != 150 {
		t.Errorf("record segTimeMsec/10 = %d, want 150 (1500ms/10)", got)
	}
}

func TestAppendFragmentMarksIncomplete(t *testing.T) {
	t.Parallel()
	r := New(2, true)
	r.StartSegment()
	r.AppendFragment([]byte{1, 2, 3}, 200)

	idx := r.Snapshot(0)
	if idx[9] != 1 {
		t.Errorf("incomplete flag = %d, want 1", idx[9])
	}
	if idx[10] != 1 {
		t.Errorf("isMp4 flag = %d, want 1", idx[10])
	}

	r.AppendFragment([]byte{4, 5}, 300)
	r.FinalizeSegment(1000)
	idx = r.Snapshot(0)
	if idx[9] != 0 {
		t.Errorf("incomplete flag after finalize = %d, want 0", idx[9])
	}

	slot := r.Slots[1]
	buf := slot.buf
	payload := segmentPayload(buf)
	if len(payload) != 5 {
		t.Errorf("accumulated payload = %d bytes, want 5", len(payload))
	}
	if r.segIndex != 2 {
		t.Errorf("segIndex after finalize = %d, want 2", r.segIndex)
	}
}
