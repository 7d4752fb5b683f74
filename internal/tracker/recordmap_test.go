package tracker

import "testing"

func TestRecordMapUpsertInsertsThenIncrements(t *testing.T) {
	m := newRecordMap(16)
	var b [16]byte

	m.upsert(0x1000, b, false)
	rec, ok := m.get(0x1000)
	if !ok || rec.Count != 1 {
		t.Fatalf("after first upsert: rec=%+v ok=%v", rec, ok)
	}

	m.upsert(0x1000, b, false)
	rec, _ = m.get(0x1000)
	if rec.Count != 2 {
		t.Errorf("Count after second upsert = %d, want 2", rec.Count)
	}
}

func TestRecordMapDistinctKeys(t *testing.T) {
	m := newRecordMap(16)
	var b [16]byte
	m.upsert(0x1000, b, false)
	m.upsert(0x2000, b, true)

	if len(m.values()) != 2 {
		t.Fatalf("expected 2 distinct records, got %d", len(m.values()))
	}
	rec, ok := m.get(0x2000)
	if !ok || !rec.IsWrite {
		t.Errorf("record at 0x2000: %+v, %v", rec, ok)
	}
}

func TestRecordMapGetMissingKey(t *testing.T) {
	m := newRecordMap(16)
	if _, ok := m.get(0xdead); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestRecordMapResizesUnderLoad(t *testing.T) {
	m := newRecordMap(16)
	var b [16]byte
	for i := uint64(0); i < 50; i++ {
		m.upsert(i, b, false)
	}
	if m.size <= 16 {
		t.Errorf("expected resize past load factor, size = %d", m.size)
	}
	if len(m.values()) != 50 {
		t.Errorf("expected 50 records to survive resize, got %d", len(m.values()))
	}
	for i := uint64(0); i < 50; i++ {
		if rec, ok := m.get(i); !ok || rec.Count != 1 {
			t.Errorf("record %d lost or corrupted after resize: %+v, %v", i, rec, ok)
		}
	}
}

func TestRecordMapClear(t *testing.T) {
	m := newRecordMap(16)
	var b [16]byte
	m.upsert(0x1000, b, false)
	m.clear()
	if len(m.values()) != 0 {
		t.Error("expected empty map after clear")
	}
	if _, ok := m.get(0x1000); ok {
		t.Error("expected key to be gone after clear")
	}
}
