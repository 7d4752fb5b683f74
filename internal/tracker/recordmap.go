package tracker

import "hash/fnv"

// AccessRecord is one instruction's observed hits, keyed by its RIP at trap
// time. Count is monotonically non-decreasing over a tracking session.
type AccessRecord struct {
	IP      uint64
	Bytes   [16]byte
	Count   uint64
	IsWrite bool
}

// recordBucket is one open-chained slot in recordMap: an FNV-1a hashed,
// open-chained bucket holding an *AccessRecord instead of a float64.
type recordBucket struct {
	key      uint64
	value    *AccessRecord
	occupied bool
	next     *recordBucket
}

// recordMap is an address-keyed hash map of AccessRecords, used instead of
// a plain Go map so the hashing strategy (FNV-1a, open chaining) and growth
// policy (double past a 0.75 load factor) are explicit rather than the
// runtime's built-in ones.
type recordMap struct {
	buckets []recordBucket
	size    int
	count   int
}

func newRecordMap(initialSize int) *recordMap {
	if initialSize < 16 {
		initialSize = 16
	}
	return &recordMap{buckets: make([]recordBucket, initialSize), size: initialSize}
}

func (m *recordMap) hash(key uint64) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(key >> (i * 8))
	}
	h.Write(b[:])
	return h.Sum64()
}

func (m *recordMap) get(key uint64) (*AccessRecord, bool) {
	idx := m.hash(key) % uint64(m.size)
	bucket := &m.buckets[idx]
	if bucket.occupied && bucket.key == key {
		return bucket.value, true
	}
	for cur := bucket.next; cur != nil; cur = cur.next {
		if cur.key == key {
			return cur.value, true
		}
	}
	return nil, false
}

// upsert increments Count on an existing record or inserts a fresh one
// with Count=1, mirroring the source's "upsert into the record map keyed
// by RIP" trap handler.
func (m *recordMap) upsert(key uint64, bytes [16]byte, isWrite bool) {
	idx := m.hash(key) % uint64(m.size)
	bucket := &m.buckets[idx]

	if !bucket.occupied {
		bucket.key = key
		bucket.value = &AccessRecord{IP: key, Bytes: bytes, Count: 1, IsWrite: isWrite}
		bucket.occupied = true
		m.count++
		return
	}
	if bucket.key == key {
		bucket.value.Count++
		return
	}

	prev := bucket
	for cur := bucket.next; cur != nil; cur = cur.next {
		if cur.key == key {
			cur.value.Count++
			return
		}
		prev = cur
	}
	prev.next = &recordBucket{
		key:      key,
		value:    &AccessRecord{IP: key, Bytes: bytes, Count: 1, IsWrite: isWrite},
		occupied: true,
	}
	m.count++

	if float64(m.count)/float64(m.size) > 0.75 {
		m.resize()
	}
}

func (m *recordMap) resize() {
	old := m.buckets
	m.size *= 2
	m.buckets = make([]recordBucket, m.size)
	m.count = 0

	reinsert := func(b *recordBucket) {
		idx := m.hash(b.key) % uint64(m.size)
		dst := &m.buckets[idx]
		if !dst.occupied {
			dst.key, dst.value, dst.occupied = b.key, b.value, true
		} else {
			cur := dst
			for cur.next != nil {
				cur = cur.next
			}
			cur.next = &recordBucket{key: b.key, value: b.value, occupied: true}
		}
		m.count++
	}

	for i := range old {
		b := &old[i]
		if b.occupied {
			reinsert(b)
		}
		for cur := b.next; cur != nil; cur = cur.next {
			reinsert(cur)
		}
	}
}

// values returns every stored record, in unspecified order.
func (m *recordMap) values() []*AccessRecord {
	out := make([]*AccessRecord, 0, m.count)
	for i := range m.buckets {
		b := &m.buckets[i]
		if b.occupied {
			out = append(out, b.value)
		}
		for cur := b.next; cur != nil; cur = cur.next {
			out = append(out, cur.value)
		}
	}
	return out
}

func (m *recordMap) clear() {
	m.buckets = make([]recordBucket, 16)
	m.size = 16
	m.count = 0
}
