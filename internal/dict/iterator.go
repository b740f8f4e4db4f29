package dict

// fingerprint returns a 64-bit digest of the dictionary's current
// generation pointers, sizes and used-counts, scrambled through
// Wang's integer hash (§4.2.5). Two fingerprints taken with no
// mutation in between are guaranteed equal; any mutation (including a
// rehash step) is very likely to change at least one of the six
// inputs and therefore the digest.
func (d *Table) fingerprint() uint64 {
	var t0ptr, t1ptr uint64
	var t0size, t0used, t1size, t1used uint64
	if d.t0 != nil {
		t0ptr = tableIdentity(d.t0)
		t0size, t0used = d.t0.size(), d.t0.used
	}
	if d.t1 != nil {
		t1ptr = tableIdentity(d.t1)
		t1size, t1used = d.t1.size(), d.t1.used
	}

	integers := [6]uint64{t0ptr, t0size, t0used, t1ptr, t1size, t1used}
	var hash uint64
	for _, v := range integers {
		hash += v
		hash = (^hash) + (hash << 21)
		hash ^= hash >> 24
		hash = (hash + (hash << 3)) + (hash << 8)
		hash ^= hash >> 14
		hash = (hash + (hash << 2)) + (hash << 4)
		hash ^= hash >> 28
		hash += hash << 31
	}
	return hash
}

// Iterator walks every entry of a Table across both generations,
// T0 first (in bucket-index, then chain, order) and T1 second when a
// rehash is in progress.
type Iterator struct {
	d        *Table
	safe     bool
	table    int
	bucket   int64
	cur      uint32
	next     uint32
	started  bool
	finished bool
	fp       uint64
}

// NewSafeIterator returns an iterator that permits arbitrary inserts,
// deletes and lookups against d while it is live; in exchange, no
// rehash step runs until it is released (§4.2.5).
func NewSafeIterator(d *Table) *Iterator {
	return &Iterator{d: d, safe: true, bucket: -1}
}

// NewIterator returns an unsafe iterator: faster, but only Next may
// be called against d between creation and Release. Any mutation in
// between is a detected programmer error.
func NewIterator(d *Table) *Iterator {
	return &Iterator{d: d, bucket: -1}
}

// Next advances the iterator and returns the next entry, or a zero
// EntryRef with ok == false once iteration is complete.
func (it *Iterator) Next() (ref EntryRef, ok bool) {
	for {
		if it.cur == 0 {
			if !it.started {
				it.started = true
				if it.safe {
					it.d.liveIterators++
				} else {
					it.fp = it.d.fingerprint()
				}
			}
			tbl := it.currentTable()
			if tbl == nil {
				return EntryRef{}, false
			}
			it.bucket++
			if uint64(it.bucket) >= tbl.size() {
				if it.table == 0 && it.d.IsRehashing() {
					it.table = 1
					it.bucket = 0
					tbl = it.d.t1
				} else {
					it.finished = true
					return EntryRef{}, false
				}
			}
			it.cur = tbl.buckets[it.bucket]
		} else {
			it.cur = it.next
		}
		if it.cur != 0 {
			tbl := it.tableAt(it.table)
			it.next = tbl.entries[it.cur].next
			return EntryRef{tbl: tbl, idx: it.cur}, true
		}
	}
}

func (it *Iterator) currentTable() *bucketTable { return it.tableAt(it.table) }

func (it *Iterator) tableAt(n int) *bucketTable {
	if n == 0 {
		return it.d.t0
	}
	return it.d.t1
}

// Release ends iteration. For a safe iterator it drops the live count
// that was gating rehash steps; for an unsafe iterator it recomputes
// the fingerprint and panics if the dictionary was mutated, per the
// §8.1 fingerprint law.
func (it *Iterator) Release() {
	if !it.started {
		return
	}
	if it.safe {
		it.d.liveIterators--
		return
	}
	if it.fp != it.d.fingerprint() {
		panic("dict: unsafe iterator fingerprint mismatch: dictionary was mutated during unsafe iteration")
	}
}
