package dict

// EntryRef is a handle to a single arena slot, returned by the
// "raw" primitives so callers can set a value after insertion (or
// inspect a value before destroying it) without a second lookup. The
// zero EntryRef is invalid; Valid reports whether it refers to a slot.
type EntryRef struct {
	tbl *bucketTable
	idx uint32
}

// Valid reports whether ref refers to a live arena slot.
func (ref EntryRef) Valid() bool { return ref.tbl != nil }

// Key returns the entry's key.
func (ref EntryRef) Key() []byte { return ref.tbl.entries[ref.idx].key }

// Value returns the entry's current value.
func (ref EntryRef) Value() Value { return ref.tbl.entries[ref.idx].value }

// SetValue overwrites the entry's value in place. Callers implementing
// replace-style semantics must call SetValue with the new value
// before destroying the old one (§4.2.3 "Replace"), since values may
// be self-referential.
func (ref EntryRef) SetValue(v Value) { ref.tbl.entries[ref.idx].value = v }

func (d *Table) searchTable(tbl *bucketTable, key []byte, hash uint64) uint32 {
	idx := tbl.buckets[hash&tbl.mask]
	for idx != 0 {
		e := &tbl.entries[idx]
		if e.hash == hash && d.typ.Equal(e.key, key) {
			return idx
		}
		idx = e.next
	}
	return 0
}

// lookup probes t0, then t1 if rehashing, per the §4.2.2 invariant.
func (d *Table) lookup(key []byte, hash uint64) (tbl *bucketTable, idx uint32) {
	if d.t0 == nil {
		return nil, 0
	}
	if i := d.searchTable(d.t0, key, hash); i != 0 {
		return d.t0, i
	}
	if d.IsRehashing() {
		if i := d.searchTable(d.t1, key, hash); i != 0 {
			return d.t1, i
		}
	}
	return nil, 0
}

// Find returns the value stored under key, if any.
func (d *Table) Find(key []byte) (Value, bool) {
	if d.t0 == nil {
		return nil, false
	}
	if d.IsRehashing() {
		d.maybeRehashStep()
	}
	tbl, idx := d.lookup(key, d.typ.Hash(key))
	if tbl == nil {
		return nil, false
	}
	return tbl.entries[idx].value, true
}

// AddRaw is the core insertion primitive (§4.2.3). If key is absent it
// allocates a new entry (value unset) and returns (ref, false). If
// key is already present it returns (ref to the existing entry, true)
// without touching it.
func (d *Table) AddRaw(key []byte) (ref EntryRef, existed bool) {
	if d.IsRehashing() {
		d.maybeRehashStep()
	}
	d.expandIfNeeded()

	hash := d.typ.Hash(key)
	if tbl, idx := d.lookup(key, hash); tbl != nil {
		return EntryRef{tbl: tbl, idx: idx}, true
	}

	target := d.t0
	if d.IsRehashing() {
		target = d.t1
	}
	idx := target.alloc()
	bucket := hash & target.mask
	dup := key
	if dk := d.typ.DupKey(key); dk != nil {
		dup = dk
	}
	target.entries[idx] = entry{key: dup, hash: hash, next: target.buckets[bucket]}
	target.buckets[bucket] = idx
	target.used++
	return EntryRef{tbl: target, idx: idx}, false
}

// Add inserts v under key, failing with ErrKeyExists if key is
// already present (the value is left untouched in that case).
func (d *Table) Add(key []byte, v Value) error {
	ref, existed := d.AddRaw(key)
	if existed {
		return ErrKeyExists
	}
	ref.SetValue(v)
	return nil
}

// AddOrFind returns the entry for key, inserting an entry with a nil
// value first if key was absent (§4.2.3).
func (d *Table) AddOrFind(key []byte) EntryRef {
	ref, _ := d.AddRaw(key)
	return ref
}

// Replace inserts v under key, or overwrites the existing value. It
// reports true when key was newly inserted, false when an existing
// value was overwritten. The new value is installed before the old
// one is destroyed, as required for self-referential values.
func (d *Table) Replace(key []byte, v Value) bool {
	ref, existed := d.AddRaw(key)
	if !existed {
		ref.SetValue(v)
		return true
	}
	old := ref.Value()
	ref.SetValue(v)
	d.typ.DestroyValue(old)
	return false
}

func (d *Table) unlinkFromTable(tbl *bucketTable, key []byte, hash uint64) uint32 {
	bucket := hash & tbl.mask
	idx := tbl.buckets[bucket]
	var prev uint32
	for idx != 0 {
		e := &tbl.entries[idx]
		if e.hash == hash && d.typ.Equal(e.key, key) {
			if prev == 0 {
				tbl.buckets[bucket] = e.next
			} else {
				tbl.entries[prev].next = e.next
			}
			tbl.used--
			return idx
		}
		prev = idx
		idx = e.next
	}
	return 0
}

// removeEntry unlinks key from whichever generation holds it, without
// freeing the arena slot, and reports whether it was found.
func (d *Table) removeEntry(key []byte) (EntryRef, bool) {
	if d.t0 == nil || d.Len() == 0 {
		return EntryRef{}, false
	}
	if d.IsRehashing() {
		d.maybeRehashStep()
	}
	hash := d.typ.Hash(key)
	if idx := d.unlinkFromTable(d.t0, key, hash); idx != 0 {
		return EntryRef{tbl: d.t0, idx: idx}, true
	}
	if d.IsRehashing() {
		if idx := d.unlinkFromTable(d.t1, key, hash); idx != 0 {
			return EntryRef{tbl: d.t1, idx: idx}, true
		}
	}
	return EntryRef{}, false
}

func (d *Table) destroyAndRelease(ref EntryRef) {
	e := &ref.tbl.entries[ref.idx]
	d.typ.DestroyKey(e.key)
	d.typ.DestroyValue(e.value)
	ref.tbl.release(ref.idx)
}

// Delete removes key, invoking the type's destructors, and reports
// ErrKeyNotFound if key was absent.
func (d *Table) Delete(key []byte) error {
	ref, found := d.removeEntry(key)
	if !found {
		return ErrKeyNotFound
	}
	d.destroyAndRelease(ref)
	return nil
}

// Unlink removes key from the chain without invoking any destructor,
// returning a handle the caller must eventually pass to FreeUnlinked
// (§4.2.3). This is the O(1) primitive a rename-style operation uses
// to move a value between keys without a destroy/recreate cycle.
func (d *Table) Unlink(key []byte) (EntryRef, error) {
	ref, found := d.removeEntry(key)
	if !found {
		return EntryRef{}, ErrKeyNotFound
	}
	return ref, nil
}

// FreeUnlinked releases an entry previously detached by Unlink,
// invoking the type's destructors on it.
func (d *Table) FreeUnlinked(ref EntryRef) {
	d.destroyAndRelease(ref)
}

// Destroy releases every entry in both generations, invoking the
// type's destructors on each, mirroring dictRelease.
func (d *Table) Destroy() {
	for _, tbl := range []*bucketTable{d.t0, d.t1} {
		if tbl == nil {
			continue
		}
		for i := 1; i < len(tbl.entries); i++ {
			e := &tbl.entries[i]
			if e.key == nil && e.value == nil {
				continue // already freed, sitting on the free list
			}
			d.typ.DestroyKey(e.key)
			d.typ.DestroyValue(e.value)
		}
	}
	d.t0, d.t1 = nil, nil
	d.rehashCursor = noRehash
}
