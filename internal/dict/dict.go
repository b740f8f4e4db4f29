// Package dict implements the incrementally-resized hash table that
// backs the keyspace: two bucket tables, a progressive rehash cursor,
// safe/unsafe iteration, and a stateless cursor-based scan. It is the
// single largest subsystem of the core (§4.2) and the primary
// container commands mutate.
//
// A Table is owned by a single goroutine (the reactor thread, in
// practice) and takes no internal lock: §5 is explicit that the
// keyspace is reactor-owned and unsynchronized.
package dict

// Type is the capability record a Table is parameterized over: the
// hash function, an optional key duplicator/destructor, the key
// comparator, and an optional value destructor. It replaces the
// C dictType function-pointer struct (§9, "dynamic dispatch →
// capability records").
type Type interface {
	Hash(key []byte) uint64
	Equal(a, b []byte) bool
	// DupKey may return nil to mean "no duplication, keep the
	// caller's slice"; every implementation in this package copies.
	DupKey(key []byte) []byte
	DestroyKey(key []byte)
	DestroyValue(v Value)
}

const (
	initialSize      = 4
	forceResizeRatio = 5
	noRehash         = -1
)

// entry is one arena slot. index 0 of every bucketTable's arena is a
// permanently unused sentinel so that 0 can double as the "no entry"
// value in bucket heads and next-pointers (§9, "arena + next-index").
type entry struct {
	key   []byte
	value Value
	hash  uint64
	next  uint32
}

// bucketTable is one of a Table's two generations (T0 or T1 in the
// spec). buckets[i] holds the 1-based arena index of the head of
// bucket i's chain, or 0 if empty.
type bucketTable struct {
	buckets []uint32
	entries []entry
	free    []uint32
	mask    uint64
	used    uint64
}

func newBucketTable(size uint64) *bucketTable {
	return &bucketTable{
		buckets: make([]uint32, size),
		entries: make([]entry, 1, size+1), // entries[0] is the sentinel
		mask:    size - 1,
	}
}

func (t *bucketTable) size() uint64 { return uint64(len(t.buckets)) }

func (t *bucketTable) alloc() uint32 {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		return idx
	}
	t.entries = append(t.entries, entry{})
	return uint32(len(t.entries) - 1)
}

func (t *bucketTable) release(idx uint32) {
	t.entries[idx] = entry{}
	t.free = append(t.free, idx)
}

// Table is the keyspace's incrementally-resized hash table (§3.1,
// §4.2). The zero Table is not usable; construct with New.
type Table struct {
	typ    Type
	priv   any
	t0, t1 *bucketTable
	// rehashCursor is the index into t0 currently being migrated, or
	// noRehash when t1 is empty/unallocated (§3.1 invariant).
	rehashCursor int64
	// liveIterators counts safe iterators currently open; while it is
	// nonzero, mutating operations must not run a rehash step (§4.2.5).
	liveIterators int
	canResize     bool
}

// New returns an empty Table using typ for hashing, comparison and
// destruction, with resizing permitted. The Go Type interface closes
// over its own state instead of taking a privdata parameter, so
// nothing in this port sets or reads the Table's priv field.
func New(typ Type) *Table {
	return &Table{typ: typ, rehashCursor: noRehash, canResize: true}
}

// Len returns the number of keys across both generations.
func (d *Table) Len() int {
	n := 0
	if d.t0 != nil {
		n += int(d.t0.used)
	}
	if d.t1 != nil {
		n += int(d.t1.used)
	}
	return n
}

// Slots returns the total bucket capacity across both generations.
func (d *Table) Slots() uint64 {
	var n uint64
	if d.t0 != nil {
		n += d.t0.size()
	}
	if d.t1 != nil {
		n += d.t1.size()
	}
	return n
}

// IsRehashing reports whether a rehash is in progress.
func (d *Table) IsRehashing() bool { return d.rehashCursor != noRehash }

// SetCanResize toggles the allow-resize policy knob (§4.2.1). The
// caller is responsible for deciding when to flip it (e.g. around a
// fork-based snapshot); this package only honors the flag.
func (d *Table) SetCanResize(v bool) { d.canResize = v }

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// expandIfNeeded mirrors _dictExpandIfNeeded: allocate the initial
// table on first use, and start a rehash into a bigger table once the
// load factor crosses 1 (or unconditionally once it crosses the force
// ratio, regardless of the allow-resize policy knob).
func (d *Table) expandIfNeeded() {
	if d.IsRehashing() {
		return
	}
	if d.t0 == nil {
		d.expand(initialSize)
		return
	}
	if d.t0.used >= d.t0.size() &&
		(d.canResize || d.t0.used > forceResizeRatio*d.t0.size()) {
		d.expand(d.t0.used * 2)
	}
}

// expand allocates a new generation sized to the next power of two
// >= size and either installs it directly (first allocation) or
// starts an incremental rehash into it.
func (d *Table) expand(size uint64) {
	if d.IsRehashing() || (d.t0 != nil && d.t0.used > size) {
		return
	}
	realSize := nextPow2(size)
	if d.t0 != nil && realSize == d.t0.size() {
		return
	}
	nt := newBucketTable(realSize)
	if d.t0 == nil {
		d.t0 = nt
		return
	}
	d.t1 = nt
	d.rehashCursor = 0
}

// Resize shrinks the table to the smallest power of two >= max(used, 4)
// that still fits every live key, per §3.4. It is a no-op while a
// rehash is already in progress or resizing is disallowed.
func (d *Table) Resize() {
	if !d.canResize || d.IsRehashing() || d.t0 == nil {
		return
	}
	minimal := d.t0.used
	if minimal < initialSize {
		minimal = initialSize
	}
	d.expand(minimal)
}

// rehashStep performs one step of incremental rehashing: migrate every
// entry of the non-empty bucket at rehashCursor into t1, bounding
// empty-bucket probing at 10*n for an n-step call (§4.2.2).
func (d *Table) rehashStep(n int) bool {
	if !d.IsRehashing() {
		return false
	}
	emptyVisits := n * 10
	for n > 0 && d.t0.used != 0 {
		n--
		for d.t0.buckets[d.rehashCursor] == 0 {
			d.rehashCursor++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}
		idx := d.t0.buckets[d.rehashCursor]
		for idx != 0 {
			e := &d.t0.entries[idx]
			next := e.next

			newIdx := d.t1.alloc()
			bucket := e.hash & d.t1.mask
			*d.t1Entry(newIdx) = entry{key: e.key, value: e.value, hash: e.hash, next: d.t1.buckets[bucket]}
			d.t1.buckets[bucket] = newIdx
			d.t1.used++

			d.t0.release(idx)
			d.t0.used--
			idx = next
		}
		d.t0.buckets[d.rehashCursor] = 0
		d.rehashCursor++
	}
	if d.t0.used == 0 {
		d.t0 = d.t1
		d.t1 = nil
		d.rehashCursor = noRehash
		return false
	}
	return true
}

func (d *Table) t1Entry(idx uint32) *entry { return &d.t1.entries[idx] }

// maybeRehashStep runs one rehash step iff no safe iterator is live,
// per the §4.2.5 gate.
func (d *Table) maybeRehashStep() {
	if d.liveIterators == 0 {
		d.rehashStep(1)
	}
}

// Rehash runs up to n steps of incremental rehash regardless of the
// iterator gate, for callers that want to drive migration directly
// (e.g. a test, or an idle-time hook). It returns whether rehashing
// is still in progress afterward.
func (d *Table) Rehash(n int) bool { return d.rehashStep(n) }

// RehashMilliseconds runs rehash steps of 100 until ms milliseconds
// have elapsed or rehashing completes (§4.2.2 "time-budgeted
// variant"). now must return the current time in milliseconds (for
// example a wrapper around time.Now().UnixMilli); it is injected so
// tests can drive it deterministically.
func (d *Table) RehashMilliseconds(ms int, now func() int64) int {
	start := now()
	rehashed := 0
	for d.rehashStep(100) {
		rehashed += 100
		if now()-start > int64(ms) {
			break
		}
	}
	return rehashed
}
