package dict

// ScanFunc is invoked once for every entry visited by Scan.
type ScanFunc func(ref EntryRef)

// BucketFunc, if non-nil, is invoked once per visited bucket with the
// number of entries chained there, before ScanFunc is called for any
// of them.
type BucketFunc func(chainLen int)

// rev reverses the bits of a 64-bit cursor. This is the building
// block of the Noordhuis scan algorithm (§4.2.4): incrementing the
// bit-reversed cursor instead of the cursor itself means buckets
// already visited at a smaller mask stay covered after the table
// grows.
func rev(v uint64) uint64 {
	s := uint(64)
	mask := ^uint64(0)
	for {
		s >>= 1
		if s == 0 {
			break
		}
		mask ^= mask << s
		v = ((v >> s) & mask) | ((v << s) &^ mask)
	}
	return v
}

func visitBucket(tbl *bucketTable, bucket uint64, fn ScanFunc, bucketFn BucketFunc) {
	head := tbl.buckets[bucket]
	if bucketFn != nil {
		n := 0
		for i := head; i != 0; i = tbl.entries[i].next {
			n++
		}
		bucketFn(n)
	}
	idx := head
	for idx != 0 {
		next := tbl.entries[idx].next
		fn(EntryRef{tbl: tbl, idx: idx})
		idx = next
	}
}

// Scan implements the stateless cursor-based scan (§4.2.4). Call it
// with cursor 0 to start; each call returns the cursor to pass to the
// next call, and iteration is complete once the returned cursor is 0.
// It guarantees every key present throughout the scan is returned at
// least once, tolerating concurrent resizes; an element may be
// reported more than once.
func (d *Table) Scan(cursor uint64, fn ScanFunc, bucketFn BucketFunc) uint64 {
	if d.Len() == 0 {
		return 0
	}

	if !d.IsRehashing() {
		t0 := d.t0
		m0 := t0.mask
		visitBucket(t0, cursor&m0, fn, bucketFn)

		cursor |= ^m0
		cursor = rev(cursor)
		cursor++
		cursor = rev(cursor)
		return cursor
	}

	small, big := d.t0, d.t1
	if small.size() > big.size() {
		small, big = big, small
	}
	mSmall, mBig := small.mask, big.mask

	visitBucket(small, cursor&mSmall, fn, bucketFn)

	for {
		visitBucket(big, cursor&mBig, fn, bucketFn)

		cursor |= ^mBig
		cursor = rev(cursor)
		cursor++
		cursor = rev(cursor)

		if cursor&(mSmall^mBig) == 0 {
			break
		}
	}
	return cursor
}
