package dict

import "math/rand/v2"

// RandomEntry returns a uniformly random entry across both
// generations. While rehashing it samples using cursor-offset indexing
// so the already-migrated, now-empty prefix of T0 is never visited
// (§4.2.3).
func (d *Table) RandomEntry() (EntryRef, bool) {
	if d.Len() == 0 {
		return EntryRef{}, false
	}
	if d.IsRehashing() {
		d.maybeRehashStep()
	}

	var tbl *bucketTable
	var bucket uint64
	if d.IsRehashing() {
		for {
			total := d.t0.size() + d.t1.size() - uint64(d.rehashCursor)
			hkey := uint64(d.rehashCursor) + rand.Uint64N(total)
			if hkey >= d.t0.size() {
				tbl, bucket = d.t1, hkey-d.t0.size()
			} else {
				tbl, bucket = d.t0, hkey
			}
			if tbl.buckets[bucket] != 0 {
				break
			}
		}
	} else {
		for {
			bucket = rand.Uint64N(d.t0.size())
			tbl = d.t0
			if tbl.buckets[bucket] != 0 {
				break
			}
		}
	}

	idx := tbl.buckets[bucket]
	n := 0
	for i := idx; i != 0; i = tbl.entries[i].next {
		n++
	}
	pick := rand.IntN(n)
	for ; pick > 0; pick-- {
		idx = tbl.entries[idx].next
	}
	return EntryRef{tbl: tbl, idx: idx}, true
}

// Sample fills out with up to n entries drawn from consecutive
// buckets starting at a random index, probing both generations while
// rehashing, and bails out after 10n steps (§4.2.3). It is the
// probabilistic-eviction primitive: cheap, approximately uniform, and
// bounded regardless of how sparse the table is.
func (d *Table) Sample(n int) []EntryRef {
	total := d.Len()
	if n > total {
		n = total
	}
	if n == 0 {
		return nil
	}
	out := make([]EntryRef, 0, n)

	for j := 0; j < n && d.IsRehashing(); j++ {
		d.maybeRehashStep()
	}

	tables := 1
	maxMask := d.t0.mask
	var t1 *bucketTable
	if d.IsRehashing() {
		tables = 2
		t1 = d.t1
		if maxMask < t1.mask {
			maxMask = t1.mask
		}
	}

	randKey := rand.Uint64N(maxMask + 1)
	var emptyLen int
	maxSteps := n * 10

	for len(out) < n && maxSteps > 0 {
		maxSteps--
		for j := 0; j < tables; j++ {
			tbl := d.t0
			if j == 1 {
				tbl = t1
			}
			if tables == 2 && j == 0 && randKey < uint64(d.rehashCursor) {
				if randKey >= t1.size() {
					randKey = uint64(d.rehashCursor)
				} else {
					continue
				}
			}
			if randKey >= tbl.size() {
				continue
			}
			idx := tbl.buckets[randKey]
			if idx == 0 {
				emptyLen++
				if emptyLen >= 5 && emptyLen > n {
					randKey = rand.Uint64N(maxMask + 1)
					emptyLen = 0
				}
				continue
			}
			emptyLen = 0
			for idx != 0 {
				out = append(out, EntryRef{tbl: tbl, idx: idx})
				idx = tbl.entries[idx].next
				if len(out) == n {
					return out
				}
			}
		}
		randKey = (randKey + 1) & maxMask
	}
	return out
}
