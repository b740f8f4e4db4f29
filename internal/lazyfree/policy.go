// Package lazyfree decides, at deletion time, whether a value can be
// destroyed inline on the reactor thread or must be handed to the
// background bio.LazyFree queue, based on a cheap effort estimate
// (§4.4).
package lazyfree

import (
	"sync/atomic"

	"github.com/TomeC/redis-note/internal/bio"
	"github.com/TomeC/redis-note/internal/dict"
)

// Threshold is the effort above which a value becomes eligible for
// offload (§4.4.2).
const Threshold = 64

// Policy wires the bio worker pool into the delete path. It holds no
// keyspace state of its own: every call takes the tables it needs
// (§4.4.4).
type Policy struct {
	pool    *bio.Pool
	pending atomic.Int64
}

// New constructs a Policy backed by pool.
func New(pool *bio.Pool) *Policy {
	return &Policy{pool: pool}
}

// PendingCount returns the number of lazy-free jobs submitted but not
// yet executed by the worker (§4.4.3).
func (p *Policy) PendingCount() int64 {
	return p.pending.Load()
}

// effort estimates the cost of destroying v: the element count for a
// dict.Sizer-implementing aggregate, 1 for everything else (§4.4.1).
func effort(v dict.Value) int {
	if s, ok := v.(dict.Sizer); ok {
		n := s.Len()
		if n < 1 {
			return 1
		}
		return n
	}
	return 1
}

// eligible applies the §4.4.2 decision rule: offload iff the effort
// estimate exceeds Threshold and the value is uniquely owned. A
// shared value's other owner may still be reading it from the
// worker's perspective, so it is never a candidate for offload.
func eligible(v dict.Value) bool {
	return effort(v) > Threshold && v.IsUnique()
}

// AsyncDelete removes key from table, destroying its value inline or
// handing it to the LazyFree queue depending on eligibility, and
// reports whether key was present (§4.4.3 "async_delete"). expires,
// if non-nil, has any TTL entry for key removed inline regardless of
// which path the value takes.
func (p *Policy) AsyncDelete(table *dict.Table, expires *dict.Table, key []byte) bool {
	if expires != nil {
		_ = expires.Delete(key)
	}

	ref, err := table.Unlink(key)
	if err != nil {
		return false
	}
	p.freeEntry(table, ref)
	return true
}

// freeEntry applies the eligibility decision to an entry already
// unlinked from table, either freeing it inline or submitting it to
// the LazyFree queue.
func (p *Policy) freeEntry(table *dict.Table, ref dict.EntryRef) {
	if eligible(ref.Value()) {
		p.pending.Add(1)
		p.pool.Submit(bio.LazyFree, func() {
			table.FreeUnlinked(ref)
			p.pending.Add(-1)
		})
		return
	}
	table.FreeUnlinked(ref)
}

// AsyncFreeObject applies the same decision rule to a value that has
// already been unlinked from any table by the caller (§4.4.3
// "async_free_object"). destroy is invoked either inline or from the
// LazyFree worker, depending on eligibility.
func (p *Policy) AsyncFreeObject(v dict.Value, destroy func()) {
	if eligible(v) {
		p.pending.Add(1)
		p.pool.Submit(bio.LazyFree, func() {
			destroy()
			p.pending.Add(-1)
		})
		return
	}
	destroy()
}

// AsyncEmptyDB replaces table and expires with fresh empty tables of
// the same Type, returning the new pair, and submits the old pair as
// a single LazyFree job that destroys both in sequence (§4.4.3
// "async_empty_db").
func (p *Policy) AsyncEmptyDB(table, expires *dict.Table, tableType, expiresType dict.Type) (newTable, newExpires *dict.Table) {
	newTable = dict.New(tableType)
	newExpires = dict.New(expiresType)

	p.pending.Add(1)
	p.pool.Submit(bio.LazyFree, func() {
		table.Destroy()
		expires.Destroy()
		p.pending.Add(-1)
	})
	return newTable, newExpires
}
