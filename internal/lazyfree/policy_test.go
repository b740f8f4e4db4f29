package lazyfree

import (
	"fmt"
	"testing"
	"time"

	"github.com/TomeC/redis-note/internal/bio"
	"github.com/TomeC/redis-note/internal/dict"
)

func newTestTable() *dict.Table {
	dict.SetSeedForTest([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	return dict.New(dict.BytesKeyType{})
}

// TestInlineBelowThreshold covers S4's first half: deleting a value
// whose effort does not exceed Threshold is destroyed inline and
// never touches the LazyFree queue.
func TestInlineBelowThreshold(t *testing.T) {
	pool := bio.NewPool()
	defer pool.KillAll()
	p := New(pool)

	table := newTestTable()
	if err := table.Add([]byte("k"), dict.NewAggregate(63)); err != nil {
		t.Fatal(err)
	}

	if !p.AsyncDelete(table, nil, []byte("k")) {
		t.Fatal("AsyncDelete reported key absent")
	}
	if p.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", p.PendingCount())
	}
	if _, ok := table.Find([]byte("k")); ok {
		t.Fatal("key still present after AsyncDelete")
	}
}

// TestOffloadAboveThreshold covers S4's second half: a value whose
// effort exceeds Threshold is offloaded, observable as a transient
// pending count of 1 until WaitStep(LazyFree) drains it.
func TestOffloadAboveThreshold(t *testing.T) {
	pool := bio.NewPool()
	defer pool.KillAll()
	p := New(pool)

	table := newTestTable()
	if err := table.Add([]byte("k"), dict.NewAggregate(65)); err != nil {
		t.Fatal(err)
	}

	if !p.AsyncDelete(table, nil, []byte("k")) {
		t.Fatal("AsyncDelete reported key absent")
	}

	deadline := time.After(time.Second)
	for p.PendingCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("PendingCount never became nonzero for an eligible value")
		default:
		}
	}
	if got := p.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}

	pool.WaitStep(bio.LazyFree)
	if got := p.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after WaitStep = %d, want 0", got)
	}
}

// TestSharedValueNeverOffloaded exercises the "refcount == 1" half of
// the decision rule independently of effort size: a value with more
// than one owner must always be destroyed inline, since the lazy-free
// queue would otherwise race the other owner's access.
func TestSharedValueNeverOffloaded(t *testing.T) {
	pool := bio.NewPool()
	defer pool.KillAll()
	p := New(pool)

	table := newTestTable()
	v := dict.NewAggregate(1000)
	v.Retain() // a second owner keeps a reference
	if err := table.Add([]byte("k"), v); err != nil {
		t.Fatal(err)
	}

	if !p.AsyncDelete(table, nil, []byte("k")) {
		t.Fatal("AsyncDelete reported key absent")
	}
	if p.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0 for a shared value", p.PendingCount())
	}
}

// TestAsyncEmptyDB covers the table-pair offload path: the old tables
// are destroyed by the worker, and the caller gets a fresh, empty
// pair back immediately.
func TestAsyncEmptyDB(t *testing.T) {
	pool := bio.NewPool()
	defer pool.KillAll()
	p := New(pool)

	table := newTestTable()
	expires := newTestTable()
	for i := 0; i < 10; i++ {
		k := []byte(fmt.Sprintf("k%d", i))
		if err := table.Add(k, dict.NewInt(int64(i))); err != nil {
			t.Fatal(err)
		}
	}

	newTable, newExpires := p.AsyncEmptyDB(table, expires, dict.BytesKeyType{}, dict.BytesKeyType{})
	if newTable.Len() != 0 || newExpires.Len() != 0 {
		t.Fatal("AsyncEmptyDB did not return fresh empty tables")
	}

	deadline := time.After(time.Second)
	for p.PendingCount() != 0 {
		pool.WaitStep(bio.LazyFree)
		select {
		case <-deadline:
			t.Fatal("old table pair was never destroyed")
		default:
		}
	}
}
