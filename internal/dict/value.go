package dict

import "sync/atomic"

// Value is the tagged-union value a Table entry carries: an owned
// opaque byte value, a signed or unsigned 64-bit integer, or a double.
// Implementations model the "manual reference counting → shared
// ownership type" design note: a Value shared across multiple keys
// (for example an interned small integer) reports IsUnique() == false
// and is therefore never eligible for lazy-free offload.
type Value interface {
	// RefCount returns the current number of owners of this value.
	RefCount() int32
	// IsUnique reports whether this entry is the value's only owner.
	IsUnique() bool
}

// Sizer is implemented by aggregate values (lists, sets, hashes,
// sorted sets) so the lazy-free policy can cheaply estimate the cost
// of destroying them without walking the whole structure itself.
type Sizer interface {
	// Len returns the number of contained elements.
	Len() int
}

// refcounted is embedded by the concrete Value implementations below
// to provide the shared-ownership bookkeeping described on Value. A freshly constructed value starts at refcount 1.
type refcounted struct {
	refs atomic.Int32
}

func (r *refcounted) init() {
	r.refs.Store(1)
}

func (r *refcounted) RefCount() int32 { return r.refs.Load() }
func (r *refcounted) IsUnique() bool  { return r.refs.Load() == 1 }

// Retain increments the reference count, e.g. when the value is
// shared into a second key (interning).
func (r *refcounted) Retain() { r.refs.Add(1) }

// Release decrements the reference count and returns the value
// remaining after the decrement.
func (r *refcounted) Release() int32 { return r.refs.Add(-1) }

// Bytes is an owned opaque byte-string value.
type Bytes struct {
	refcounted
	Data []byte
}

// NewBytes wraps b in a unique-owner Value.
func NewBytes(b []byte) *Bytes {
	v := &Bytes{Data: b}
	v.init()
	return v
}

// Int is a signed 64-bit integer value.
type Int struct {
	refcounted
	N int64
}

// NewInt wraps n in a unique-owner Value.
func NewInt(n int64) *Int {
	v := &Int{N: n}
	v.init()
	return v
}

// Uint is an unsigned 64-bit integer value.
type Uint struct {
	refcounted
	N uint64
}

// NewUint wraps n in a unique-owner Value.
func NewUint(n uint64) *Uint {
	v := &Uint{N: n}
	v.init()
	return v
}

// Float is a double-precision value.
type Float struct {
	refcounted
	F float64
}

// NewFloat wraps f in a unique-owner Value.
func NewFloat(f float64) *Float {
	v := &Float{F: f}
	v.init()
	return v
}

// Aggregate is a stand-in for the list/set/hash/sorted-set encodings
// the original implementation estimates lazy-free effort from by
// element count. Real aggregate types in a full implementation would
// each define their own Len(); this one is shared by tests and by
// simple callers that only care about the element count.
type Aggregate struct {
	refcounted
	elements int
}

// NewAggregate returns a unique-owner Value whose effort estimate is n.
func NewAggregate(n int) *Aggregate {
	v := &Aggregate{elements: n}
	v.init()
	return v
}

// Len implements Sizer.
func (a *Aggregate) Len() int { return a.elements }
