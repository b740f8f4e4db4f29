//go:build dict_fasthash

package dict

import "github.com/cespare/xxhash/v2"

// FastKeyType trades SipHash's flood resistance for raw throughput by
// hashing with xxhash instead. It is opt-in via the dict_fasthash
// build tag and is meant for admin/scan-heavy paths (cmd/rcored's
// --fast-hash flag) where the caller trusts its own keyspace and does
// not need protection against adversarially chosen keys.
type FastKeyType struct{}

func (FastKeyType) Hash(key []byte) uint64   { return xxhash.Sum64(key) }
func (FastKeyType) Equal(a, b []byte) bool   { return BytesKeyType{}.Equal(a, b) }
func (FastKeyType) DupKey(key []byte) []byte { return BytesKeyType{}.DupKey(key) }
func (FastKeyType) DestroyKey(key []byte)    {}
func (FastKeyType) DestroyValue(v Value)     {}
