//go:build !dict_fasthash

package dict

// SelectKeyType returns the key type to use for the primary keyspace.
// fast is honored only in a binary built with the dict_fasthash tag;
// without it, SipHash-1-3 is the only hasher available and fast is
// ignored without any error or warning.
func SelectKeyType(fast bool) Type { return BytesKeyType{} }
