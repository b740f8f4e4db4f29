//go:build dict_fasthash

package dict

// SelectKeyType returns FastKeyType when fast is requested, since
// this binary was built with the dict_fasthash tag (§4.2.8).
func SelectKeyType(fast bool) Type {
	if fast {
		return FastKeyType{}
	}
	return BytesKeyType{}
}
