package dict

import "unsafe"

// tableIdentity returns a stable integer identity for a bucketTable,
// used only by fingerprint: the original hashes the dictht.table
// pointer itself, so a Go port needs an equivalent pointer-derived
// value rather than anything that could be equal across two distinct,
// live tables.
func tableIdentity(t *bucketTable) uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}
