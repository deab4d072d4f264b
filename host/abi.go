package host

// PackPtrLen packs a guest memory pointer and length into a single uint64:
// pointer in the high 32 bits, length in the low 32. Both sides of the ABI
// must agree on this layout.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen is the inverse of PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
