//go:build wasip1

package guest

import (
	"fmt"
	"sync"
	"unsafe"
)

// MaxTotalAllocations bounds the memory the channel ABI may hold in the
// guest's linear memory at once.
const MaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

// memoryManager pins every buffer handed to the host. Keeping the slice
// reference stops the Go GC from moving or collecting it until the host
// calls deallocate.
var memoryManager = struct {
	sync.Mutex
	ptrs           map[uint32][]byte
	totalAllocated int
}{
	ptrs: make(map[uint32][]byte),
}

// allocate reserves pinned guest memory for the host to write into.
//
//go:wasmexport allocate
func allocate(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	memoryManager.Lock()
	defer memoryManager.Unlock()

	if memoryManager.totalAllocated+int(size) > MaxTotalAllocations {
		panic(fmt.Sprintf("guest: allocation limit exceeded (requested %d, held %d)", size, memoryManager.totalAllocated))
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	memoryManager.ptrs[ptr] = buf
	memoryManager.totalAllocated += int(size)
	return ptr
}

// deallocate unpins a buffer, letting the GC reclaim it. Untracked pointers
// are ignored so double frees stay harmless.
//
//go:wasmexport deallocate
func deallocate(ptr uint32, size uint32) {
	memoryManager.Lock()
	defer memoryManager.Unlock()

	buf, ok := memoryManager.ptrs[ptr]
	if !ok {
		return
	}
	delete(memoryManager.ptrs, ptr)
	memoryManager.totalAllocated -= len(buf)
	if memoryManager.totalAllocated < 0 {
		memoryManager.totalAllocated = 0
	}
}

// pinnedBytes reports the total bytes currently pinned for the host.
func pinnedBytes() int {
	memoryManager.Lock()
	defer memoryManager.Unlock()
	return memoryManager.totalAllocated
}

// pinBytes copies data into pinned memory and returns the packed ptr/len
// the host ABI expects.
func pinBytes(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}
	size := uint32(len(data))
	ptr := allocate(size)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size)
	copy(dst, data)
	return packPtrLen(ptr, size)
}

// readMemory copies length bytes out of linear memory at ptr.
func readMemory(ptr, length uint32) []byte {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
	data := make([]byte, length)
	copy(data, src)
	return data
}

func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
