//go:build linux && amd64

package trampoline

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// stackSize mirrors the common Linux default RLIMIT_STACK (8 MiB).
const stackSize = 8 << 20

// jumpToEntry is implemented in trampoline_linux_amd64.s: it sets SP to
// sp and jumps to entry. By the System V AMD64 ABI, SP must point at
// argc and be 16-byte aligned at process entry.
func jumpToEntry(sp, entry uintptr)

// buildStack allocates a fresh anonymous stack and lays out argc,
// argv, an empty envp and an empty auxiliary vector the way the kernel
// does for a freshly exec'd process, returning the initial SP.
func buildStack(argv []string) (uintptr, error) {
	mem, err := unix.Mmap(-1, 0, stackSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_STACK)
	if err != nil {
		return 0, fmt.Errorf("mmap stack: %w", err)
	}
	base := uintptr(unsafe.Pointer(&mem[0]))
	top := base + stackSize

	cursor := top
	strAddrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		cursor -= uintptr(len(s) + 1)
		dst := unsafe.Slice((*byte)(unsafe.Pointer(cursor)), len(s)+1)
		copy(dst, s)
		dst[len(s)] = 0
		strAddrs[i] = cursor
	}
	cursor &^= 0xf

	// argc, argv[0..n-1], NULL, envp-NULL, auxv AT_NULL (2 words).
	nwords := len(argv) + 5
	cursor -= uintptr(nwords) * 8
	cursor &^= 0xf

	words := unsafe.Slice((*uintptr)(unsafe.Pointer(cursor)), nwords)
	words[0] = uintptr(len(argv))
	for i, a := range strAddrs {
		words[1+i] = a
	}
	words[1+len(argv)] = 0 // argv terminator
	words[2+len(argv)] = 0 // envp: empty, terminator only
	words[3+len(argv)] = 0 // auxv AT_NULL.a_type
	words[4+len(argv)] = 0 // auxv AT_NULL.a_val

	return cursor, nil
}
