package sysvipc

import "unsafe"

// unsafePointer turns a shmat(2)-returned address back into a pointer.
// Isolated here so the one genuinely unsafe cast in this package (attached
// shared memory has no Go-typed origin) is easy to find.
func unsafePointer(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr) //nolint:govet // address comes from shmat(2), not a Go allocation
}
