//go:build linux

package xsk

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func rawBind(fd int, sa *sockaddrXDP) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND,
		uintptr(fd), uintptr(unsafe.Pointer(sa)), unsafe.Sizeof(*sa))
	if errno != 0 {
		return errno
	}
	return nil
}

func setsockopt(fd, level, name int, val unsafe.Pointer, vallen uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(name), uintptr(val), vallen, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockopt(fd, level, name int, val unsafe.Pointer, vallen uintptr) error {
	l := uint32(vallen)
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(name),
		uintptr(val), uintptr(unsafe.Pointer(&l)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// mmapRegion maps a ring region (RX/TX/Fill/Completion) from the AF_XDP
// socket file descriptor at the given kernel page offset.
func mmapRegion(fd int, length uintptr, offset uintptr) ([]byte, error) {
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP,
		0, length, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE, uintptr(fd), offset)
	if errno != 0 {
		return nil, errno
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)), nil
}

// mmapUmem maps an anonymous, page-backed, pre-populated region for UMEM.
// The region is exclusively owned by the socket that registers it and is
// never demand-paged.
func mmapUmem(length uintptr) ([]byte, error) {
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP,
		0, length, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE,
		^uintptr(0), 0)
	if errno != 0 {
		return nil, errno
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)), nil
}

// zeroBuf is passed to the wake-up sendto() call. AF_XDP treats a
// zero-length sendto on the socket as a pure doorbell: the kernel drains
// pending TX (and, in copy mode, Fill) entries without any payload ever
// being read. Passing an explicit nil slice (rather than an undefined
// pointer with length zero) keeps the call well-defined regardless of how
// strictly a given kernel inspects iov_base when iov_len is zero.
var zeroBuf []byte

// wakeupTxQueue nudges the kernel to drain the TX (and, implicitly, Fill)
// rings. EAGAIN/EBUSY indicate the kernel is still busy draining from a
// previous kick and are not errors.
func wakeupTxQueue(fd int) error {
	err := unix.Sendto(fd, zeroBuf, unix.MSG_DONTWAIT, nil)
	if err == unix.EAGAIN || err == unix.EBUSY {
		return nil
	}
	return err
}
