//go:build linux

package xsk

// Kernel uAPI structs mirrored from linux/if_xdp.h. Field layout must match
// the kernel's exactly; these are written into and read out of the socket
// via setsockopt/getsockopt and shared mmap regions, never via Go's own
// struct semantics.

// sockaddrXDP is `struct sockaddr_xdp`.
// https://elixir.bootlin.com/linux/v5.15.77/source/include/uapi/linux/if_xdp.h#L32
type sockaddrXDP struct {
	Family       uint16
	Flags        uint16
	Ifindex      uint32
	QueueID      uint32
	SharedUmemFD uint32
}

// xdpRingOffset is `struct xdp_ring_offset`.
// https://elixir.bootlin.com/linux/v5.15.77/source/include/uapi/linux/if_xdp.h#L43
type xdpRingOffset struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// xdpMmapOffsets is `struct xdp_mmap_offsets`.
// https://elixir.bootlin.com/linux/v5.15.77/source/include/uapi/linux/if_xdp.h#L50
type xdpMmapOffsets struct {
	Rx xdpRingOffset
	Tx xdpRingOffset
	Fr xdpRingOffset
	Cr xdpRingOffset
}

// xdpUmemReg is `struct xdp_umem_reg`.
// https://elixir.bootlin.com/linux/v5.15.77/source/include/uapi/linux/if_xdp.h#L67
type xdpUmemReg struct {
	Addr      uint64
	Len       uint64
	ChunkSize uint32
	Headroom  uint32
}

// xdpDesc is `struct xdp_desc`: the 16-byte wire descriptor shared between
// kernel and userspace on the RX and TX rings.
// https://elixir.bootlin.com/linux/v5.15.77/source/include/uapi/linux/if_xdp.h#L103
type xdpDesc struct {
	Addr uint64
	Len  uint32
	Opts uint32
}
