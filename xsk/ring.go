//go:build linux

package xsk

import (
	"unsafe"

	"sync/atomic"
)

// descRing is the userspace side of the RX or TX ring: a power-of-two
// circular buffer of 16-byte descriptors mapped from the kernel. The
// producer publishes entries then advances its index with release
// ordering; the consumer snapshots the peer's index with acquire ordering
// before reading entries. Exactly one side is owned by userspace per ring:
// userspace produces on TX and consumes on RX.
type descRing struct {
	cachedProd uint32
	cachedCons uint32
	mask       uint32
	size       uint32
	prod       *uint32
	cons       *uint32
	descs      []xdpDesc
}

// addrRing is the userspace side of the Fill or Completion ring: a
// power-of-two circular buffer of raw UMEM addresses. Userspace produces
// on Fill and consumes on Completion.
type addrRing struct {
	cachedProd uint32
	cachedCons uint32
	mask       uint32
	size       uint32
	prod       *uint32
	cons       *uint32
	addrs      []uint64
}

func makeDescRing(region []byte, off xdpRingOffset, size uint32, cachedConsStartsFull bool) (*descRing, error) {
	if len(region) == 0 {
		return nil, ErrRegionEmpty
	}
	base := unsafe.Pointer(&region[0])

	cachedCons := uint32(0)
	if cachedConsStartsFull {
		// TX: userspace owns the full ring up front, nothing is in flight yet.
		cachedCons = size
	}

	return &descRing{
		mask:       size - 1,
		size:       size,
		prod:       (*uint32)(unsafe.Add(base, off.Producer)),
		cons:       (*uint32)(unsafe.Add(base, off.Consumer)),
		descs:      unsafe.Slice((*xdpDesc)(unsafe.Add(base, off.Desc)), size),
		cachedProd: 0,
		cachedCons: cachedCons,
	}, nil
}

func makeAddrRing(region []byte, off xdpRingOffset, size uint32) (*addrRing, error) {
	if len(region) == 0 {
		return nil, ErrRegionEmpty
	}
	base := unsafe.Pointer(&region[0])

	return &addrRing{
		mask:  size - 1,
		size:  size,
		prod:  (*uint32)(unsafe.Add(base, off.Producer)),
		cons:  (*uint32)(unsafe.Add(base, off.Consumer)),
		addrs: unsafe.Slice((*uint64)(unsafe.Add(base, off.Desc)), size),
	}, nil
}

// available returns the number of descriptors readable by the consumer
// side, refreshing the cached producer index from the kernel (acquire) only
// when the cached count is smaller than want.
func (r *descRing) available(want uint32) uint32 {
	if n := r.cachedProd - r.cachedCons; n >= want {
		return n
	}
	r.cachedProd = atomic.LoadUint32(r.prod)
	return r.cachedProd - r.cachedCons
}

// drain copies up to len(out) readable descriptors into out, advancing the
// consumer index with release ordering. Returns the number copied.
func (r *descRing) drain(out []xdpDesc) uint32 {
	n := r.available(uint32(len(out)))
	if n > uint32(len(out)) {
		n = uint32(len(out))
	}
	for i := uint32(0); i < n; i++ {
		out[i] = r.descs[r.cachedCons&r.mask]
		r.cachedCons++
	}
	if n > 0 {
		atomic.StoreUint32(r.cons, r.cachedCons)
	}
	return n
}

// reserve reserves n free producer-side slots, refreshing the cached
// consumer index from the kernel if the cached free count is insufficient.
// Returns the base index to write at and whether the reservation succeeded.
func (r *descRing) reserve(n uint32) (idx uint32, ok bool) {
	free := r.cachedCons - r.cachedProd
	if free < n {
		r.cachedCons = atomic.LoadUint32(r.cons) + r.size
		if r.cachedCons-r.cachedProd < n {
			return 0, false
		}
	}
	idx = r.cachedProd
	r.cachedProd += n
	return idx, true
}

// set writes descriptor i (relative to a base returned by reserve) in place.
func (r *descRing) set(base, i uint32, addr uint64, length uint32) {
	d := &r.descs[(base+i)&r.mask]
	d.Addr, d.Len, d.Opts = addr, length, 0
}

// publish advances the producer index with release ordering, making every
// descriptor written since the last publish visible to the kernel.
func (r *descRing) publish() { atomic.StoreUint32(r.prod, r.cachedProd) }

// available returns the number of addresses readable by the consumer side,
// capped at max, refreshing the cached producer index from the kernel
// (acquire) only when the cached count is smaller than max.
func (r *addrRing) available(max uint32) uint32 {
	n := r.cachedProd - r.cachedCons
	if n < max {
		r.cachedProd = atomic.LoadUint32(r.prod)
		n = r.cachedProd - r.cachedCons
	}
	if n > max {
		n = max
	}
	return n
}

// drain copies up to max readable addresses into out (len(out) >= max),
// advancing the consumer index with release ordering.
func (r *addrRing) drain(out []uint64, max uint32) uint32 {
	n := r.available(max)
	for i := uint32(0); i < n; i++ {
		out[i] = r.addrs[r.cachedCons&r.mask]
		r.cachedCons++
	}
	if n > 0 {
		atomic.StoreUint32(r.cons, r.cachedCons)
	}
	return n
}

// submit publishes up to len(addrs) addresses to the ring, bounded by free
// space, advancing the producer index with release ordering. Returns the
// number accepted.
func (r *addrRing) submit(addrs []uint64) uint32 {
	prod := atomic.LoadUint32(r.prod)
	cons := atomic.LoadUint32(r.cons)
	free := r.size - (prod - cons)

	n := uint32(len(addrs))
	if n > free {
		n = free
	}
	for i := uint32(0); i < n; i++ {
		r.addrs[(prod+i)&r.mask] = addrs[i]
	}
	if n > 0 {
		atomic.StoreUint32(r.prod, prod+n)
	}
	return n
}
