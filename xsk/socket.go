//go:build linux

package xsk

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Default ring/UMEM sizing, mirroring common AF_XDP deployments.
const (
	DefaultNumFrames          = 4096
	DefaultFrameSize          = 2048
	DefaultRxRingNumDescs     = 2048
	DefaultTxRingNumDescs     = 2048
	DefaultFillRingNumDescs   = 2048
	DefaultCompletionRingSize = 2048
	DefaultBatchSize          = 64
)

// Options controls UMEM sizing and ring depths for a Socket. Zero fields
// are replaced with the defaults above by ValidateAndSetDefaults, except
// RxRingNumDescs and TxRingNumDescs: zero there means "disabled", and at
// least one of the two must be nonzero.
type Options struct {
	// NumFrames is the total number of UMEM frames allocated.
	// UMEM size in bytes is NumFrames * FrameSize.
	NumFrames uint32
	// FrameSize is the size of each UMEM frame in bytes; must be a power
	// of two and at least as large as the largest packet handled.
	FrameSize uint32
	// FillRingNumDescs is the number of entries in the Fill ring.
	FillRingNumDescs uint32
	// CompletionRingNumDescs is the number of entries in the Completion ring.
	CompletionRingNumDescs uint32
	// RxRingNumDescs is the number of entries in the RX ring. Zero disables RX.
	RxRingNumDescs uint32
	// TxRingNumDescs is the number of entries in the TX ring. Zero disables TX.
	TxRingNumDescs uint32
	// BatchSize bounds how many frames TX/completion helpers process per call.
	BatchSize uint32
	// PreferZerocopy requests XDP_ZEROCOPY; on EPROTONOSUPPORT, Open falls
	// back to XDP_COPY automatically.
	PreferZerocopy bool
}

// ValidateAndSetDefaults fills in zero fields with their defaults and
// checks the remaining invariants, in particular that UMEM has room for
// both TX and RX in-flight frames and that at least one of RX/TX is enabled.
func (o *Options) ValidateAndSetDefaults() error {
	if o.NumFrames == 0 {
		o.NumFrames = DefaultNumFrames
	}
	if o.FrameSize == 0 {
		o.FrameSize = DefaultFrameSize
	}
	if o.FillRingNumDescs == 0 {
		o.FillRingNumDescs = DefaultFillRingNumDescs
	}
	if o.CompletionRingNumDescs == 0 {
		o.CompletionRingNumDescs = DefaultCompletionRingSize
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RxRingNumDescs == 0 && o.TxRingNumDescs == 0 {
		return ErrMissingRing
	}
	if o.NumFrames < o.RxRingNumDescs+o.TxRingNumDescs {
		return ErrNumFramesTooSmall
	}
	return nil
}

// Frame is a borrowed UMEM buffer: either a just-received frame (from
// Socket.ReceivePackets's lower-level ReceiveBatch) or a free slot to fill with
// an outgoing packet (from Socket.NextFrame). Buf points directly into
// UMEM; Addr must be handed back to Release or Submit once the caller is
// done with it.
type Frame struct {
	Buf  []byte
	Addr uint64
}

// Socket is a bound AF_XDP socket: one UMEM, up to four rings, and the
// (ifindex, queue) pair it owns exclusively for its lifetime.
//
// Socket is not safe for concurrent use: it is the sole userspace producer
// on Fill/TX and the sole userspace consumer on RX/Completion.
type Socket struct {
	opts       Options
	isZerocopy bool
	ifindex    int
	queueID    uint32

	fd int

	umem []byte
	tx   *descRing
	cq   *addrRing
	rx   *descRing
	fq   *addrRing

	txRegion []byte
	cqRegion []byte
	rxRegion []byte
	fqRegion []byte

	freeFrames []uint64
	freeCount  uint32

	compBuf []uint64
	rxBuf   []xdpDesc
}

// Open creates and initializes an AF_XDP socket bound to (ifindex, queueID).
// Construction order: open socket, allocate+register UMEM, size the UMEM
// rings, size RX/TX, query mmap offsets, map every configured ring, donate
// FillRingNumDescs frames (one full Fill ring) if RX is enabled, bind. The
// remaining NumFrames-FillRingNumDescs frames stay in the local free pool
// and are not placed on Fill. Any failure releases everything created so
// far, in reverse order.
func Open(ifindex int, queueID uint32, opts Options) (*Socket, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: opening AF_XDP socket: %v", ErrSocketCreationFailed, err)
	}
	if fd <= 0 {
		// Close uses fd == 0 as its "already closed" sentinel; a socket fd
		// of 0 (or a negative value with a nil err, which should not
		// happen but costs nothing to guard) would break that invariant.
		return nil, fmt.Errorf("%w: socket syscall returned fd %d", ErrInvalidFileDescriptor, fd)
	}

	s := &Socket{opts: opts, ifindex: ifindex, queueID: queueID, fd: fd}
	if err := s.setup(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Socket) setup() error {
	o := &s.opts

	umemLen := uintptr(o.NumFrames) * uintptr(o.FrameSize)
	umem, err := mmapUmem(umemLen)
	if err != nil {
		return fmt.Errorf("%w: mmap UMEM: %v", ErrSyscallFailed, err)
	}
	s.umem = umem

	reg := xdpUmemReg{
		Addr:      uint64(uintptr(unsafe.Pointer(&umem[0]))),
		Len:       uint64(len(umem)),
		ChunkSize: o.FrameSize,
	}
	if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_REG,
		unsafe.Pointer(&reg), unsafe.Sizeof(reg)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_REG: %v", ErrSyscallFailed, err)
	}

	fillSize := o.FillRingNumDescs
	if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_FILL_RING,
		unsafe.Pointer(&fillSize), unsafe.Sizeof(fillSize)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_FILL_RING: %v", ErrSyscallFailed, err)
	}
	compSize := o.CompletionRingNumDescs
	if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_UMEM_COMPLETION_RING,
		unsafe.Pointer(&compSize), unsafe.Sizeof(compSize)); err != nil {
		return fmt.Errorf("%w: XDP_UMEM_COMPLETION_RING: %v", ErrSyscallFailed, err)
	}

	if o.TxRingNumDescs > 0 {
		txSize := o.TxRingNumDescs
		if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_TX_RING,
			unsafe.Pointer(&txSize), unsafe.Sizeof(txSize)); err != nil {
			return fmt.Errorf("%w: XDP_TX_RING: %v", ErrSyscallFailed, err)
		}
	}
	if o.RxRingNumDescs > 0 {
		rxSize := o.RxRingNumDescs
		if err := setsockopt(s.fd, unix.SOL_XDP, unix.XDP_RX_RING,
			unsafe.Pointer(&rxSize), unsafe.Sizeof(rxSize)); err != nil {
			return fmt.Errorf("%w: XDP_RX_RING: %v", ErrSyscallFailed, err)
		}
	}

	var offs xdpMmapOffsets
	if err := getsockopt(s.fd, unix.SOL_XDP, unix.XDP_MMAP_OFFSETS,
		unsafe.Pointer(&offs), unsafe.Sizeof(offs)); err != nil {
		return fmt.Errorf("%w: XDP_MMAP_OFFSETS: %v", ErrSyscallFailed, err)
	}

	if o.TxRingNumDescs > 0 {
		txLen := uintptr(offs.Tx.Desc) + uintptr(o.TxRingNumDescs)*unsafe.Sizeof(xdpDesc{})
		txRegion, err := mmapRegion(s.fd, txLen, unix.XDP_PGOFF_TX_RING)
		if err != nil {
			return fmt.Errorf("%w: mmap TX ring: %v", ErrSyscallFailed, err)
		}
		s.txRegion = txRegion
		s.tx, err = makeDescRing(s.txRegion, offs.Tx, o.TxRingNumDescs, true)
		if err != nil {
			return err
		}
	}

	cqLen := uintptr(offs.Cr.Desc) + uintptr(o.CompletionRingNumDescs)*unsafe.Sizeof(uint64(0))
	cqRegion, err := mmapRegion(s.fd, cqLen, unix.XDP_UMEM_PGOFF_COMPLETION_RING)
	if err != nil {
		return fmt.Errorf("%w: mmap completion ring: %v", ErrSyscallFailed, err)
	}
	s.cqRegion = cqRegion
	s.cq, err = makeAddrRing(cqRegion, offs.Cr, o.CompletionRingNumDescs)
	if err != nil {
		return err
	}

	if o.RxRingNumDescs > 0 {
		rxLen := uintptr(offs.Rx.Desc) + uintptr(o.RxRingNumDescs)*unsafe.Sizeof(xdpDesc{})
		rxRegion, err := mmapRegion(s.fd, rxLen, unix.XDP_PGOFF_RX_RING)
		if err != nil {
			return fmt.Errorf("%w: mmap RX ring: %v", ErrSyscallFailed, err)
		}
		s.rxRegion = rxRegion
		s.rx, err = makeDescRing(rxRegion, offs.Rx, o.RxRingNumDescs, false)
		if err != nil {
			return err
		}
	}

	fqLen := uintptr(offs.Fr.Desc) + uintptr(o.FillRingNumDescs)*unsafe.Sizeof(uint64(0))
	fqRegion, err := mmapRegion(s.fd, fqLen, unix.XDP_UMEM_PGOFF_FILL_RING)
	if err != nil {
		return fmt.Errorf("%w: mmap fill ring: %v", ErrSyscallFailed, err)
	}
	s.fqRegion = fqRegion
	s.fq, err = makeAddrRing(fqRegion, offs.Fr, o.FillRingNumDescs)
	if err != nil {
		return err
	}

	// Local free-frame pool backing NextFrame/Submit; independent of how
	// many frames are currently donated on Fill.
	s.freeFrames = make([]uint64, o.NumFrames)
	for i := uint32(0); i < o.NumFrames; i++ {
		s.freeFrames[i] = uint64(i) * uint64(o.FrameSize)
	}
	s.freeCount = o.NumFrames
	s.compBuf = make([]uint64, o.BatchSize)
	s.rxBuf = make([]xdpDesc, o.BatchSize)

	if o.RxRingNumDescs > 0 {
		// Pre-populate Fill with FillRingNumDescs frames so the kernel has
		// somewhere to land the first wave of packets.
		n := o.FillRingNumDescs
		addrs := make([]uint64, n)
		for i := uint32(0); i < n; i++ {
			s.freeCount--
			addrs[i] = s.freeFrames[s.freeCount]
		}
		s.fq.submit(addrs)
	}

	sa := &sockaddrXDP{
		Family:  unix.AF_XDP,
		Ifindex: uint32(s.ifindex),
		QueueID: s.queueID,
	}
	s.isZerocopy = o.PreferZerocopy
	if s.isZerocopy {
		sa.Flags = unix.XDP_ZEROCOPY | unix.XDP_USE_NEED_WAKEUP
	} else {
		sa.Flags = unix.XDP_COPY | unix.XDP_USE_NEED_WAKEUP
	}

	err = rawBind(s.fd, sa)
	if err != nil && s.isZerocopy {
		if errno, ok := err.(unix.Errno); ok && errno == unix.EPROTONOSUPPORT {
			sa.Flags = unix.XDP_COPY | unix.XDP_USE_NEED_WAKEUP
			s.isZerocopy = false
			err = rawBind(s.fd, sa)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: bind: %v", ErrSyscallFailed, err)
	}

	return nil
}

// FD returns the socket's file descriptor, for registering it in the
// redirect program's queue_to_socket map.
func (s *Socket) FD() int { return s.fd }

// IsZerocopy reports whether the socket ended up bound in zero-copy mode.
// May be false even if Options.PreferZerocopy was true, if the queue fell
// back to copy mode.
func (s *Socket) IsZerocopy() bool { return s.isZerocopy }

// Ifindex and QueueID identify the (interface, queue) pair this socket owns.
func (s *Socket) Ifindex() int    { return s.ifindex }
func (s *Socket) QueueID() uint32 { return s.queueID }

// Close releases the socket fd, every mapped ring region and UMEM, in
// reverse order of acquisition.
func (s *Socket) Close() error {
	var errs []error
	for _, r := range []*[]byte{&s.fqRegion, &s.rxRegion, &s.cqRegion, &s.txRegion, &s.umem} {
		if *r != nil {
			if err := unix.Munmap(*r); err != nil {
				errs = append(errs, err)
			}
			*r = nil
		}
	}
	if s.fd != 0 {
		if err := unix.Close(s.fd); err != nil {
			errs = append(errs, fmt.Errorf("closing fd: %w", err))
		}
		s.fd = 0
	}
	return errors.Join(errs...)
}

// Wait blocks until the socket becomes readable or timeoutMS elapses.
// EINTR is retried transparently; any other poll error is returned as-is.
func (s *Socket) Wait(timeoutMS int) error {
	for {
		_, err := unix.Poll([]unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}, timeoutMS)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Fill submits up to n frame addresses to the Fill ring. Returns the
// number accepted, which is bounded by free space on the ring.
func (s *Socket) Fill(addrs []uint64, n uint32) uint32 {
	if uint32(len(addrs)) < n {
		n = uint32(len(addrs))
	}
	return s.fq.submit(addrs[:n])
}

// Complete drains up to n addresses from the Completion ring into out.
// Returns the number drained, which is zero (never blocking) if the ring
// is empty.
func (s *Socket) Complete(out []uint64, n uint32) uint32 {
	if uint32(len(out)) < n {
		n = uint32(len(out))
	}
	return s.cq.drain(out, n)
}

// Rx drains up to n descriptors from the RX ring into out. Returns the
// number drained.
func (s *Socket) Rx(out []xdpDescPublic, n uint32) uint32 {
	if uint32(len(out)) < n {
		n = uint32(len(out))
	}
	if n > uint32(len(s.rxBuf)) {
		n = uint32(len(s.rxBuf))
	}
	got := s.rx.drain(s.rxBuf[:n])
	for i := uint32(0); i < got; i++ {
		out[i] = xdpDescPublic{Addr: s.rxBuf[i].Addr, Len: s.rxBuf[i].Len, Options: s.rxBuf[i].Opts}
	}
	return got
}

// xdpDescPublic is the exported mirror of the 16-byte wire descriptor,
// handed to callers of Rx/Tx so the internal kernel-layout type stays
// unexported.
type xdpDescPublic struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

// Tx submits up to n descriptors to the TX ring. Returns the number
// submitted, which is bounded by free space on the ring (this call does
// not spin or block; callers wanting best-effort delivery should retry
// after reclaiming completions).
func (s *Socket) Tx(descs []xdpDescPublic, n uint32) uint32 {
	if s.tx == nil {
		return 0
	}
	if uint32(len(descs)) < n {
		n = uint32(len(descs))
	}
	idx, ok := s.tx.reserve(n)
	if !ok {
		return 0
	}
	for i := uint32(0); i < n; i++ {
		s.tx.set(idx, i, descs[i].Addr, descs[i].Len)
	}
	s.tx.publish()
	return n
}

// Kick performs a non-blocking send to nudge the kernel into dequeuing
// pending TX (and, in copy mode, Fill) entries.
func (s *Socket) Kick() error {
	if err := wakeupTxQueue(s.fd); err != nil {
		return fmt.Errorf("%w: %v", ErrKickFailed, err)
	}
	return nil
}

// NextFrame returns a writable UMEM buffer and its address from the local
// free pool, reclaiming completions first if the pool is exhausted. A
// zero-value Frame means no frame is available right now.
func (s *Socket) NextFrame() Frame {
	if s.freeCount == 0 {
		s.PollCompletions(uint32(len(s.compBuf)))
		if s.freeCount == 0 {
			return Frame{}
		}
	}
	s.freeCount--
	addr := s.freeFrames[s.freeCount]
	start := int(addr)
	end := start + int(s.opts.FrameSize)
	return Frame{Buf: s.umem[start:end], Addr: addr}
}

// Submit reserves one TX descriptor for (addr, length), spinning to
// reclaim completions and kick the kernel while the ring is full.
func (s *Socket) Submit(addr uint64, length uint32) error {
	for {
		if idx, ok := s.tx.reserve(1); ok {
			s.tx.set(idx, 0, addr, length)
			return nil
		}
		if s.PollCompletions(s.opts.BatchSize) == 0 {
			if err := s.Kick(); err != nil {
				return err
			}
		}
	}
}

// FlushTx publishes every descriptor written since the last FlushTx and
// kicks the kernel.
func (s *Socket) FlushTx() error {
	s.tx.publish()
	return s.Kick()
}

// PollCompletions reclaims up to maxFrames completed TX frames into the
// local free pool. Returns the number reclaimed.
func (s *Socket) PollCompletions(maxFrames uint32) uint32 {
	if maxFrames == 0 {
		return 0
	}
	if maxFrames > uint32(len(s.compBuf)) {
		maxFrames = uint32(len(s.compBuf))
	}
	n := s.cq.drain(s.compBuf, maxFrames)
	for i := uint32(0); i < n; i++ {
		s.freeFrames[s.freeCount] = s.compBuf[i]
		s.freeCount++
	}
	return n
}

// FreeFrames reports how many frames are currently available from NextFrame
// without reclaiming completions first.
func (s *Socket) FreeFrames() uint32 { return s.freeCount }

// TxFree reports how many TX descriptors can currently be reserved without
// reclaiming completions first.
func (s *Socket) TxFree() uint32 {
	if s.tx == nil {
		return 0
	}
	free := s.tx.cachedCons - s.tx.cachedProd
	return free
}

// Release returns a received frame's address to the Fill ring for reuse.
func (s *Socket) Release(frame Frame) {
	s.fq.submit([]uint64{frame.Addr})
}

// ReceiveBatch drains up to len(buf) received frames from RX into buf,
// returning the filled prefix. Frames reference UMEM directly and must be
// returned via Release/ReleaseBatch once consumed.
func (s *Socket) ReceiveBatch(buf []Frame) []Frame {
	n := s.rx.drain(s.rxBuf[:min(uint32(len(buf)), uint32(len(s.rxBuf)))])
	for i := uint32(0); i < n; i++ {
		d := s.rxBuf[i]
		start, end := int(d.Addr), int(d.Addr)+int(d.Len)
		buf[i] = Frame{Buf: s.umem[start:end], Addr: d.Addr}
	}
	return buf[:n]
}

// ReleaseBatch returns every frame in frames to the Fill ring.
func (s *Socket) ReleaseBatch(frames []Frame) {
	addrs := make([]uint64, len(frames))
	for i, f := range frames {
		addrs[i] = f.Addr
	}
	s.fq.submit(addrs)
}

// SendPackets copies each slice in pkts into a fresh UMEM frame, submits
// them to TX in order and wakes the kernel. Returns the number actually
// queued, which may be less than len(pkts) if UMEM or TX ring space runs
// out; the caller may retry the remainder after a PollCompletions.
func (s *Socket) SendPackets(pkts [][]byte) (queued int, err error) {
	lens := make([]xdpDescPublic, 0, len(pkts))
	for _, p := range pkts {
		f := s.NextFrame()
		if len(f.Buf) == 0 {
			break
		}
		n := copy(f.Buf, p)
		lens = append(lens, xdpDescPublic{Addr: f.Addr, Len: uint32(n)})
	}
	if len(lens) == 0 {
		return 0, nil
	}
	n := s.Tx(lens, uint32(len(lens)))
	if err := wakeupTxQueue(s.fd); err != nil {
		if errno, ok := err.(unix.Errno); !ok || (errno != unix.EAGAIN && errno != unix.EWOULDBLOCK) {
			return int(n), fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
	}
	return int(n), nil
}

// ReceivePackets drains up to len(buffers) frames from RX, copying each
// into the corresponding caller buffer and shrinking it to the frame's
// actual length, then returns every drained frame to Fill. Returns the
// number of frames copied. If any buffer is shorter than the frame it would
// receive, fails with ErrBufferTooSmall and copies nothing; the drained
// frames are still returned to Fill and their contents are discarded.
func (s *Socket) ReceivePackets(buffers [][]byte) (int, error) {
	frames := s.ReceiveBatch(make([]Frame, len(buffers)))
	for i, f := range frames {
		if len(buffers[i]) < len(f.Buf) {
			// Still own these frames; return them before failing.
			s.ReleaseBatch(frames)
			return 0, ErrBufferTooSmall
		}
	}
	for i, f := range frames {
		n := copy(buffers[i], f.Buf)
		buffers[i] = buffers[i][:n]
	}
	s.ReleaseBatch(frames)
	return len(frames), nil
}

