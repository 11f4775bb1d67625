//go:build linux

package redirect

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/vishvananda/netlink"
)

// AttachFlags selects the XDP attachment mode and replace policy, mirroring
// the kernel's IFLA_XDP_FLAGS bits carried in the netlink SETLINK attribute.
type AttachFlags uint32

const (
	// UpdateIfNoExist fails Attach rather than replacing an existing
	// program already on the interface. Forwarded to the kernel as
	// XDP_FLAGS_UPDATE_IF_NOEXIST unless Replace is also set.
	UpdateIfNoExist AttachFlags = 1 << iota
	// SkbMode requests generic XDP: always available, highest overhead.
	SkbMode
	// DrvMode requests native/driver-mode XDP.
	DrvMode
	// HwMode requests NIC offload.
	HwMode
	// Replace permits replacing an existing program on the interface;
	// suppresses UpdateIfNoExist even if both bits are set.
	Replace
)

// DefaultAttachFlags is the policy spec.md names as the default: native
// mode, failing rather than silently replacing another program.
const DefaultAttachFlags = DrvMode | UpdateIfNoExist

// Kernel XDP_FLAGS_* bit values (linux/if_link.h), carried in the
// IFLA_XDP_FLAGS netlink attribute.
const (
	xdpFlagUpdateIfNoExist uint32 = 1 << 0
	xdpFlagSkbMode         uint32 = 1 << 1
	xdpFlagDrvMode         uint32 = 1 << 2
	xdpFlagHwMode          uint32 = 1 << 3
)

func toXDPFlags(f AttachFlags) uint32 {
	var out uint32
	if f&UpdateIfNoExist != 0 && f&Replace == 0 {
		out |= xdpFlagUpdateIfNoExist
	}
	if f&SkbMode != 0 {
		out |= xdpFlagSkbMode
	}
	if f&DrvMode != 0 {
		out |= xdpFlagDrvMode
	}
	if f&HwMode != 0 {
		out |= xdpFlagHwMode
	}
	return out
}

// Program is the in-kernel redirect filter plus its two control maps,
// attachable to any number of interfaces. One Program is normally shared
// across every socket a service manages, per spec.md §4.F/§4.I.
type Program struct {
	mu       sync.Mutex
	prog     *ebpf.Program
	maps     *maps
	attached map[int]uint32 // ifindex -> XDP_FLAGS used to attach, this Program only
	closed   bool
}

// New creates the two control maps sized to maxQueues, synthesizes the
// redirect program and loads it into the kernel with a GPL license (required
// for the map-lookup and redirect helpers used). On any failure the maps
// already created are released.
func New(maxQueues uint32) (*Program, error) {
	m, err := newMaps(maxQueues)
	if err != nil {
		return nil, err
	}

	spec := &ebpf.ProgramSpec{
		Name:         "xsk_redirect",
		Type:         ebpf.XDP,
		License:      "GPL",
		Instructions: buildRedirectProgram(m.queueEnable.FD(), m.queueToSocket.FD()),
	}
	prog, err := ebpf.NewProgram(spec)
	if err != nil {
		_ = m.close()
		return nil, fmt.Errorf("%w: %v", ErrBpfLoadFailed, err)
	}

	return &Program{
		prog:     prog,
		maps:     m,
		attached: make(map[int]uint32),
	}, nil
}

// Attach installs the program on ifindex's XDP hook via a netlink route
// RTM_SETLINK message carrying a nested IFLA_XDP attribute with the
// program's file handle and flags, per spec.md §6's kernel attach protocol.
// Idempotent per (ifindex, Program): attaching an interface this Program
// already holds is a no-op regardless of flags.
//
// When flags carries UpdateIfNoExist (and not Replace), the kernel itself
// rejects the request with EBUSY if ifindex already owns an XDP program —
// including one owned by a different Program or process — and that errno
// surfaces here as ErrAttachFailed.
func (p *Program) Attach(ifindex int, flags AttachFlags) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrProgramClosed
	}
	if _, ok := p.attached[ifindex]; ok {
		return nil
	}

	l, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return fmt.Errorf("%w: resolving ifindex %d: %v", ErrNetlinkError, ifindex, err)
	}

	nlFlags := toXDPFlags(flags)
	if err := netlink.LinkSetXdpFdWithFlags(l, p.prog.FD(), int(nlFlags)); err != nil {
		return fmt.Errorf("%w: ifindex %d: %v", ErrAttachFailed, ifindex, err)
	}
	p.attached[ifindex] = nlFlags
	return nil
}

// Detach removes the program from ifindex's XDP hook by resending the same
// netlink SETLINK message with the program handle set to the sentinel −1,
// per spec.md §6. Tolerant of a missing attachment: detaching an interface
// this Program never attached is a no-op.
func (p *Program) Detach(ifindex int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detachLocked(ifindex)
}

func (p *Program) detachLocked(ifindex int) error {
	flags, ok := p.attached[ifindex]
	if !ok {
		return nil
	}
	delete(p.attached, ifindex)

	l, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return fmt.Errorf("%w: resolving ifindex %d: %v", ErrNetlinkError, ifindex, err)
	}
	if err := netlink.LinkSetXdpFdWithFlags(l, -1, int(flags)); err != nil {
		return fmt.Errorf("%w: ifindex %d: %v", ErrDetachFailed, ifindex, err)
	}
	return nil
}

// Register enables queueID and points it at socketFD.
func (p *Program) Register(queueID uint32, socketFD int) error {
	return p.maps.register(queueID, socketFD)
}

// Unregister disables queueID. Unregistering an absent queue is a fatal
// error (ErrQueueNotRegistered).
func (p *Program) Unregister(queueID uint32) error {
	return p.maps.unregister(queueID)
}

// FD exposes the loaded program's file descriptor.
func (p *Program) FD() int { return p.prog.FD() }

// Attached reports whether ifindex is currently attached under this
// Program.
func (p *Program) Attached(ifindex int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.attached[ifindex]
	return ok
}

// Close detaches from every interface still attached, then releases the
// program and its maps. Detach failures while closing are logged by the
// caller via the joined error, not retried.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for ifindex := range p.attached {
		if err := p.detachLocked(ifindex); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.prog.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.maps.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
