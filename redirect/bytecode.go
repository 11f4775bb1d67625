//go:build linux

package redirect

import "github.com/cilium/ebpf/asm"

// XDP return codes, from linux/bpf.h's enum xdp_action. Not exported: the
// only observer of these values is the kernel verifier and, at runtime, the
// networking stack.
const (
	xdpAborted = 0
	xdpPass    = 2
)

// rxQueueIndexOffset is offsetof(struct xdp_md, rx_queue_index): data,
// data_end, data_meta and ingress_ifindex each occupy one u32 ahead of it.
const rxQueueIndexOffset = 16

// buildRedirectProgram synthesizes the redirect filter's instructions
// directly with the asm package, avoiding a dependency on a C toolchain or
// bpf2go-generated object file (see design notes on in-kernel bytecode).
// Observable behavior: for the packet's rx_queue_index, look up
// queue_enable; abort if the queue has no entry, pass to the host stack if
// the entry is zero, otherwise redirect through queue_to_socket. This is
// the two-map generalization of the canonical single-map "xsk redirect"
// program.
func buildRedirectProgram(queueEnableFD, queueToSocketFD int) asm.Instructions {
	return asm.Instructions{
		// Save ctx and the queue index in callee-saved registers; R0-R5
		// don't survive the helper calls below.
		asm.Mov.Reg(asm.R6, asm.R1),
		asm.LoadMem(asm.R7, asm.R6, rxQueueIndexOffset, asm.Word),
		asm.StoreMem(asm.RFP, -4, asm.R7, asm.Word),

		// r0 = bpf_map_lookup_elem(&queue_enable, &rx_queue_index)
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.LoadMapPtr(asm.R1, queueEnableFD),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "abort"),

		// r1 = *r0 (queue_enable[q]); pass if the queue is present but
		// quiescent, fall through to redirect otherwise.
		asm.LoadMem(asm.R1, asm.R0, 0, asm.Word),
		asm.JEq.Imm(asm.R1, 0, "pass"),

		// return bpf_redirect_map(&queue_to_socket, rx_queue_index, 0)
		asm.LoadMapPtr(asm.R1, queueToSocketFD),
		asm.Mov.Reg(asm.R2, asm.R7),
		asm.Mov.Imm(asm.R3, 0),
		asm.FnRedirectMap.Call(),
		asm.Return(),

		asm.Mov.Imm(asm.R0, xdpAborted).Sym("abort"),
		asm.Return(),

		asm.Mov.Imm(asm.R0, xdpPass).Sym("pass"),
		asm.Return(),
	}
}
