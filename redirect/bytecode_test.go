//go:build linux

package redirect

import (
	"testing"

	"github.com/cilium/ebpf/asm"
)

func TestBuildRedirectProgramTerminatesEveryPath(t *testing.T) {
	insns := buildRedirectProgram(3, 4)
	if len(insns) == 0 {
		t.Fatal("buildRedirectProgram returned no instructions")
	}

	returns := 0
	for _, ins := range insns {
		if ins.OpCode == asm.Return().OpCode {
			returns++
		}
	}
	// abort, pass and the redirect success path each end in a Return.
	if returns != 3 {
		t.Fatalf("expected 3 Return instructions, got %d", returns)
	}
}

func TestBuildRedirectProgramHasAbortAndPassTargets(t *testing.T) {
	insns := buildRedirectProgram(1, 2)

	var sawAbort, sawPass bool
	for _, ins := range insns {
		switch ins.Symbol() {
		case "abort":
			sawAbort = true
		case "pass":
			sawPass = true
		}
	}
	if !sawAbort {
		t.Error("no instruction labeled \"abort\"")
	}
	if !sawPass {
		t.Error("no instruction labeled \"pass\"")
	}
}

func TestBuildRedirectProgramUsesGivenMapFDs(t *testing.T) {
	insns := buildRedirectProgram(42, 99)

	var sawQueueEnable, sawQueueToSocket bool
	for _, ins := range insns {
		switch ins.Constant {
		case 42:
			sawQueueEnable = true
		case 99:
			sawQueueToSocket = true
		}
	}
	if !sawQueueEnable {
		t.Error("queue_enable map FD 42 not embedded in any LoadMapPtr instruction")
	}
	if !sawQueueToSocket {
		t.Error("queue_to_socket map FD 99 not embedded in any LoadMapPtr instruction")
	}
}
