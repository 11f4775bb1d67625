package service

import (
	"testing"

	"github.com/kbypass/xdpflow/xsk"
)

func TestConfigValidateAndSetDefaults(t *testing.T) {
	cfg := Config{
		Interfaces: []InterfaceQueues{
			{Name: "lo", Queues: []uint32{0}},
			{Name: "eth0", Queues: []uint32{0, 1}},
		},
		SocketOptions: xsk.Options{RxRingNumDescs: xsk.DefaultRxRingNumDescs},
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Fatalf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.PollTimeoutMS != DefaultPollTimeoutMS {
		t.Fatalf("PollTimeoutMS = %d, want %d", cfg.PollTimeoutMS, DefaultPollTimeoutMS)
	}
	if cfg.XDPFlags == 0 {
		t.Fatalf("XDPFlags left unset")
	}
	// SocketOptions.ValidateAndSetDefaults runs underneath; with RX/TX
	// both zero it surfaces ErrMissingRing from the xsk package (see
	// TestConfigValidateAndSetDefaultsPropagatesSocketOptionsError).
}

func TestConfigTotalQueues(t *testing.T) {
	cfg := Config{
		Interfaces: []InterfaceQueues{
			{Name: "a", Queues: []uint32{0, 1, 2}},
			{Name: "b", Queues: []uint32{0}},
		},
	}
	if got, want := cfg.totalQueues(), uint32(4); got != want {
		t.Fatalf("totalQueues = %d, want %d", got, want)
	}
}

func TestConfigValidateAndSetDefaultsPropagatesSocketOptionsError(t *testing.T) {
	cfg := Config{}
	// No RX/TX rings requested anywhere: the underlying xsk.Options
	// default-fill still leaves both at zero only if both are explicitly
	// zero, which is the zero-value Config here, so this should surface
	// xsk's ErrMissingRing.
	if err := cfg.ValidateAndSetDefaults(); err == nil {
		t.Fatalf("expected an error from SocketOptions.ValidateAndSetDefaults")
	}
}
