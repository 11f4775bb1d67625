//go:build linux

package xsk

import "testing"

func TestOptionsValidateAndSetDefaultsFillsZeroFields(t *testing.T) {
	o := Options{RxRingNumDescs: 256, TxRingNumDescs: 256}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults: %v", err)
	}
	if o.NumFrames != DefaultNumFrames {
		t.Errorf("NumFrames = %d, want default %d", o.NumFrames, DefaultNumFrames)
	}
	if o.FrameSize != DefaultFrameSize {
		t.Errorf("FrameSize = %d, want default %d", o.FrameSize, DefaultFrameSize)
	}
	if o.FillRingNumDescs != DefaultFillRingNumDescs {
		t.Errorf("FillRingNumDescs = %d, want default %d", o.FillRingNumDescs, DefaultFillRingNumDescs)
	}
	if o.CompletionRingNumDescs != DefaultCompletionRingSize {
		t.Errorf("CompletionRingNumDescs = %d, want default %d", o.CompletionRingNumDescs, DefaultCompletionRingSize)
	}
	if o.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want default %d", o.BatchSize, DefaultBatchSize)
	}
}

func TestOptionsValidateAndSetDefaultsRejectsNoRings(t *testing.T) {
	o := Options{}
	if err := o.ValidateAndSetDefaults(); err != ErrMissingRing {
		t.Fatalf("ValidateAndSetDefaults with no rings: got %v, want ErrMissingRing", err)
	}
}

func TestOptionsValidateAndSetDefaultsRejectsUndersizedUmem(t *testing.T) {
	o := Options{NumFrames: 100, RxRingNumDescs: 64, TxRingNumDescs: 64}
	if err := o.ValidateAndSetDefaults(); err != ErrNumFramesTooSmall {
		t.Fatalf("ValidateAndSetDefaults with NumFrames < Rx+Tx: got %v, want ErrNumFramesTooSmall", err)
	}
}

func TestOptionsValidateAndSetDefaultsAcceptsRxOnly(t *testing.T) {
	o := Options{RxRingNumDescs: 512}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults RX-only: %v", err)
	}
	if o.TxRingNumDescs != 0 {
		t.Errorf("TxRingNumDescs = %d, want 0 (disabled)", o.TxRingNumDescs)
	}
}
