//go:build linux

package redirect

import (
	"errors"
	"testing"
)

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	m, err := newMaps(4)
	if err != nil {
		t.Fatal(err)
	}
	defer m.close()

	if err := m.register(2, 7); err != nil {
		t.Fatalf("register: %v", err)
	}

	var enabled uint32
	if err := m.queueEnable.Lookup(uint32(2), &enabled); err != nil {
		t.Fatalf("queue_enable lookup: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("queue_enable[2] = %d, want 1", enabled)
	}

	var fd uint32
	if err := m.queueToSocket.Lookup(uint32(2), &fd); err != nil {
		t.Fatalf("queue_to_socket lookup: %v", err)
	}
	if fd != 7 {
		t.Fatalf("queue_to_socket[2] = %d, want 7", fd)
	}

	if err := m.unregister(2); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if err := m.queueEnable.Lookup(uint32(2), &enabled); err != nil || enabled != 0 {
		t.Fatalf("queue_enable[2] = %d (err %v) after unregister, want 0", enabled, err)
	}
}

func TestUnregisterAbsentQueueFails(t *testing.T) {
	m, err := newMaps(4)
	if err != nil {
		t.Fatal(err)
	}
	defer m.close()

	if err := m.unregister(1); !errors.Is(err, ErrQueueNotRegistered) {
		t.Fatalf("unregister absent queue: got %v, want ErrQueueNotRegistered", err)
	}
}

// TestRegisterBeyondCapacityFails covers spec.md's boundary case: "Register
// a queue id exceeding map capacity fails with MapUpdateFailed." There is no
// separate out-of-range precheck — the underlying map update is left to fail
// on its own and that failure is wrapped as ErrMapUpdateFailed, so the two
// maps' bounds are never a second source of truth alongside maxQueues.
func TestRegisterBeyondCapacityFails(t *testing.T) {
	m, err := newMaps(4)
	if err != nil {
		t.Fatal(err)
	}
	defer m.close()

	if err := m.register(4, 1); !errors.Is(err, ErrMapUpdateFailed) {
		t.Fatalf("register beyond capacity: got %v, want ErrMapUpdateFailed", err)
	}
}
