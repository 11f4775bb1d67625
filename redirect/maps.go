//go:build linux

package redirect

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"
)

// maps holds the two eBPF maps the redirect program consults: queue_enable
// (an array, key=queue id, value=0/1) and queue_to_socket (a socket map,
// key=queue id, value=socket fd). Both are sized to the same MaxQueues.
type maps struct {
	maxQueues     uint32
	queueEnable   *ebpf.Map
	queueToSocket *ebpf.Map
}

func newMaps(maxQueues uint32) (*maps, error) {
	queueEnable, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "queue_enable",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: maxQueues,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: queue_enable: %v", ErrMapCreateFailed, err)
	}

	queueToSocket, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "queue_to_socket",
		Type:       ebpf.XSKMap,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: maxQueues,
	})
	if err != nil {
		queueEnable.Close()
		return nil, fmt.Errorf("%w: queue_to_socket: %v", ErrMapCreateFailed, err)
	}

	return &maps{maxQueues: maxQueues, queueEnable: queueEnable, queueToSocket: queueToSocket}, nil
}

func (m *maps) close() error {
	return errors.Join(m.queueEnable.Close(), m.queueToSocket.Close())
}

// register writes socketFD into queue_to_socket[queueID] then 1 into
// queue_enable[queueID]. If the second write fails, the first is rolled
// back so the two maps never disagree about whether a queue is live.
// Idempotent: registering an already-live queue simply overwrites both
// entries.
func (m *maps) register(queueID uint32, socketFD int) error {
	if err := m.queueToSocket.Update(queueID, uint32(socketFD), ebpf.UpdateAny); err != nil {
		return fmt.Errorf("%w: queue_to_socket[%d]: %v", ErrMapUpdateFailed, queueID, err)
	}
	if err := m.queueEnable.Update(queueID, uint32(1), ebpf.UpdateAny); err != nil {
		_ = m.queueToSocket.Delete(queueID)
		return fmt.Errorf("%w: queue_enable[%d]: %v", ErrMapUpdateFailed, queueID, err)
	}
	return nil
}

// unregister clears queue_enable[queueID] to 0 (array entries cannot be
// deleted) and deletes queue_to_socket[queueID]. Unregistering a queue that
// was never registered, or whose queue_enable entry is already 0, is a fatal
// error, per spec.
func (m *maps) unregister(queueID uint32) error {
	var enabled uint32
	if err := m.queueEnable.Lookup(queueID, &enabled); err != nil || enabled == 0 {
		return fmt.Errorf("%w: queue %d", ErrQueueNotRegistered, queueID)
	}
	errEnable := m.queueEnable.Update(queueID, uint32(0), ebpf.UpdateAny)
	errSocket := m.queueToSocket.Delete(queueID)
	return errors.Join(errEnable, errSocket)
}
