// Package service implements the packet-processing service (component I):
// binds a set of (interface, queue) pairs to a shared redirect program,
// spawns one worker per socket, and owns the poll/process/transmit/refill
// loop each worker runs.
package service

import (
	"github.com/kbypass/xdpflow/redirect"
	"github.com/kbypass/xdpflow/xsk"
)

// Default scheduling parameters, mirroring the teacher's DefaultBatchSize
// for socket I/O and a conservative poll wait.
const (
	DefaultBatchSize    = xsk.DefaultBatchSize
	DefaultPollTimeoutMS = 100
)

// InterfaceQueues names one interface and the RX/TX queues the service
// should bind on it. Grounded on the teacher's cmd/route/cmd/bench YAML
// Config structs (yaml tags, flat string/int fields).
type InterfaceQueues struct {
	Name   string   `yaml:"name"`
	Queues []uint32 `yaml:"queues"`
}

// Config holds the service's construction-time policy, per spec.md §4.I.
type Config struct {
	Interfaces     []InterfaceQueues `yaml:"interfaces"`
	SocketOptions  xsk.Options       `yaml:"socket-options"`
	XDPFlags       redirect.AttachFlags `yaml:"-"`
	BatchSize      uint32            `yaml:"batch-size"`
	CollectStats   bool              `yaml:"collect-stats"`
	PollTimeoutMS  int               `yaml:"poll-timeout-ms"`
}

// ValidateAndSetDefaults fills in zero fields with their defaults, matching
// the teacher's SocketConfig.ValidateAndSetDefaults idiom.
func (c *Config) ValidateAndSetDefaults() error {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PollTimeoutMS == 0 {
		c.PollTimeoutMS = DefaultPollTimeoutMS
	}
	if c.XDPFlags == 0 {
		c.XDPFlags = redirect.DefaultAttachFlags
	}
	if err := c.SocketOptions.ValidateAndSetDefaults(); err != nil {
		return err
	}
	return nil
}

// totalQueues sums the queue count across every interface, used to size
// the shared redirect program's maps.
func (c *Config) totalQueues() uint32 {
	var n uint32
	for _, iq := range c.Interfaces {
		n += uint32(len(iq.Queues))
	}
	return n
}
