//go:build linux

package xsk

import "errors"

// Error kinds surfaced by the socket runtime, per the failure taxonomy of
// the AF_XDP socket construction and I/O paths. None of these are retried
// internally; callers decide how to react.
var (
	ErrSocketCreationFailed  = errors.New("xsk: socket creation failed")
	ErrSyscallFailed         = errors.New("xsk: syscall failed")
	ErrMissingRing           = errors.New("xsk: at least one of RX or TX ring must be configured")
	ErrInvalidFileDescriptor = errors.New("xsk: invalid file descriptor")
	ErrSendFailed            = errors.New("xsk: send failed")
	ErrKickFailed            = errors.New("xsk: kick failed")
	ErrBufferTooSmall        = errors.New("xsk: caller buffer too small for frame")
	ErrNumFramesTooSmall     = errors.New("xsk: NumFrames must cover TxSize + RxSize")
	ErrRegionEmpty           = errors.New("xsk: mapped ring region is empty")
)
