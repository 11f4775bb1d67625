//go:build linux

package redirect

import "errors"

// Error kinds surfaced by the redirect program's control plane, per the
// failure taxonomy of construction, attach/detach and register/unregister.
var (
	ErrQueueNotRegistered = errors.New("redirect: unregister of an absent queue")
	ErrMapCreateFailed    = errors.New("redirect: map create failed")
	ErrMapUpdateFailed    = errors.New("redirect: map update failed")
	ErrBpfLoadFailed      = errors.New("redirect: program load failed")
	ErrAttachFailed       = errors.New("redirect: attach failed")
	ErrDetachFailed       = errors.New("redirect: detach failed")
	ErrNetlinkError       = errors.New("redirect: netlink route request failed")
	ErrProgramClosed      = errors.New("redirect: program already closed")
)
