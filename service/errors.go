package service

import "errors"

// ErrAlreadyRunning is returned by Start if the service is already started.
var ErrAlreadyRunning = errors.New("service: already running")
