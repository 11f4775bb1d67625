// Package pipeline implements the processor capability interface
// (component G) and the ordered pipeline that composes processors into a
// packet-processing chain (component H).
package pipeline

import "errors"

// ErrTooManyStages is returned by AddStage once the pipeline already holds
// MaxStages processors. Fatal to pipeline construction per spec §7.
var ErrTooManyStages = errors.New("pipeline: too many stages")
