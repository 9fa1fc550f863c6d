package components

import "github.com/relloyd/openetl/stream"

type PanicHandlerFunc func()

type Action uint32

const (
	Shutdown Action = iota + 1
	Pause
	Resume
)

// ControlAction is used to communicate with components.
type ControlAction struct {
	Action       Action
	ResponseChan chan error // channel to send a response channel on.
}

// Step is the launcher signature shared by every component.
type Step func(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction)
