package pipeline

import "errors"

var ErrInvalidState = errors.New("invalid capture state")

type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
