// Package fsm defines capture session states and the pure transition table between them.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const (
	EventStart    Event = "start"
	EventDelegate Event = "delegate"
	EventGranted  Event = "granted"
	EventStop     Event = "stop"
	EventFinished Event = "finished"
	EventCancel   Event = "cancel"
	EventAbort    Event = "abort"
	EventFail     Event = "fail"
	EventReset    Event = "reset"
)

// Terminal reports whether a cycle has ended and needs a reset before the next start.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Active reports whether a device or override currently owns the capture resource.
func (s State) Active() bool {
	return s == StateAcquiring || s == StateRecording || s == StateFinalizing
}

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateAcquiring, nil
		case EventDelegate:
			return StateRecording, nil
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAcquiring:
		switch event {
		case EventGranted:
			return StateRecording, nil
		case EventCancel:
			return StateIdle, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateFinalizing, nil
		case EventAbort:
			return StateIdle, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventFinished:
			return StateCompleted, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted, StateFailed:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
