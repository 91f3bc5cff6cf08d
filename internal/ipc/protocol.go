// Package ipc carries owner control commands as newline-delimited JSON over a unix socket.
package ipc

import "slices"

// Command names one owner operation.
type Command string

const (
	CommandStatus Command = "status"
	CommandToggle Command = "toggle"
	CommandStop   Command = "stop"
	CommandCancel Command = "cancel"
	CommandRetry  Command = "retry"
)

var commands = []Command{CommandStatus, CommandToggle, CommandStop, CommandCancel, CommandRetry}

// Valid reports whether the owner understands c.
func (c Command) Valid() bool {
	return slices.Contains(commands, c)
}

type Request struct {
	Command Command `json:"command"`
}

type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Recording bool   `json:"recording"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}
