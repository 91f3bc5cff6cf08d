// Package cli parses murmur's command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandToggle  Command = "toggle"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandRetry   Command = "retry"
	CommandStatus  Command = "status"
	CommandServe   Command = "serve"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commands is ordered as printed in the help text.
var commands = []struct {
	name    Command
	summary string
}{
	{CommandToggle, "Start recording, or stop and transcribe when already recording"},
	{CommandStop, "Stop the active recording and transcribe it"},
	{CommandCancel, "Discard the active recording"},
	{CommandRetry, "Transcribe the last captured audio again"},
	{CommandStatus, "Print the owner state"},
	{CommandServe, "Run a long-lived owner until interrupted"},
	{CommandDevices, "List capture devices for the configured backend"},
	{CommandDoctor, "Check configuration and environment"},
	{CommandVersion, "Print version information"},
	{CommandHelp, "Show this help"},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

func known(cmd Command) bool {
	for _, c := range commands {
		if c.name == cmd {
			return true
		}
	}
	return false
}

// Parse accepts flags before a single trailing command.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.Command, parsed.ShowHelp = CommandHelp, true
		case "--version":
			parsed.Command, parsed.ShowHelp = CommandVersion, false
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}
			cmd := Command(arg)
			if !known(cmd) {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			parsed.Command, parsed.ShowHelp = cmd, cmd == CommandHelp
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] <command>\n\nCommands:\n", binaryName)
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", c.name, c.summary)
	}
	b.WriteString(`
Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/murmur/config.jsonc)
  -h, --help      Show help
  --version       Show version
`)
	return b.String()
}
