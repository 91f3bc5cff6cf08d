// Package doctor runs readiness diagnostics for config, tools, capture, and transcription.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/version"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

func (r Report) String() string {
	lines := make([]string, 0, len(r.Checks))
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", status, check.Name, check.Message))
	}
	return strings.Join(lines, "\n")
}

// Run executes every check that applies to the loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{configCheck(loaded)}

	usesHypr := (cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0) ||
		(cfg.Indicator.Enable && strings.EqualFold(cfg.Indicator.Backend, "hypr"))
	if usesHypr {
		checks = append(checks,
			checkEnv("XDG_SESSION_TYPE", func(v string) bool {
				return strings.EqualFold(strings.TrimSpace(v), "wayland")
			}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"),
			checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"),
			checkBinary("hyprctl", "paste and notifications use hyprctl"),
		)
	}
	if cfg.Indicator.Enable && strings.EqualFold(cfg.Indicator.Backend, "desktop") {
		checks = append(checks, checkBinary("busctl", "desktop notifications use busctl"))
	}

	checks = append(checks, checkCommand(cfg.Clipboard.Argv, "clipboard_cmd"))
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.PasteCmd.Argv, "paste_cmd"))
	}
	if len(cfg.Override.StartCmd.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Override.StartCmd.Argv, "override.start_cmd"))
		if len(cfg.Override.StopCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Override.StopCmd.Argv, "override.stop_cmd"))
		}
	}

	checks = append(checks, checkCapture(ctx, cfg.Audio), checkTranscription(ctx, cfg.Transcription))
	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message += fmt.Sprintf(" with %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	if predicate(os.Getenv(name)) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	check := checkBinary(argv[0], name+" command is available")
	check.Name = name
	return check
}

func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkCapture resolves the configured input without opening a stream.
func checkCapture(ctx context.Context, cfg config.AudioConfig) Check {
	const name = "audio"
	switch strings.ToLower(cfg.Backend) {
	case config.BackendFile:
		info, err := os.Stat(cfg.File)
		if err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("replaying %q (%d bytes)", cfg.File, info.Size())}
	case config.BackendMiniaudio:
		devices, err := audio.ListMiniaudioDevices(ctx)
		if err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		if len(devices) == 0 {
			return Check{Name: name, Pass: false, Message: "miniaudio found no capture devices"}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("miniaudio sees %d capture device(s)", len(devices))}
	default:
		selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		message := fmt.Sprintf("selected %q", selection.Device.ID)
		if selection.Warning != "" {
			message += " (" + selection.Warning + ")"
		}
		return Check{Name: name, Pass: true, Message: message}
	}
}

func checkTranscription(ctx context.Context, cfg config.TranscriptionConfig) Check {
	const name = "transcription"
	switch strings.ToLower(cfg.Mode) {
	case config.ModeNone:
		return Check{Name: name, Pass: true, Message: "disabled (mode=none)"}
	case config.ModeCommand:
		return checkCommand(cfg.LocalCmd.Argv, "transcription.local_cmd")
	}

	check := probeEndpoint(ctx, cfg.Endpoint, cfg.Token())
	if cfg.TokenEnv != "" && cfg.Token() == "" {
		check.Message += fmt.Sprintf("; %s unset, sending no token", cfg.TokenEnv)
	}
	return check
}

// probeEndpoint only proves the server answers; upload endpoints commonly reject
// GET with 4xx, so only transport errors and 5xx fail.
func probeEndpoint(ctx context.Context, endpoint, token string) Check {
	const name = "transcription"
	req := resty.New().
		SetTimeout(probeTimeout).
		SetHeader("User-Agent", version.UserAgent()).
		R().
		SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	if resp.StatusCode() >= 500 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode(), endpoint)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode(), endpoint)}
}
