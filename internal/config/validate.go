package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch strings.ToLower(cfg.Audio.Backend) {
	case BackendPulse, BackendMiniaudio:
	case BackendFile:
		if strings.TrimSpace(cfg.Audio.File) == "" {
			return nil, fmt.Errorf("audio.file must be set when audio.backend=file")
		}
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, miniaudio, file")
	}

	transcriptionWarnings, err := validateTranscription(cfg.Transcription)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, transcriptionWarnings...)

	if len(cfg.Override.StopCmd.Argv) > 0 && len(cfg.Override.StartCmd.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "override.stop_cmd is ignored unless override.start_cmd is set"})
	}

	backend := strings.ToLower(cfg.Indicator.Backend)
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if cfg.Paste.Enable && cfg.PasteCmd.Raw != "" && len(cfg.PasteCmd.Argv) == 0 {
		return nil, fmt.Errorf("paste_cmd is configured but empty")
	}
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0 && strings.TrimSpace(cfg.Paste.Shortcut) == "" {
		return nil, fmt.Errorf("paste.shortcut must not be empty when paste.enable=true and paste_cmd is unset")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("log.max_size_mb must be > 0")
	}
	if cfg.Log.MaxBackups < 0 {
		return nil, fmt.Errorf("log.max_backups must be >= 0")
	}

	return warnings, nil
}

func validateTranscription(t TranscriptionConfig) ([]Warning, error) {
	if t.TimeoutMS < 0 {
		return nil, fmt.Errorf("transcription.timeout_ms must be >= 0")
	}

	switch strings.ToLower(t.Mode) {
	case ModeNone:
		return nil, nil
	case ModeCommand:
		if len(t.LocalCmd.Argv) == 0 {
			return nil, fmt.Errorf("transcription.local_cmd must be set when transcription.mode=command")
		}
		return nil, nil
	case ModeRemote:
	default:
		return nil, fmt.Errorf("transcription.mode must be one of: remote, command, none")
	}

	endpoint, err := url.Parse(t.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("transcription.endpoint must be an absolute http(s) URL")
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("transcription.endpoint must use http or https")
	}

	var warnings []Warning
	if endpoint.Scheme == "http" && !isLoopbackHost(endpoint.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("transcription.endpoint %q sends audio unencrypted", t.Endpoint)})
	}
	return warnings, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
