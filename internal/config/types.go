// Package config resolves, parses, validates, and defaults murmur configuration.
package config

import (
	"os"
	"strings"
	"time"
)

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio         AudioConfig
	Transcription TranscriptionConfig
	Override      OverrideConfig
	Transcript    TranscriptConfig
	Paste         PasteConfig
	Clipboard     CommandConfig
	PasteCmd      CommandConfig
	Indicator     IndicatorConfig
	Log           LogConfig
	Debug         DebugConfig
}

// Capture backends.
const (
	BackendPulse     = "pulse"
	BackendMiniaudio = "miniaudio"
	BackendFile      = "file"
)

// Transcription modes.
const (
	ModeRemote  = "remote"
	ModeCommand = "command"
	ModeNone    = "none"
)

// AudioConfig selects the capture backend and input source.
type AudioConfig struct {
	Backend  string
	Input    string
	Fallback string
	// File is the WAV replayed by the file backend.
	File string
	// MimeHint overrides the container tag reported by the device.
	MimeHint string
}

// TranscriptionConfig selects and tunes the transcription strategy.
type TranscriptionConfig struct {
	Mode      string
	Endpoint  string
	TokenEnv  string
	Model     string
	Language  string
	TimeoutMS int
	WrapWAV   bool
	LocalCmd  CommandConfig
}

// Token reads the bearer token from the configured environment variable.
func (c TranscriptionConfig) Token() string {
	name := strings.TrimSpace(c.TokenEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

// Timeout converts TimeoutMS to a duration.
func (c TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// OverrideConfig registers external commands that take over start/stop control.
type OverrideConfig struct {
	StartCmd CommandConfig
	StopCmd  CommandConfig
}

// TranscriptConfig controls transcript normalization.
type TranscriptConfig struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

// PasteConfig controls post-commit paste behavior.
type PasteConfig struct {
	Enable   bool
	Shortcut string
}

// IndicatorConfig controls notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// LogConfig controls the JSONL log sink.
type LogConfig struct {
	Level      string
	MaxSizeMB  int
	MaxBackups int
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	ArchiveFailed bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
