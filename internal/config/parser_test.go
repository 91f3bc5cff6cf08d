package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyReturnsValidatedBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseOverlaysSections(t *testing.T) {
	content := `
{
  "audio": { "backend": "file", "file": "/tmp/take.wav", "mime_hint": "audio/wav" },
  "transcription": {
    "mode": "remote",
    "endpoint": "https://stt.example.com/v1/audio/transcriptions",
    "token_env": "STT_TOKEN",
    "model": "whisper-large-v3",
    "language": "en",
    "timeout_ms": 5000,
    "wrap_wav": false,
  },
  "override": { "start_cmd": "viz --start", "stop_cmd": "viz --stop" },
  "transcript": { "trailing_space": false, "capitalize_sentences": false },
  "paste": { "enable": false },
  "indicator": { "backend": "desktop", "desktop_app_name": "murmur-test", "sound_enable": false },
  "log": { "level": "debug", "max_size_mb": 2, "max_backups": 0 },
  "debug": { "archive_failed": true },
  "clipboard_cmd": "xclip -selection clipboard",
}
`
	cfg, warnings, err := Parse(content, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, BackendFile, cfg.Audio.Backend)
	require.Equal(t, "/tmp/take.wav", cfg.Audio.File)
	require.Equal(t, "audio/wav", cfg.Audio.MimeHint)
	require.Equal(t, "default", cfg.Audio.Input)

	require.Equal(t, "https://stt.example.com/v1/audio/transcriptions", cfg.Transcription.Endpoint)
	require.Equal(t, "STT_TOKEN", cfg.Transcription.TokenEnv)
	require.Equal(t, "whisper-large-v3", cfg.Transcription.Model)
	require.Equal(t, "en", cfg.Transcription.Language)
	require.Equal(t, 5000, cfg.Transcription.TimeoutMS)
	require.False(t, cfg.Transcription.WrapWAV)

	require.Equal(t, []string{"viz", "--start"}, cfg.Override.StartCmd.Argv)
	require.Equal(t, []string{"viz", "--stop"}, cfg.Override.StopCmd.Argv)
	require.False(t, cfg.Transcript.TrailingSpace)
	require.False(t, cfg.Transcript.CapitalizeSentences)
	require.False(t, cfg.Paste.Enable)
	require.Equal(t, "desktop", cfg.Indicator.Backend)
	require.Equal(t, "murmur-test", cfg.Indicator.DesktopAppName)
	require.False(t, cfg.Indicator.SoundEnable)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 2, cfg.Log.MaxSizeMB)
	require.Equal(t, 0, cfg.Log.MaxBackups)
	require.True(t, cfg.Debug.ArchiveFailed)
	require.Equal(t, []string{"xclip", "-selection", "clipboard"}, cfg.Clipboard.Argv)
}

func TestParseCommandMode(t *testing.T) {
	cfg, _, err := Parse(`{"transcription": {"mode": "command", "local_cmd": "whisper-cli -m 'base model.bin' -"}}`, Default())
	require.NoError(t, err)
	require.Equal(t, ModeCommand, cfg.Transcription.Mode)
	require.Equal(t, []string{"whisper-cli", "-m", "base model.bin", "-"}, cfg.Transcription.LocalCmd.Argv)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, _, err := Parse(`{"audio": {"device": "mic"}}`, Default())
	require.ErrorContains(t, err, "unknown field")
}

func TestParseRejectsNonObject(t *testing.T) {
	_, _, err := Parse(`["audio"]`, Default())
	require.ErrorContains(t, err, "JSONC object")
}

func TestParseRejectsBadCommand(t *testing.T) {
	_, _, err := Parse(`{"override": {"start_cmd": "viz \"oops"}}`, Default())
	require.ErrorContains(t, err, "invalid override.start_cmd")
}

func TestParseTypeErrorIncludesLine(t *testing.T) {
	_, _, err := Parse("{\n  \"log\": {\n    \"max_size_mb\": \"big\"\n  }\n}", Default())
	require.ErrorContains(t, err, "line 3")
}
