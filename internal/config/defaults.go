package config

// Default returns the configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Backend:  BackendPulse,
			Input:    "default",
			Fallback: "default",
		},
		Transcription: TranscriptionConfig{
			Mode:      ModeRemote,
			Endpoint:  "http://127.0.0.1:8080/v1/audio/transcriptions",
			TokenEnv:  "MURMUR_API_TOKEN",
			TimeoutMS: 30000,
			WrapWAV:   true,
		},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Paste:     PasteConfig{Enable: true, Shortcut: "CTRL,V"},
		Clipboard: mustCommand("clipboard_cmd", clipboard),
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "murmur-indicator",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
