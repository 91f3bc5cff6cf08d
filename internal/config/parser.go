package config

import (
	"errors"
	"strings"
)

type fileConfig struct {
	Audio         *fileAudio         `json:"audio"`
	Transcription *fileTranscription `json:"transcription"`
	Override      *fileOverride      `json:"override"`
	Transcript    *fileTranscript    `json:"transcript"`
	Paste         *filePaste         `json:"paste"`
	Indicator     *fileIndicator     `json:"indicator"`
	Log           *fileLog           `json:"log"`
	Debug         *fileDebug         `json:"debug"`

	ClipboardCmd *string `json:"clipboard_cmd"`
	PasteCmd     *string `json:"paste_cmd"`
}

type fileAudio struct {
	Backend  *string `json:"backend"`
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
	File     *string `json:"file"`
	MimeHint *string `json:"mime_hint"`
}

type fileTranscription struct {
	Mode      *string `json:"mode"`
	Endpoint  *string `json:"endpoint"`
	TokenEnv  *string `json:"token_env"`
	Model     *string `json:"model"`
	Language  *string `json:"language"`
	TimeoutMS *int    `json:"timeout_ms"`
	WrapWAV   *bool   `json:"wrap_wav"`
	LocalCmd  *string `json:"local_cmd"`
}

type fileOverride struct {
	StartCmd *string `json:"start_cmd"`
	StopCmd  *string `json:"stop_cmd"`
}

type fileTranscript struct {
	TrailingSpace       *bool `json:"trailing_space"`
	CapitalizeSentences *bool `json:"capitalize_sentences"`
}

type filePaste struct {
	Enable   *bool   `json:"enable"`
	Shortcut *string `json:"shortcut"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type fileLog struct {
	Level      *string `json:"level"`
	MaxSizeMB  *int    `json:"max_size_mb"`
	MaxBackups *int    `json:"max_backups"`
}

type fileDebug struct {
	ArchiveFailed *bool `json:"archive_failed"`
}

// Parse overlays JSONC content onto base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}
	if !strings.HasPrefix(strings.TrimSpace(normalized), "{") {
		return Config{}, nil, errors.New("config must be a JSONC object")
	}

	var payload fileConfig
	if err := decodeStrict(normalized, &payload); err != nil {
		return Config{}, nil, err
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (p fileConfig) applyTo(cfg *Config) error {
	if a := p.Audio; a != nil {
		setTrimmed(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setTrimmed(&cfg.Audio.File, a.File)
		setTrimmed(&cfg.Audio.MimeHint, a.MimeHint)
	}

	if t := p.Transcription; t != nil {
		setTrimmed(&cfg.Transcription.Mode, t.Mode)
		setTrimmed(&cfg.Transcription.Endpoint, t.Endpoint)
		setTrimmed(&cfg.Transcription.TokenEnv, t.TokenEnv)
		setTrimmed(&cfg.Transcription.Model, t.Model)
		setTrimmed(&cfg.Transcription.Language, t.Language)
		if t.TimeoutMS != nil {
			cfg.Transcription.TimeoutMS = *t.TimeoutMS
		}
		if t.WrapWAV != nil {
			cfg.Transcription.WrapWAV = *t.WrapWAV
		}
		if err := setCommand(&cfg.Transcription.LocalCmd, t.LocalCmd, "transcription.local_cmd"); err != nil {
			return err
		}
	}

	if o := p.Override; o != nil {
		if err := setCommand(&cfg.Override.StartCmd, o.StartCmd, "override.start_cmd"); err != nil {
			return err
		}
		if err := setCommand(&cfg.Override.StopCmd, o.StopCmd, "override.stop_cmd"); err != nil {
			return err
		}
	}

	if t := p.Transcript; t != nil {
		setBool(&cfg.Transcript.TrailingSpace, t.TrailingSpace)
		setBool(&cfg.Transcript.CapitalizeSentences, t.CapitalizeSentences)
	}

	if v := p.Paste; v != nil {
		setBool(&cfg.Paste.Enable, v.Enable)
		setTrimmed(&cfg.Paste.Shortcut, v.Shortcut)
	}

	if i := p.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setTrimmed(&cfg.Indicator.Backend, i.Backend)
		setTrimmed(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		if i.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *i.ErrorTimeoutMS
		}
	}

	if l := p.Log; l != nil {
		setTrimmed(&cfg.Log.Level, l.Level)
		if l.MaxSizeMB != nil {
			cfg.Log.MaxSizeMB = *l.MaxSizeMB
		}
		if l.MaxBackups != nil {
			cfg.Log.MaxBackups = *l.MaxBackups
		}
	}

	if d := p.Debug; d != nil {
		setBool(&cfg.Debug.ArchiveFailed, d.ArchiveFailed)
	}

	if err := setCommand(&cfg.Clipboard, p.ClipboardCmd, "clipboard_cmd"); err != nil {
		return err
	}
	return setCommand(&cfg.PasteCmd, p.PasteCmd, "paste_cmd")
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setCommand(dst *CommandConfig, raw *string, key string) error {
	if raw == nil {
		return nil
	}
	cmd, err := parseCommand(key, *raw)
	if err != nil {
		return err
	}
	*dst = cmd
	return nil
}
