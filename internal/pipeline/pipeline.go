// Package pipeline assembles the capture provider, transcription strategy, session,
// and runtime binding described by a loaded config.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/binding"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/output"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/transcribe"
	"github.com/rbright/murmur/internal/transcript"
)

// Assembly is one wired runtime. Archiver is nil unless debug.archive_failed is set.
type Assembly struct {
	Provider audio.Provider
	Strategy transcribe.Strategy
	Session  *session.Session
	Runtime  *binding.Runtime
	Composer *output.Composer
	Archiver *Archiver
}

// Build wires every component from cfg. The composer is the runtime's text sink.
func Build(cfg config.Config, logger *slog.Logger) (*Assembly, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	provider, err := NewProvider(cfg.Audio, logger)
	if err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(cfg.Transcription)
	if err != nil {
		return nil, err
	}

	sess := session.New(logger, provider, session.Options{MimeHint: cfg.Audio.MimeHint})
	if start := session.CommandControl(cfg.Override.StartCmd.Argv); start != nil {
		sess.SetStartOverride(start)
		sess.SetStopOverride(session.CommandControl(cfg.Override.StopCmd.Argv))
	}

	composer := output.NewComposer(cfg, logger)
	runtime := binding.New(logger, sess, strategy, composer, binding.Options{
		Normalize: transcript.Normalizer(transcript.Options{
			TrailingSpace:       cfg.Transcript.TrailingSpace,
			CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
		}),
	})

	assembly := &Assembly{
		Provider: provider,
		Strategy: strategy,
		Session:  sess,
		Runtime:  runtime,
		Composer: composer,
	}
	if cfg.Debug.ArchiveFailed {
		archiver, err := NewArchiver(logger)
		if err != nil {
			return nil, err
		}
		assembly.Archiver = archiver
	}
	return assembly, nil
}

// NewProvider selects the capture backend.
func NewProvider(cfg config.AudioConfig, logger *slog.Logger) (audio.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendPulse, "":
		return audio.PulseProvider{Input: cfg.Input, Fallback: cfg.Fallback, Logger: logger}, nil
	case config.BackendMiniaudio:
		return audio.MiniaudioProvider{Input: cfg.Input, Logger: logger}, nil
	case config.BackendFile:
		return audio.FileProvider{Path: cfg.File, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", cfg.Backend)
	}
}

// NewStrategy selects the transcription strategy. Mode none returns a nil strategy,
// which leaves transcription to whoever consumes the blob.
func NewStrategy(cfg config.TranscriptionConfig) (transcribe.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case config.ModeRemote:
		return transcribe.NewRemote(transcribe.RemoteConfig{
			Endpoint: cfg.Endpoint,
			Token:    cfg.Token(),
			Model:    cfg.Model,
			Language: cfg.Language,
			Timeout:  cfg.Timeout(),
			WrapWAV:  cfg.WrapWAV,
		}), nil
	case config.ModeCommand:
		if len(cfg.LocalCmd.Argv) == 0 {
			return nil, fmt.Errorf("transcription.local_cmd is empty")
		}
		return transcribe.Command{Argv: cfg.LocalCmd.Argv}, nil
	case config.ModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported transcription mode %q", cfg.Mode)
	}
}
