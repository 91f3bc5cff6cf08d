// Package indicator turns recording edges and transcription outcomes into
// notifications and audio cues.
package indicator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/binding"
	"github.com/rbright/murmur/internal/config"
)

const (
	textRecording    = "Recording…"
	textTranscribing = "Transcribing…"
	textError        = "Speech recognition error"

	dispatchTimeout   = 400 * time.Millisecond
	persistentTimeout = 300000
	defaultErrorMS    = 1200
)

// Level selects icon and color on backends that support them.
type Level int

const (
	LevelInfo Level = iota
	LevelBusy
	LevelError
)

// Notifier is a notification surface that keeps at most one message visible.
type Notifier interface {
	Notify(ctx context.Context, level Level, timeoutMS int, text string) error
	Dismiss(ctx context.Context) error
}

// Indicator reflects runtime state to the user.
type Indicator struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	notifier Notifier
	cue      func(context.Context, cueKind) error

	soundMu sync.Mutex
	sounds  sync.WaitGroup
}

// New builds an Indicator backed by hyprctl or the desktop notification bus.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Indicator {
	var notifier Notifier = hyprNotifier{}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		notifier = &desktopNotifier{appName: cfg.DesktopAppName}
	}
	return newIndicator(cfg, logger, notifier, emitCue)
}

func newIndicator(cfg config.IndicatorConfig, logger *slog.Logger, notifier Notifier, cue func(context.Context, cueKind) error) *Indicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indicator{cfg: cfg, logger: logger, notifier: notifier, cue: cue}
}

// RecordingChanged consumes binding isRecording edges.
func (i *Indicator) RecordingChanged(recording bool) {
	ctx := context.Background()
	if recording {
		i.playCue(cueStart)
		i.show(ctx, LevelInfo, persistentTimeout, textRecording)
		return
	}
	i.playCue(cueStop)
	i.show(ctx, LevelBusy, persistentTimeout, textTranscribing)
}

// Outcome reports a finished cycle.
func (i *Indicator) Outcome(outcome binding.Outcome) {
	ctx := context.Background()
	if outcome.Err == nil {
		i.playCue(cueComplete)
		i.hide(ctx)
		return
	}
	i.ShowError(ctx, errorText(outcome.Err))
}

// Cancelled reports a discarded capture.
func (i *Indicator) Cancelled() {
	i.playCue(cueCancel)
	i.hide(context.Background())
}

// ShowError displays text with the configured error timeout.
func (i *Indicator) ShowError(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		text = textError
	}
	timeout := i.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorMS
	}
	i.show(ctx, LevelError, timeout, text)
}

// Wait blocks until queued cues have finished playing.
func (i *Indicator) Wait() {
	i.sounds.Wait()
}

func errorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "No microphone available"
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access denied"
	case errors.Is(err, binding.ErrEmptyTranscript):
		return "No speech recognized"
	default:
		return textError
	}
}

func (i *Indicator) show(ctx context.Context, level Level, timeoutMS int, text string) {
	if !i.cfg.Enable {
		return
	}
	i.dispatch(ctx, func(ctx context.Context) error {
		return i.notifier.Notify(ctx, level, timeoutMS, text)
	})
}

func (i *Indicator) hide(ctx context.Context) {
	if !i.cfg.Enable {
		return
	}
	i.dispatch(ctx, i.notifier.Dismiss)
}

func (i *Indicator) dispatch(ctx context.Context, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		i.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}

// playCue plays asynchronously; cues never overlap.
func (i *Indicator) playCue(kind cueKind) {
	if !i.cfg.SoundEnable {
		return
	}
	i.sounds.Add(1)
	go func() {
		defer i.sounds.Done()
		i.soundMu.Lock()
		defer i.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := i.cue(ctx, kind); err != nil {
			i.logger.Debug("indicator audio cue failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}
