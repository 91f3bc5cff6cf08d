// Package output is the composition buffer: transcripts land on the clipboard and,
// when enabled, are pasted into the focused window.
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
)

const (
	clipboardTimeout = 2 * time.Second
	pasteCmdTimeout  = 2 * time.Second
	hyprPasteTimeout = 1200 * time.Millisecond
)

// ErrEmptyText rejects SetText calls that would clear the clipboard.
var ErrEmptyText = errors.New("composer text is empty")

// Composer writes text into the composition buffer.
type Composer struct {
	clipboard []string
	pasteCmd  []string
	paste     bool
	shortcut  string
	logger    *slog.Logger

	// pasteFn dispatches the compositor shortcut when no paste_cmd is set.
	pasteFn func(ctx context.Context, shortcut string) error
}

// NewComposer builds a Composer from clipboard_cmd, paste_cmd and paste settings.
func NewComposer(cfg config.Config, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Composer{
		clipboard: cfg.Clipboard.Argv,
		pasteCmd:  cfg.PasteCmd.Argv,
		paste:     cfg.Paste.Enable,
		shortcut:  cfg.Paste.Shortcut,
		logger:    logger,
		pasteFn:   defaultPaste,
	}
}

// SetText replaces the clipboard contents with text, then pastes it.
// Only a clipboard failure is returned; paste failures leave the clipboard set.
func (c *Composer) SetText(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runWithStdin(clipboardCtx, c.clipboard, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	if !c.paste {
		return nil
	}
	if err := c.dispatchPaste(ctx); err != nil {
		c.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
	}
	return nil
}

func (c *Composer) dispatchPaste(ctx context.Context) error {
	if len(c.pasteCmd) > 0 {
		pasteCtx, cancel := context.WithTimeout(ctx, pasteCmdTimeout)
		defer cancel()
		return runWithStdin(pasteCtx, c.pasteCmd, "")
	}

	pasteCtx, cancel := context.WithTimeout(ctx, hyprPasteTimeout)
	defer cancel()
	return c.pasteFn(pasteCtx, c.shortcut)
}

// runWithStdin runs argv with input on stdin and folds stderr into the error.
func runWithStdin(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return errors.New("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
