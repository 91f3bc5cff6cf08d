package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ControlFunc is an externally supplied start or stop action that takes over the
// capture resource for a whole cycle.
type ControlFunc func(context.Context) error

// CommandControl builds a ControlFunc that runs argv and waits for it to exit.
// A nil func is returned for empty argv so callers can register it unconditionally.
func CommandControl(argv []string) ControlFunc {
	if len(argv) == 0 {
		return nil
	}
	argv = append([]string(nil), argv...)
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
			}
			return fmt.Errorf("run %s: %w", argv[0], err)
		}
		return nil
	}
}
