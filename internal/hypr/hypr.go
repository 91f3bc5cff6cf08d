// Package hypr wraps the hyprctl commands murmur uses for paste dispatch and notifications.
package hypr

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

func run(ctx context.Context, args ...string) error {
	_, err := output(ctx, args...)
	return err
}

// output runs hyprctl and folds its combined output into the error on failure.
func output(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "hyprctl", args...).CombinedOutput()
	if err == nil {
		return out, nil
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		return nil, fmt.Errorf("hyprctl %s: %w (%s)", strings.Join(args, " "), err, msg)
	}
	return nil, fmt.Errorf("hyprctl %s: %w", strings.Join(args, " "), err)
}
