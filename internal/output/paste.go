package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/hypr"
)

const (
	focusAttempts = 5
	focusDelay    = 10 * time.Millisecond
)

// defaultPaste sends shortcut to the focused Hyprland window.
func defaultPaste(ctx context.Context, shortcut string) error {
	address, err := focusedAddress(ctx, focusAttempts, focusDelay)
	if err != nil {
		return err
	}
	payload, err := shortcutPayload(shortcut, address)
	if err != nil {
		return err
	}
	return hypr.SendShortcut(ctx, payload)
}

// shortcutPayload pins the shortcut to one window so focus changes mid-dispatch
// cannot redirect it.
func shortcutPayload(shortcut, address string) (string, error) {
	shortcut = strings.TrimSpace(shortcut)
	address = strings.TrimSpace(address)
	switch {
	case shortcut == "":
		return "", errors.New("paste shortcut cannot be empty")
	case address == "":
		return "", errors.New("focused window address is required")
	}
	return fmt.Sprintf("%s,address:%s", shortcut, address), nil
}

// focusedAddress polls the compositor until a focused window reports an address.
func focusedAddress(ctx context.Context, attempts int, delay time.Duration) (string, error) {
	attempts = max(attempts, 1)

	var lastErr error
	for attempt := 1; ; attempt++ {
		window, err := hypr.QueryActiveWindow(ctx)
		if err == nil {
			return window.Address, nil
		}
		lastErr = err
		if attempt >= attempts {
			return "", fmt.Errorf("resolve focused window: %w", lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
