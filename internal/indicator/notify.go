package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rbright/murmur/internal/hypr"
)

var hyprColors = map[Level]string{
	LevelInfo:  "rgb(89b4fa)",
	LevelBusy:  "rgb(cba6f7)",
	LevelError: "rgb(f38ba8)",
}

var hyprIcons = map[Level]int{
	LevelInfo:  1,
	LevelBusy:  1,
	LevelError: 3,
}

type hyprNotifier struct{}

func (hyprNotifier) Notify(ctx context.Context, level Level, timeoutMS int, text string) error {
	return hypr.Notify(ctx, hyprIcons[level], timeoutMS, hyprColors[level], text)
}

func (hyprNotifier) Dismiss(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
)

// desktopNotifier talks to the freedesktop notification service through busctl,
// replacing its previous notification in place.
type desktopNotifier struct {
	appName string

	mu sync.Mutex
	id uint32
}

func (d *desktopNotifier) Notify(ctx context.Context, _ Level, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.id
	d.mu.Unlock()

	out, err := busctl(ctx, "Notify", "susssasa{sv}i",
		d.appName, strconv.FormatUint(uint64(replaceID), 10), "", text, "",
		"0", "0",
		strconv.Itoa(timeoutMS),
	)
	if err != nil {
		return err
	}

	// busctl prints the reply as "u <id>".
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "u" {
		return fmt.Errorf("desktop notify: unexpected reply %q", out)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fmt.Errorf("desktop notify: parse id %q: %w", fields[1], err)
	}

	d.mu.Lock()
	d.id = uint32(id)
	d.mu.Unlock()
	return nil
}

func (d *desktopNotifier) Dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.id
	d.id = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	_, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

func busctl(ctx context.Context, method string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyDest, notifyPath, notifyIface, method}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", fmt.Errorf("busctl %s: %w", method, err)
		}
		return "", fmt.Errorf("busctl %s: %w (%s)", method, err, trimmed)
	}
	return trimmed, nil
}
