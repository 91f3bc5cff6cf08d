package hypr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const defaultNotifyColor = "rgb(89b4fa)"

// ActiveWindow identifies the paste target.
type ActiveWindow struct {
	Address      string `json:"address"`
	Class        string `json:"class"`
	InitialClass string `json:"initialClass"`
}

// QueryActiveWindow returns the focused window; an empty address is an error.
func QueryActiveWindow(ctx context.Context) (ActiveWindow, error) {
	raw, err := output(ctx, "-j", "activewindow")
	if err != nil {
		return ActiveWindow{}, err
	}

	var window ActiveWindow
	if err := json.Unmarshal(raw, &window); err != nil {
		return ActiveWindow{}, fmt.Errorf("decode hyprctl activewindow: %w", err)
	}
	window = ActiveWindow{
		Address:      strings.TrimSpace(window.Address),
		Class:        strings.TrimSpace(window.Class),
		InitialClass: strings.TrimSpace(window.InitialClass),
	}
	if window.Address == "" {
		return ActiveWindow{}, errors.New("hyprctl activewindow returned empty address")
	}
	return window, nil
}

// SendShortcut dispatches a sendshortcut payload such as "CTRL,V,address:0xabc".
func SendShortcut(ctx context.Context, payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return errors.New("sendshortcut requires a non-empty payload")
	}
	return run(ctx, "--quiet", "dispatch", "sendshortcut", payload)
}

// Notify shows a compositor notification. An empty color uses the default accent.
func Notify(ctx context.Context, icon, timeoutMS int, color, text string) error {
	if strings.TrimSpace(color) == "" {
		color = defaultNotifyColor
	}
	return run(ctx, "--quiet", "dispatch", "notify",
		strconv.Itoa(icon), strconv.Itoa(timeoutMS), color, text)
}

// DismissNotify clears compositor notifications.
func DismissNotify(ctx context.Context) error {
	return run(ctx, "--quiet", "dispatch", "dismissnotify")
}
