package indicator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/binding"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/transcribe"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) Notify(_ context.Context, level Level, timeoutMS int, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("notify %d %d %s", level, timeoutMS, text))
	return nil
}

func (n *recordingNotifier) Dismiss(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "dismiss")
	return nil
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type cueLog struct {
	mu    sync.Mutex
	kinds []string
}

func (c *cueLog) play(_ context.Context, kind cueKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind.String())
	return errors.New("no audio server")
}

func newTestIndicator(t *testing.T) (*Indicator, *recordingNotifier, *cueLog) {
	t.Helper()
	notifier := &recordingNotifier{}
	cues := &cueLog{}
	cfg := config.Default().Indicator
	return newIndicator(cfg, nil, notifier, cues.play), notifier, cues
}

func TestIndicatorFollowsRecordingCycle(t *testing.T) {
	ind, notifier, cues := newTestIndicator(t)

	ind.RecordingChanged(true)
	ind.RecordingChanged(false)
	ind.Outcome(binding.Outcome{Text: "hello"})
	ind.Wait()

	require.Equal(t, []string{
		"notify 0 300000 Recording…",
		"notify 1 300000 Transcribing…",
		"dismiss",
	}, notifier.snapshot())
	// Cues play on their own goroutines; only the set is fixed.
	require.ElementsMatch(t, []string{"start", "stop", "complete"}, cues.kinds)
}

func TestIndicatorOutcomeErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: audio.ErrDeviceUnavailable, want: "No microphone available"},
		{err: audio.ErrPermissionDenied, want: "Microphone access denied"},
		{err: binding.ErrEmptyTranscript, want: "No speech recognized"},
		{err: &transcribe.Error{Kind: transcribe.KindStatus, StatusCode: 500}, want: "Speech recognition error"},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			ind, notifier, cues := newTestIndicator(t)
			ind.Outcome(binding.Outcome{Err: tc.err})
			ind.Wait()

			require.Equal(t, []string{"notify 2 1600 " + tc.want}, notifier.snapshot())
			require.Empty(t, cues.kinds)
		})
	}
}

func TestIndicatorCancelled(t *testing.T) {
	ind, notifier, cues := newTestIndicator(t)
	ind.Cancelled()
	ind.Wait()

	require.Equal(t, []string{"dismiss"}, notifier.snapshot())
	require.Equal(t, []string{"cancel"}, cues.kinds)
}

func TestIndicatorDisabledKeepsCues(t *testing.T) {
	notifier := &recordingNotifier{}
	cues := &cueLog{}
	cfg := config.Default().Indicator
	cfg.Enable = false

	ind := newIndicator(cfg, nil, notifier, cues.play)
	ind.RecordingChanged(true)
	ind.Wait()

	require.Empty(t, notifier.snapshot())
	require.Equal(t, []string{"start"}, cues.kinds)
}

func TestIndicatorSoundDisabled(t *testing.T) {
	notifier := &recordingNotifier{}
	cues := &cueLog{}
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	ind := newIndicator(cfg, nil, notifier, cues.play)
	ind.RecordingChanged(true)
	ind.ShowError(context.Background(), " ")
	ind.Wait()

	require.Empty(t, cues.kinds)
	require.Equal(t, []string{
		"notify 0 300000 Recording…",
		"notify 2 1200 Speech recognition error",
	}, notifier.snapshot())
}

func TestHyprNotifierDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installStub(t, "hyprctl", `printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	ind := New(cfg, nil)
	ind.RecordingChanged(true)
	ind.RecordingChanged(false)
	ind.Outcome(binding.Outcome{Err: errors.New("boom")})
	ind.Cancelled()

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, []string{
		"--quiet dispatch notify 1 300000 rgb(89b4fa) Recording…",
		"--quiet dispatch notify 1 300000 rgb(cba6f7) Transcribing…",
		"--quiet dispatch notify 3 1600 rgb(f38ba8) Speech recognition error",
		"--quiet dispatch dismissnotify",
	}, strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestDesktopNotifierReplacesAndCloses(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installStub(t, "busctl", `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
if [[ "$6" == "Notify" ]]; then
  echo 'u 42'
fi
`)

	notifier := &desktopNotifier{appName: "murmur-test"}
	require.NoError(t, notifier.Notify(context.Background(), LevelInfo, 1000, "Recording…"))
	require.NoError(t, notifier.Notify(context.Background(), LevelBusy, 1000, "Transcribing…"))
	require.NoError(t, notifier.Dismiss(context.Background()))
	require.NoError(t, notifier.Dismiss(context.Background()))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Notify susssasa{sv}i murmur-test 0  Recording…")
	require.Contains(t, lines[1], "Notify susssasa{sv}i murmur-test 42  Transcribing…")
	require.True(t, strings.HasSuffix(lines[2], "CloseNotification u 42"))
}

func TestDesktopNotifierRejectsUnexpectedReply(t *testing.T) {
	installStub(t, "busctl", `echo 'garbage'`)

	err := (&desktopNotifier{appName: "murmur"}).Notify(context.Background(), LevelInfo, 1000, "x")
	require.ErrorContains(t, err, "unexpected reply")
}

func installStub(t *testing.T, name, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
