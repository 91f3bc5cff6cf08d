// Package app dispatches CLI commands: forwarding to a running owner or becoming one.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/cli"
	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/doctor"
	"github.com/rbright/murmur/internal/indicator"
	"github.com/rbright/murmur/internal/ipc"
	"github.com/rbright/murmur/internal/logging"
	"github.com/rbright/murmur/internal/pipeline"
	"github.com/rbright/murmur/internal/version"
)

const (
	statusTimeout  = 220 * time.Millisecond
	controlTimeout = 3 * time.Second
	// retryTimeout covers a synchronous re-transcription on the owner side.
	retryTimeout       = 2 * time.Minute
	socketProbeTimeout = 180 * time.Millisecond
	socketRetries      = 8
	// retryWindow keeps a one-shot owner reachable for `retry` after a failed transcription.
	retryWindow  = 30 * time.Second
	closeTimeout = 5 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("murmur"))
		return 2
	}
	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("murmur"))
		return 0
	}
	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	loaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(loaded.Config.Log)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}
	for _, w := range loaded.Warnings {
		if loaded.Exists {
			fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		}
		logger.Warn("config warning", "message", w.Message)
	}
	logger.Info("command start", "command", string(parsed.Command), "config", loaded.Path, "log", logRuntime.Path)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, loaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx, loaded.Config.Audio)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop, cli.CommandCancel, cli.CommandRetry:
		return r.forwardOrFail(ctx, ipc.Command(parsed.Command))
	case cli.CommandToggle:
		return r.commandToggle(ctx, loaded.Config, logger)
	case cli.CommandServe:
		return r.commandServe(ctx, loaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context, cfg config.AudioConfig) int {
	list := audio.ListDevices
	if strings.EqualFold(cfg.Backend, config.BackendMiniaudio) {
		list = audio.ListMiniaudioDevices
	}
	devices, err := list(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		mark := " "
		if device.Default {
			mark = "*"
		}
		fmt.Fprintf(r.Stdout, "%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			mark, device.ID, device.Description, device.State, yesNo(device.Available), yesNo(device.Muted))
	}
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command ipc.Command) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active murmur owner")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandToggle forwards to a live owner, or becomes a one-shot owner that records
// one cycle and exits once its outcome is final.
func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if code, forwarded := r.forwardToggle(ctx, socketPath); forwarded {
		return code
	}

	listener, err := ipc.Acquire(ctx, socketPath, socketProbeTimeout, socketRetries, nil)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		code, _ := r.forwardToggle(ctx, socketPath)
		return code
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	return r.own(ctx, cfg, logger, socketPath, listener, true)
}

func (r Runner) forwardToggle(ctx context.Context, socketPath string) (int, bool) {
	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandToggle)
	if !handled {
		return 0, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, true
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0, true
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, socketProbeTimeout, socketRetries, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return r.own(ctx, cfg, logger, socketPath, listener, false)
}

// own runs the owner on listener. oneShot starts recording immediately and returns
// after the cycle; otherwise it serves until ctx ends.
func (r Runner) own(ctx context.Context, cfg config.Config, logger *slog.Logger, socketPath string, listener net.Listener, oneShot bool) int {
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	ind := indicator.New(cfg.Indicator, logger)
	defer ind.Wait()

	assembly, err := pipeline.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := assembly.Runtime.Close(closeCtx); err != nil {
			logger.Warn("close runtime", "error", err.Error())
		}
	}()

	var archive ArchiveFunc
	if assembly.Archiver != nil {
		archive = assembly.Archiver.Save
	}
	owner := NewOwner(logger, assembly.Runtime, ind, archive)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, owner)
	}()

	code := 0
	if oneShot {
		code = r.runOnce(ctx, owner)
	} else {
		logger.Info("owner serving", "socket", socketPath)
		owner.Serve(ctx)
	}

	serverCancel()
	if err := <-serverErrCh; err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}
	return code
}

func (r Runner) runOnce(ctx context.Context, owner *Owner) int {
	if err := owner.Start(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	outcome, cancelled, err := owner.RunOnce(ctx, retryWindow)
	switch {
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	case cancelled:
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	case outcome.Err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", outcome.Err)
		return 1
	case outcome.Delegated:
		return 0
	}
	if text := strings.TrimSpace(outcome.Text); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	return 0
}

func forwardTimeout(command ipc.Command) time.Duration {
	switch command {
	case ipc.CommandStatus:
		return statusTimeout
	case ipc.CommandRetry:
		return retryTimeout
	default:
		return controlTimeout
	}
}

// tryForward reports handled=false when no owner is listening.
func tryForward(ctx context.Context, socketPath string, command ipc.Command) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout(command))
	switch {
	case err == nil && resp.OK:
		return resp, true, nil
	case err == nil:
		return resp, true, errors.New(resp.Error)
	case ipc.NoOwner(err):
		return ipc.Response{}, false, nil
	default:
		return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
	}
}

var _ Feedback = (*indicator.Indicator)(nil)
