package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning indicates another owner answered on the socket.
var ErrAlreadyRunning = errors.New("murmur owner already running")

// RuntimeSocketPath is $XDG_RUNTIME_DIR/murmur.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "murmur.sock"), nil
}

// Acquire listens on path, replacing a stale socket left by a dead owner.
// rescue runs after each stale socket is removed.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	rescue func(context.Context) error,
) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, probeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if rescue != nil {
			_ = rescue(ctx)
		}

		if attempt < retries {
			backoff := time.Duration(25*(attempt+1)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, retries)
}
