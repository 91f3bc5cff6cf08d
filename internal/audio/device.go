// Package audio acquires capture devices and streams raw audio fragments from them.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var (
	// ErrDeviceUnavailable indicates no usable capture hardware or audio server.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrPermissionDenied indicates the user or OS refused capture access.
	ErrPermissionDenied = errors.New("capture permission denied")
)

const (
	captureSampleRate = 16000
	captureChannels   = 1
	chunkSizeBytes    = 640 // 20ms @ 16kHz mono s16
)

// ChunkFunc receives fragments in arrival order. The slice is owned by the callee.
type ChunkFunc func([]byte)

// Provider acquires exclusive access to one capture device.
type Provider interface {
	// Acquire blocks until access is granted, denied, or ctx ends.
	Acquire(ctx context.Context) (Device, error)
}

// Device is one acquired capture resource.
type Device interface {
	// Begin starts delivering fragments to onChunk until End.
	Begin(onChunk ChunkFunc) error
	// End stops production and returns after the final fragment was delivered.
	End(ctx context.Context) error
	// Release closes OS handles regardless of recording state. Idempotent.
	Release() error
	// MimeType reports the container the device produces.
	MimeType() string
	// Name describes the underlying source for logs.
	Name() string
}

// Info describes one input source surfaced by a backend listing.
type Info struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Describe formats source metadata for logs and CLI output.
func (i Info) Describe() string {
	description := strings.TrimSpace(i.Description)
	id := strings.TrimSpace(i.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return description + " (" + id + ")"
}

// classifyOpenError maps backend open failures onto the capture error taxonomy.
func classifyOpenError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission denied") || strings.Contains(msg, "not authorized") {
		return errors.Join(ErrPermissionDenied, err)
	}
	return errors.Join(ErrDeviceUnavailable, err)
}

func warnEndBeforeBegin(logger *slog.Logger, name string) {
	if logger == nil {
		return
	}
	logger.Warn("capture end requested before begin", "device", name)
}
