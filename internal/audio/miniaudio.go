package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/rbright/murmur/internal/blob"
)

// MiniaudioProvider captures from the platform default (or name-matched) input via miniaudio.
type MiniaudioProvider struct {
	Input  string
	Logger *slog.Logger
}

// ListMiniaudioDevices enumerates capture devices visible to miniaudio.
func ListMiniaudioDevices(_ context.Context) ([]Info, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("init miniaudio context: %w", err))
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("miniaudio devices: %w", err)
	}

	out := make([]Info, 0, len(devices))
	for i, d := range devices {
		out = append(out, Info{
			ID:          strconv.Itoa(i),
			Description: d.Name(),
			Available:   true,
			Default:     d.IsDefault != 0,
		})
	}
	return out, nil
}

func (p MiniaudioProvider) Acquire(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("init miniaudio context: %w", err))
	}
	closeContext := func() {
		_ = mctx.Uninit()
		mctx.Free()
	}

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		closeContext()
		return nil, classifyOpenError(fmt.Errorf("miniaudio devices: %w", err))
	}
	if len(devices) == 0 {
		closeContext()
		return nil, fmt.Errorf("%w: no capture devices found", ErrDeviceUnavailable)
	}

	dev := &miniaudioDevice{logger: p.Logger, ctx: mctx, name: "default"}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = captureChannels
	deviceConfig.SampleRate = captureSampleRate

	if term := strings.ToLower(strings.TrimSpace(p.Input)); !isDefaultTerm(term) {
		matched := false
		for i := range devices {
			if strings.Contains(strings.ToLower(devices[i].Name()), term) {
				deviceConfig.Capture.DeviceID = devices[i].ID.Pointer()
				dev.name = devices[i].Name()
				matched = true
				break
			}
		}
		if !matched {
			closeContext()
			return nil, fmt.Errorf("%w: audio.input %q did not match any device", ErrDeviceUnavailable, term)
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			dev.onData(data)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		closeContext()
		return nil, classifyOpenError(fmt.Errorf("init miniaudio capture device: %w", err))
	}
	dev.device = device
	dev.stop = device.Stop
	return dev, nil
}

type miniaudioDevice struct {
	logger *slog.Logger
	name   string

	ctx    *malgo.AllocatedContext
	device *malgo.Device
	// stop halts the device; callbacks may still arrive until it returns.
	stop func() error

	mu       sync.Mutex
	onChunk  ChunkFunc
	began    bool
	stopping bool
	ended    bool
	released bool
	inflight sync.WaitGroup
}

func (d *miniaudioDevice) Name() string { return d.name }

func (d *miniaudioDevice) MimeType() string {
	return blob.PCMMimeType(captureSampleRate, captureChannels)
}

func (d *miniaudioDevice) Begin(onChunk ChunkFunc) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: device already released", ErrDeviceUnavailable)
	}
	if d.began {
		d.mu.Unlock()
		return errors.New("capture already began")
	}
	d.onChunk = onChunk
	d.began = true
	d.mu.Unlock()

	if err := d.device.Start(); err != nil {
		return classifyOpenError(fmt.Errorf("start miniaudio capture: %w", err))
	}
	return nil
}

func (d *miniaudioDevice) onData(data []byte) {
	if len(data) == 0 {
		return
	}
	d.mu.Lock()
	if !d.began || d.ended {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	onChunk := d.onChunk
	d.mu.Unlock()
	defer d.inflight.Done()

	// miniaudio reuses its capture buffer between callbacks.
	chunk := make([]byte, len(data))
	copy(chunk, data)
	onChunk(chunk)
}

func (d *miniaudioDevice) End(_ context.Context) error {
	d.mu.Lock()
	if !d.began {
		d.mu.Unlock()
		warnEndBeforeBegin(d.logger, d.name)
		return nil
	}
	if d.ended || d.stopping {
		d.mu.Unlock()
		return nil
	}
	d.stopping = true
	d.mu.Unlock()

	// frames delivered while stopping are still part of the recording
	err := d.stop()

	d.mu.Lock()
	d.ended = true
	d.mu.Unlock()
	d.inflight.Wait()
	if err != nil {
		return fmt.Errorf("stop miniaudio capture: %w", err)
	}
	return nil
}

func (d *miniaudioDevice) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.ended = true
	d.mu.Unlock()

	d.inflight.Wait()
	if d.device != nil {
		d.device.Uninit()
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
	}
	return nil
}
