package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/blob"
)

const wavHeaderSize = 44

// FileProvider replays the PCM payload of a WAV (or raw s16le) file as a capture device.
type FileProvider struct {
	Path string
	// Interval paces fragments; zero replays as fast as the consumer accepts them.
	Interval time.Duration
	Logger   *slog.Logger
}

func (p FileProvider) Acquire(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, errors.Join(ErrPermissionDenied, err)
		}
		return nil, errors.Join(ErrDeviceUnavailable, fmt.Errorf("read capture file: %w", err))
	}

	pcm, rate, channels := splitWAV(data)
	return &fileDevice{
		name:     filepath.Base(p.Path),
		logger:   p.Logger,
		pcm:      pcm,
		mimeType: blob.PCMMimeType(rate, channels),
		interval: p.Interval,
	}, nil
}

// splitWAV strips a canonical RIFF header and reports the stream format it declares.
func splitWAV(data []byte) ([]byte, int, int) {
	if len(data) < wavHeaderSize || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return data, captureSampleRate, captureChannels
	}
	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	rate := int(binary.LittleEndian.Uint32(data[24:28]))
	if channels <= 0 {
		channels = captureChannels
	}
	if rate <= 0 {
		rate = captureSampleRate
	}
	return data[wavHeaderSize:], rate, channels
}

type fileDevice struct {
	name     string
	logger   *slog.Logger
	pcm      []byte
	mimeType string
	interval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	feedDone chan struct{}
	ended    bool
}

func (d *fileDevice) Name() string     { return d.name }
func (d *fileDevice) MimeType() string { return d.mimeType }

func (d *fileDevice) Begin(onChunk ChunkFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return fmt.Errorf("%w: device already released", ErrDeviceUnavailable)
	}
	if d.stopCh != nil {
		return errors.New("capture already began")
	}
	d.stopCh = make(chan struct{})
	d.feedDone = make(chan struct{})

	go func(stopCh, feedDone chan struct{}) {
		defer close(feedDone)
		for pos := 0; pos < len(d.pcm); {
			select {
			case <-stopCh:
				return
			default:
			}

			end := min(pos+chunkSizeBytes, len(d.pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, d.pcm[pos:end])
			onChunk(chunk)
			pos = end

			if d.interval > 0 {
				select {
				case <-stopCh:
					return
				case <-time.After(d.interval):
				}
			}
		}
	}(d.stopCh, d.feedDone)
	return nil
}

func (d *fileDevice) End(_ context.Context) error {
	d.mu.Lock()
	if d.stopCh == nil {
		d.mu.Unlock()
		warnEndBeforeBegin(d.logger, d.name)
		return nil
	}
	if d.ended {
		d.mu.Unlock()
		return nil
	}
	d.ended = true
	close(d.stopCh)
	feedDone := d.feedDone
	d.mu.Unlock()

	<-feedDone
	return nil
}

func (d *fileDevice) Release() error {
	d.mu.Lock()
	began := d.stopCh != nil
	if !began {
		d.ended = true
	}
	d.mu.Unlock()

	if !began {
		return nil
	}
	return d.End(context.Background())
}
