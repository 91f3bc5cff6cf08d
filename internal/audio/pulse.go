package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/rbright/murmur/internal/blob"
)

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Info
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("murmur"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("connect pulse server: %w", err))
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Info, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return listPulseSources(client)
}

// SelectDevice resolves input and fallback against the live Pulse source list.
func SelectDevice(ctx context.Context, input, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	selection, err := selectDeviceFromList(devices, input, fallback)
	if err != nil {
		return Selection{}, errors.Join(ErrDeviceUnavailable, err)
	}
	return selection, nil
}

func listPulseSources(client *pulse.Client) ([]Info, error) {
	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Info, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Info{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// selectDeviceFromList applies audio.input/audio.fallback preferences to live sources.
func selectDeviceFromList(devices []Info, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	var (
		defaultDevice *Info
		byInput       *Info
		byFallback    *Info
	)

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && !isDefaultTerm(input) && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && !isDefaultTerm(fallback) && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	primary := defaultDevice
	if !isDefaultTerm(input) {
		if byInput == nil {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
		primary = byInput
	}
	if primary == nil {
		return Selection{}, errors.New("default audio source is unavailable")
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alternate := defaultDevice
	if !isDefaultTerm(fallback) {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		alternate = byFallback
	}
	if alternate == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback", primary.ID, reason)
	}
	if !alternate.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alternate.ID)
	}
	if alternate.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alternate.ID)
	}

	return Selection{
		Device:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

func isDefaultTerm(term string) bool {
	return term == "" || term == "default"
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Info, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// PulseProvider opens a record stream on the configured Pulse/PipeWire source.
type PulseProvider struct {
	Input    string
	Fallback string
	Logger   *slog.Logger
}

// Acquire connects to the audio server and resolves the selected source.
func (p PulseProvider) Acquire(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	devices, err := listPulseSources(client)
	if err != nil {
		client.Close()
		return nil, classifyOpenError(err)
	}
	selection, err := selectDeviceFromList(devices, p.Input, p.Fallback)
	if err != nil {
		client.Close()
		return nil, errors.Join(ErrDeviceUnavailable, err)
	}
	if selection.Warning != "" && p.Logger != nil {
		p.Logger.Warn(selection.Warning)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, classifyOpenError(fmt.Errorf("resolve source %q: %w", selection.Device.ID, err))
	}

	if err := ctx.Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &pulseDevice{
		info:   selection.Device,
		logger: p.Logger,
		client: client,
		source: source,
	}, nil
}

// pulseDevice streams fixed-size s16le fragments from one Pulse source.
type pulseDevice struct {
	info   Info
	logger *slog.Logger

	client *pulse.Client
	source *pulse.Source
	stream *pulse.RecordStream

	mu       sync.Mutex
	onChunk  ChunkFunc
	pending  []byte
	began    bool
	ended    bool
	released bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func (d *pulseDevice) Name() string { return d.info.Describe() }

func (d *pulseDevice) MimeType() string {
	return blob.PCMMimeType(captureSampleRate, captureChannels)
}

func (d *pulseDevice) Begin(onChunk ChunkFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return fmt.Errorf("%w: device already released", ErrDeviceUnavailable)
	}
	if d.began {
		return errors.New("capture already began")
	}
	d.onChunk = onChunk

	writer := pulse.NewWriter(writerFunc(d.onPCM), pulseproto.FormatInt16LE)
	stream, err := d.client.NewRecord(
		writer,
		pulse.RecordSource(d.source),
		pulse.RecordMono,
		pulse.RecordSampleRate(captureSampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("murmur dictation"),
	)
	if err != nil {
		return classifyOpenError(fmt.Errorf("create pulse record stream: %w", err))
	}

	d.stream = stream
	d.began = true
	stream.Start()
	return nil
}

func (d *pulseDevice) End(_ context.Context) error {
	d.mu.Lock()
	if !d.began {
		d.mu.Unlock()
		warnEndBeforeBegin(d.logger, d.Name())
		return nil
	}
	if d.ended {
		d.mu.Unlock()
		return nil
	}
	d.ended = true
	stream := d.stream
	d.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	d.inflight.Wait()

	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	onChunk := d.onChunk
	d.mu.Unlock()

	if len(pending) > 0 && onChunk != nil {
		onChunk(pending)
	}
	if d.logger != nil {
		d.logger.Debug("pulse capture ended", "device", d.Name(), "bytes", d.bytes.Load())
	}
	return nil
}

func (d *pulseDevice) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.ended = true
	stream := d.stream
	client := d.client
	d.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if client != nil {
		client.Close()
	}
	d.inflight.Wait()
	return nil
}

// onPCM receives raw Pulse frames and forwards chunkSizeBytes slices in order.
func (d *pulseDevice) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as d.ended so End never waits on a late writer.
	d.inflight.Add(1)
	defer d.inflight.Done()

	d.pending = append(d.pending, buffer...)
	chunks := make([][]byte, 0, len(d.pending)/chunkSizeBytes)
	for len(d.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, d.pending[:chunkSizeBytes])
		d.pending = d.pending[chunkSizeBytes:]
		chunks = append(chunks, chunk)
	}
	onChunk := d.onChunk
	d.mu.Unlock()

	d.bytes.Add(int64(len(buffer)))

	if onChunk != nil {
		for _, chunk := range chunks {
			onChunk(chunk)
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
