package binding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/blob"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/transcribe"
)

type fakeDevice struct {
	mu      sync.Mutex
	onChunk audio.ChunkFunc
}

func (d *fakeDevice) Begin(onChunk audio.ChunkFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChunk = onChunk
	return nil
}

func (d *fakeDevice) emit(chunk []byte) {
	d.mu.Lock()
	onChunk := d.onChunk
	d.mu.Unlock()
	onChunk(chunk)
}

func (d *fakeDevice) End(context.Context) error { return nil }
func (d *fakeDevice) Release() error           { return nil }
func (d *fakeDevice) MimeType() string         { return "audio/webm" }
func (d *fakeDevice) Name() string             { return "fake mic" }

type fakeProvider struct {
	device *fakeDevice
	err    error
	calls  atomic.Int32
}

func (p *fakeProvider) Acquire(context.Context) (audio.Device, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.device, nil
}

type recordingBuffer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (b *recordingBuffer) SetText(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.texts = append(b.texts, text)
	return nil
}

func (b *recordingBuffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

type edgeLog struct {
	mu     sync.Mutex
	values []bool
}

func (l *edgeLog) add(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
}

func (l *edgeLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.values...)
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (l *outcomeLog) add(o Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, o)
}

func (l *outcomeLog) snapshot() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outcome(nil), l.outcomes...)
}

func newRuntime(t *testing.T, provider audio.Provider, strategy transcribe.Strategy, sink TextSetter) (*Runtime, *edgeLog, *outcomeLog) {
	t.Helper()
	s := session.New(nil, provider, session.Options{})
	r := New(nil, s, strategy, sink, Options{})
	edges := &edgeLog{}
	outcomes := &outcomeLog{}
	r.Subscribe(edges.add)
	r.OnOutcome(outcomes.add)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, edges, outcomes
}

func TestIsRecordingEdgesAreDeduplicated(t *testing.T) {
	device := &fakeDevice{}
	r, edges, _ := newRuntime(t, &fakeProvider{device: device}, nil, nil)

	require.False(t, r.IsRecording())
	require.NoError(t, r.StartRecord(context.Background()))
	require.True(t, r.IsRecording())
	require.NoError(t, r.StartRecord(context.Background()))
	require.NoError(t, r.StopRecord(context.Background()))
	require.NoError(t, r.StopRecord(context.Background()))
	require.False(t, r.IsRecording())

	require.Equal(t, []bool{true, false}, edges.snapshot())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	r, _, _ := newRuntime(t, &fakeProvider{device: &fakeDevice{}}, nil, nil)

	var calls atomic.Int32
	unsubscribe := r.Subscribe(func(bool) { calls.Add(1) })
	require.NoError(t, r.StartRecord(context.Background()))
	unsubscribe()
	require.NoError(t, r.StopRecord(context.Background()))

	require.Equal(t, int32(1), calls.Load())
}

func TestStartWithoutMicrophoneRejectsAndNeverRecords(t *testing.T) {
	provider := &fakeProvider{err: audio.ErrDeviceUnavailable}
	r, edges, _ := newRuntime(t, provider, nil, nil)

	err := r.StartRecord(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.False(t, r.IsRecording())
	require.Equal(t, fsm.StateFailed, r.State())
	require.Empty(t, edges.snapshot())

	// The next attempt resets the failed session and tries again.
	err = r.StartRecord(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.Equal(t, int32(2), provider.calls.Load())
}

func TestRemoteServerErrorLeavesBufferUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	r, _, outcomes := newRuntime(t, &fakeProvider{device: device}, transcribe.NewRemote(transcribe.RemoteConfig{Endpoint: server.URL}), buffer)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("0123456789"))
	device.emit(nil)
	device.emit([]byte("01234567890123456789"))
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()

	require.Equal(t, fsm.StateCompleted, r.State())
	require.NotNil(t, r.LastBlob())
	require.Equal(t, 30, r.LastBlob().Len())
	require.Empty(t, buffer.snapshot())

	got := outcomes.snapshot()
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].Err, transcribe.ErrTranscriptionFailed)
	require.Same(t, r.LastBlob(), got[0].Blob)
}

func TestTranscriptIsNormalizedAndDelivered(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	var seen atomic.Int32
	strategy := transcribe.Func(func(_ context.Context, b *blob.Blob) (string, error) {
		seen.Store(int32(b.Len()))
		return "  hello there  ", nil
	})
	r, _, outcomes := newRuntime(t, &fakeProvider{device: device}, strategy, buffer)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()

	require.Equal(t, int32(3), seen.Load())
	require.Equal(t, []string{"hello there"}, buffer.snapshot())
	got := outcomes.snapshot()
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	require.Equal(t, "hello there", got[0].Text)
	require.NotEmpty(t, got[0].SessionID)
}

func TestEmptyTranscriptSetsNothing(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) { return "   ", nil })
	r, _, outcomes := newRuntime(t, &fakeProvider{device: device}, strategy, buffer)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()

	require.Empty(t, buffer.snapshot())
	require.ErrorIs(t, outcomes.snapshot()[0].Err, ErrEmptyTranscript)
}

func TestSetTextFailureIsReported(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{err: errors.New("clipboard missing")}
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) { return "hi", nil })
	r, _, outcomes := newRuntime(t, &fakeProvider{device: device}, strategy, buffer)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()

	require.ErrorContains(t, outcomes.snapshot()[0].Err, "clipboard missing")
}

func TestRetryReusesCapturedBlob(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	var attempts atomic.Int32
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) {
		if attempts.Add(1) == 1 {
			return "", errors.New("network down")
		}
		return "second time", nil
	})
	provider := &fakeProvider{device: device}
	r, _, outcomes := newRuntime(t, provider, strategy, buffer)

	_, err := r.Retry(context.Background())
	require.ErrorIs(t, err, ErrNothingToRetry)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()
	require.Empty(t, buffer.snapshot())

	outcome, err := r.Retry(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.Retry)
	require.Equal(t, []string{"second time"}, buffer.snapshot())
	require.Equal(t, int32(1), provider.calls.Load())
	require.Len(t, outcomes.snapshot(), 2)
}

func TestRetryWithoutStrategy(t *testing.T) {
	device := &fakeDevice{}
	r, _, outcomes := newRuntime(t, &fakeProvider{device: device}, nil, nil)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))

	got := outcomes.snapshot()
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	require.Equal(t, 3, got[0].Blob.Len())

	_, err := r.Retry(context.Background())
	require.ErrorIs(t, err, ErrNoStrategy)
}

func TestSessionReusedAcrossCycles(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	var n atomic.Int32
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) {
		if n.Add(1) == 1 {
			return "one", nil
		}
		return "two", nil
	})
	r, edges, _ := newRuntime(t, &fakeProvider{device: device}, strategy, buffer)

	for range 2 {
		require.NoError(t, r.StartRecord(context.Background()))
		device.emit([]byte("abc"))
		require.NoError(t, r.StopRecord(context.Background()))
		r.Wait()
	}

	require.Equal(t, []string{"one", "two"}, buffer.snapshot())
	require.Equal(t, []bool{true, false, true, false}, edges.snapshot())
}

func TestDelegatedCycleSkipsTranscription(t *testing.T) {
	provider := &fakeProvider{device: &fakeDevice{}}
	var calls atomic.Int32
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) {
		calls.Add(1)
		return "unused", nil
	})

	s := session.New(nil, provider, session.Options{})
	s.SetStartOverride(func(context.Context) error { return nil })
	r := New(nil, s, strategy, nil, Options{})
	outcomes := &outcomeLog{}
	r.OnOutcome(outcomes.add)
	defer func() { _ = r.Close(context.Background()) }()

	require.NoError(t, r.StartRecord(context.Background()))
	require.True(t, r.IsRecording())
	require.NoError(t, r.StopRecord(context.Background()))
	r.Wait()

	require.Equal(t, int32(0), calls.Load())
	require.Equal(t, int32(0), provider.calls.Load())
	require.Nil(t, r.LastBlob())
	got := outcomes.snapshot()
	require.Len(t, got, 1)
	require.True(t, got[0].Delegated)
}

func TestCancelRecordDiscardsAudio(t *testing.T) {
	device := &fakeDevice{}
	r, edges, outcomes := newRuntime(t, &fakeProvider{device: device}, nil, nil)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.CancelRecord(context.Background()))

	require.Equal(t, fsm.StateIdle, r.State())
	require.Nil(t, r.LastBlob())
	require.Empty(t, outcomes.snapshot())
	require.Equal(t, []bool{true, false}, edges.snapshot())
}

func TestRetryKeepsCapturingCycleIDAndRejectsOverlap(t *testing.T) {
	device := &fakeDevice{}
	buffer := &recordingBuffer{}
	gate := make(chan struct{})
	entered := make(chan struct{})
	var attempts atomic.Int32
	strategy := transcribe.Func(func(context.Context, *blob.Blob) (string, error) {
		if attempts.Add(1) == 1 {
			close(entered)
			<-gate
			return "", errors.New("network down")
		}
		return "again", nil
	})
	r, _, _ := newRuntime(t, &fakeProvider{device: device}, strategy, buffer)

	require.NoError(t, r.StartRecord(context.Background()))
	device.emit([]byte("abc"))
	require.NoError(t, r.StopRecord(context.Background()))
	capturedID := r.SessionID()
	<-entered

	_, err := r.Retry(context.Background())
	require.ErrorIs(t, err, ErrTranscriptionInProgress)

	close(gate)
	r.Wait()

	require.NoError(t, r.StartRecord(context.Background()))
	require.NotEqual(t, capturedID, r.SessionID())

	outcome, err := r.Retry(context.Background())
	require.NoError(t, err)
	require.Equal(t, capturedID, outcome.SessionID)
	require.Equal(t, []string{"again"}, buffer.snapshot())
	require.Equal(t, int32(2), attempts.Load())
}

func TestRecordingEdgesSettleOnLatestState(t *testing.T) {
	for i := 0; i < 50; i++ {
		device := &fakeDevice{}
		r, _, _ := newRuntime(t, &fakeProvider{device: device}, nil, nil)

		var mu sync.Mutex
		var last *bool
		r.Subscribe(func(recording bool) {
			mu.Lock()
			defer mu.Unlock()
			last = &recording
		})

		started := make(chan struct{})
		go func() {
			defer close(started)
			_ = r.StartRecord(context.Background())
		}()
		// stop as soon as the grant lands, racing the start-side delivery
		for !r.IsRecording() {
			runtime.Gosched()
		}
		require.NoError(t, r.StopRecord(context.Background()))
		<-started

		mu.Lock()
		if last != nil {
			require.False(t, *last, "iteration %d", i)
		}
		mu.Unlock()
		require.False(t, r.IsRecording())
	}
}
