// Package binding exposes the capture session to a text composer: an isRecording flag,
// start/stop commands, and delivery of transcribed text into the composition buffer.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/blob"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/session"
	"github.com/rbright/murmur/internal/transcribe"
)

var (
	// ErrEmptyTranscript indicates transcription succeeded but produced no usable text.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
	// ErrNothingToRetry indicates Retry was called before any blob was captured.
	ErrNothingToRetry = errors.New("no captured audio to retry")
	// ErrNoStrategy indicates Retry was called without a transcription strategy.
	ErrNoStrategy = errors.New("no transcription strategy configured")
	// ErrTranscriptionInProgress indicates Retry overlapped a pending transcription.
	ErrTranscriptionInProgress = errors.New("transcription already in progress")
)

// TextSetter is the composition buffer. SetText replaces nothing on failure.
type TextSetter interface {
	SetText(ctx context.Context, text string) error
}

// TextSetterFunc adapts a function to the TextSetter interface.
type TextSetterFunc func(context.Context, string) error

func (f TextSetterFunc) SetText(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Outcome reports how one completed capture ended up.
type Outcome struct {
	SessionID string
	// Blob is nil for delegated cycles.
	Blob      *blob.Blob
	Text      string
	Err       error
	Delegated bool
	Retry     bool
	Latency   time.Duration
}

// Options tunes a Runtime.
type Options struct {
	// Normalize post-processes transcripts before SetText. Nil trims whitespace.
	Normalize func(string) string
}

// Runtime binds one Session to a transcription strategy and a text sink.
type Runtime struct {
	logger    *slog.Logger
	session   *session.Session
	strategy  transcribe.Strategy
	sink      TextSetter
	normalize func(string) string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// deliverMu orders edge delivery so subscribers settle on the latest value.
	deliverMu sync.Mutex

	mu          sync.Mutex
	recording   bool
	subscribers map[int]func(bool)
	nextSubID   int
	onOutcome   func(Outcome)
	lastBlob    *blob.Blob
	lastBlobID  string
	inflight    int
}

// New wires the runtime into s as its observer and completion consumer.
// strategy and sink may be nil.
func New(logger *slog.Logger, s *session.Session, strategy transcribe.Strategy, sink TextSetter, opts Options) *Runtime {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	normalize := opts.Normalize
	if normalize == nil {
		normalize = strings.TrimSpace
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		logger:      logger,
		session:     s,
		strategy:    strategy,
		sink:        sink,
		normalize:   normalize,
		baseCtx:     baseCtx,
		cancel:      cancel,
		subscribers: map[int]func(bool){},
	}
	s.SetObserver(r.observe)
	s.SetOnComplete(r.complete)
	return r
}

// IsRecording mirrors session state == recording.
func (r *Runtime) IsRecording() bool {
	return r.session.State() == fsm.StateRecording
}

// State returns the underlying session state.
func (r *Runtime) State() fsm.State {
	return r.session.State()
}

// SessionID returns the current or most recent capture cycle id.
func (r *Runtime) SessionID() string {
	return r.session.ID()
}

// StartRecord resets a finished session and starts a new cycle. Acquisition
// failures are returned to the caller.
func (r *Runtime) StartRecord(ctx context.Context) error {
	if r.session.State().Terminal() {
		if err := r.session.Reset(); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
	}
	return r.session.Start(ctx)
}

// StopRecord forwards to Session.Stop.
func (r *Runtime) StopRecord(ctx context.Context) error {
	return r.session.Stop(ctx)
}

// CancelRecord abandons the active cycle without transcription.
func (r *Runtime) CancelRecord(ctx context.Context) error {
	return r.session.Cancel(ctx)
}

// Subscribe registers fn for isRecording changes. Calls are edge-triggered and
// never repeat a value. fn must not start or stop recording. The returned func
// unsubscribes.
func (r *Runtime) Subscribe(fn func(bool)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

// OnOutcome registers the single outcome consumer, replacing any previous one.
func (r *Runtime) OnOutcome(fn func(Outcome)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOutcome = fn
}

// LastBlob returns the most recent finalized blob, kept for retries after failures.
func (r *Runtime) LastBlob() *blob.Blob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastBlob
}

// Retry re-runs transcription on LastBlob without recording again. The outcome
// carries the id of the cycle that captured the blob.
func (r *Runtime) Retry(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	b, id := r.lastBlob, r.lastBlobID
	switch {
	case b == nil:
		r.mu.Unlock()
		return Outcome{}, ErrNothingToRetry
	case r.strategy == nil:
		r.mu.Unlock()
		return Outcome{}, ErrNoStrategy
	case r.inflight > 0:
		r.mu.Unlock()
		return Outcome{}, ErrTranscriptionInProgress
	}
	r.inflight++
	r.mu.Unlock()

	outcome := r.run(ctx, id, b, true)
	return outcome, outcome.Err
}

// Wait blocks until in-flight transcriptions have reported their outcome.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

// Close cancels any active cycle and in-flight transcriptions, then waits for them.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.session.Close(ctx)
	r.cancel()
	r.wg.Wait()
	return err
}

// observe re-reads the session state under r.mu so concurrent notifications settle
// on the latest value.
func (r *Runtime) observe(fsm.State) {
	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	r.mu.Lock()
	recording := r.session.State() == fsm.StateRecording
	if recording == r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = recording
	ids := make([]int, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subscribers := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		subscribers = append(subscribers, r.subscribers[id])
	}
	r.mu.Unlock()

	for _, fn := range subscribers {
		fn(recording)
	}
}

func (r *Runtime) complete(b *blob.Blob) {
	id := r.session.ID()
	if b == nil {
		r.logger.Info("delegated recording completed; transcription owned by override", "session_id", id)
		r.report(Outcome{SessionID: id, Delegated: true})
		return
	}

	r.mu.Lock()
	r.lastBlob = b
	r.lastBlobID = id
	if r.strategy != nil {
		r.inflight++
	}
	r.mu.Unlock()

	if r.strategy == nil {
		r.logger.Info("recording completed without transcription strategy", "session_id", id, "bytes", b.Len())
		r.report(Outcome{SessionID: id, Blob: b})
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(r.baseCtx, id, b, false)
	}()
}

// settle ends an in-flight transcription before its outcome is reported, so a
// consumer reacting to the outcome may retry immediately.
func (r *Runtime) settle() {
	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
}

func (r *Runtime) run(ctx context.Context, id string, b *blob.Blob, retry bool) Outcome {
	started := time.Now()
	outcome := Outcome{SessionID: id, Blob: b, Retry: retry}

	text, err := r.strategy.Transcribe(ctx, b)
	outcome.Latency = time.Since(started)

	switch {
	case err != nil:
		if !errors.Is(err, transcribe.ErrTranscriptionFailed) {
			err = fmt.Errorf("%w: %w", transcribe.ErrTranscriptionFailed, err)
		}
		outcome.Err = err
		r.logger.Error("transcription failed; composition buffer left unchanged",
			"session_id", id, "retry", retry, "bytes", b.Len(), "error", err.Error())
	default:
		text = r.normalize(text)
		outcome.Text = text
		if strings.TrimSpace(text) == "" {
			outcome.Err = ErrEmptyTranscript
			r.logger.Warn("empty transcript", "session_id", id, "retry", retry)
			break
		}
		if r.sink != nil {
			if err := r.sink.SetText(ctx, text); err != nil {
				outcome.Err = fmt.Errorf("set text: %w", err)
				r.logger.Error("set text failed", "session_id", id, "error", err.Error())
				break
			}
		}
		r.logger.Info("transcript delivered",
			"session_id", id,
			"retry", retry,
			"chars", len(text),
			"latency_ms", outcome.Latency.Milliseconds(),
		)
	}

	r.settle()
	r.report(outcome)
	return outcome
}

func (r *Runtime) report(outcome Outcome) {
	r.mu.Lock()
	fn := r.onOutcome
	r.mu.Unlock()
	if fn != nil {
		fn(outcome)
	}
}
