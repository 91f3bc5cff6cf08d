package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/murmur/internal/binding"
	"github.com/rbright/murmur/internal/fsm"
	"github.com/rbright/murmur/internal/ipc"
)

// Feedback receives the owner's user-visible events.
type Feedback interface {
	RecordingChanged(recording bool)
	Outcome(binding.Outcome)
	Cancelled()
}

// ArchiveFunc persists the audio of a failed outcome.
type ArchiveFunc func(binding.Outcome) (string, error)

type ownerEvent struct {
	outcome   binding.Outcome
	cancelled bool
}

// Owner serves control commands against one runtime binding.
type Owner struct {
	logger   *slog.Logger
	runtime  *binding.Runtime
	feedback Feedback
	archive  ArchiveFunc
	events   chan ownerEvent

	mu   sync.Mutex
	last *binding.Outcome
}

// NewOwner subscribes feedback to recording edges and takes over outcome delivery.
// feedback and archive may be nil.
func NewOwner(logger *slog.Logger, runtime *binding.Runtime, feedback Feedback, archive ArchiveFunc) *Owner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Owner{
		logger:   logger,
		runtime:  runtime,
		feedback: feedback,
		archive:  archive,
		events:   make(chan ownerEvent, 16),
	}
	if feedback != nil {
		runtime.Subscribe(feedback.RecordingChanged)
	}
	runtime.OnOutcome(o.onOutcome)
	return o
}

// Handle implements ipc.Handler.
func (o *Owner) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return o.response("")
	case ipc.CommandToggle:
		return o.toggle(ctx)
	case ipc.CommandStop:
		return o.stop(ctx)
	case ipc.CommandCancel:
		return o.cancel(ctx)
	case ipc.CommandRetry:
		return o.retry(ctx)
	default:
		return ipc.Response{Error: "unsupported command " + string(req.Command)}
	}
}

// Start begins a cycle, surfacing acquisition failures through feedback.
func (o *Owner) Start(ctx context.Context) error {
	if err := o.runtime.StartRecord(ctx); err != nil {
		o.logger.Error("start recording failed", "error", err.Error())
		if o.feedback != nil {
			o.feedback.Outcome(binding.Outcome{SessionID: o.runtime.SessionID(), Err: err})
		}
		return err
	}
	return nil
}

func (o *Owner) toggle(ctx context.Context) ipc.Response {
	switch o.runtime.State() {
	case fsm.StateAcquiring, fsm.StateRecording:
		return o.stop(ctx)
	case fsm.StateFinalizing:
		return o.response("busy finalizing previous recording")
	}
	if err := o.Start(ctx); err != nil {
		return o.failure(err)
	}
	return o.response("recording")
}

// stop finalizes a recording. A stop that lands during acquisition abandons the
// cycle without an outcome, so it is reported like a cancel.
func (o *Owner) stop(ctx context.Context) ipc.Response {
	before := o.runtime.State()
	if !before.Active() {
		o.logger.Warn("stop ignored; not recording", "state", string(before))
		return o.response("not recording")
	}
	if err := o.runtime.StopRecord(ctx); err != nil {
		return o.failure(err)
	}
	if before == fsm.StateAcquiring && o.runtime.State() == fsm.StateIdle {
		o.logger.Info("recording abandoned before capture began", "session_id", o.runtime.SessionID())
		o.abandoned()
		return o.response("cancelled")
	}
	return o.response("stopped")
}

func (o *Owner) cancel(ctx context.Context) ipc.Response {
	if !o.runtime.State().Active() {
		return o.response("not recording")
	}
	if err := o.runtime.CancelRecord(ctx); err != nil {
		return o.failure(err)
	}
	o.logger.Info("recording cancelled", "session_id", o.runtime.SessionID())
	o.abandoned()
	return o.response("cancelled")
}

func (o *Owner) abandoned() {
	if o.feedback != nil {
		o.feedback.Cancelled()
	}
	o.emit(ownerEvent{cancelled: true})
}

func (o *Owner) retry(ctx context.Context) ipc.Response {
	if o.runtime.State().Active() {
		return o.failure(errors.New("cannot retry while recording"))
	}
	outcome, err := o.runtime.Retry(ctx)
	if err != nil {
		return o.failure(err)
	}
	return o.response(outcome.Text)
}

// Last returns the most recent outcome, if any.
func (o *Owner) Last() (binding.Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return binding.Outcome{}, false
	}
	return *o.last, true
}

func (o *Owner) onOutcome(outcome binding.Outcome) {
	o.mu.Lock()
	o.last = &outcome
	o.mu.Unlock()

	fields := []any{
		"session_id", outcome.SessionID,
		"delegated", outcome.Delegated,
		"retry", outcome.Retry,
		"latency_ms", outcome.Latency.Milliseconds(),
		"transcript_length", len(outcome.Text),
	}
	if outcome.Blob != nil {
		fields = append(fields, "bytes", outcome.Blob.Len(), "mime_type", outcome.Blob.MimeType())
	}
	if outcome.Err != nil {
		o.logger.Error("cycle failed", append(fields, "error", outcome.Err.Error())...)
		if o.archive != nil {
			if _, err := o.archive(outcome); err != nil {
				o.logger.Error("archive failed capture", "error", err.Error())
			}
		}
	} else {
		o.logger.Info("cycle complete", fields...)
	}

	if o.feedback != nil {
		o.feedback.Outcome(outcome)
	}
	o.emit(ownerEvent{outcome: outcome})
}

func (o *Owner) emit(ev ownerEvent) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("owner event dropped; run loop is behind")
	}
}

// RunOnce waits for the current cycle to finish. A failed outcome keeps the owner
// alive for retryWindow so `retry` can reach it; the window restarts on every new
// outcome and never expires mid-recording.
func (o *Owner) RunOnce(ctx context.Context, retryWindow time.Duration) (binding.Outcome, bool, error) {
	var (
		last  binding.Outcome
		timer *time.Timer
		tick  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return last, false, ctx.Err()
		case ev := <-o.events:
			if ev.cancelled {
				return binding.Outcome{}, true, nil
			}
			last = ev.outcome
			if last.Err == nil || last.Blob == nil || retryWindow <= 0 {
				return last, false, nil
			}
			if timer == nil {
				timer = time.NewTimer(retryWindow)
				tick = timer.C
			} else {
				timer.Reset(retryWindow)
			}
		case <-tick:
			if o.runtime.State().Active() {
				timer.Reset(retryWindow)
				continue
			}
			return last, false, nil
		}
	}
}

// Serve drains events until ctx ends.
func (o *Owner) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.events:
		}
	}
}

func (o *Owner) response(message string) ipc.Response {
	state := o.runtime.State()
	return ipc.Response{
		OK:        true,
		State:     string(state),
		Recording: state == fsm.StateRecording,
		Message:   message,
	}
}

func (o *Owner) failure(err error) ipc.Response {
	resp := o.response("")
	resp.OK = false
	resp.Error = err.Error()
	return resp
}
