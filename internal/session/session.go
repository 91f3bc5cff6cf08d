// Package session coordinates one capture cycle: device ownership, chunk accumulation,
// delegated control, and the single completion hand-off.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rbright/murmur/internal/audio"
	"github.com/rbright/murmur/internal/blob"
	"github.com/rbright/murmur/internal/fsm"
)

var (
	// ErrAlreadyRecording marks a duplicate start. It is logged, never returned.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording marks a stop with nothing to stop. It is logged, never returned.
	ErrNotRecording = errors.New("not recording")
	// ErrNeedsReset indicates Start was called on a completed or failed cycle.
	ErrNeedsReset = errors.New("session finished; reset before starting again")
	// ErrClosed indicates the session was torn down.
	ErrClosed = errors.New("session closed")
	// ErrNoProvider indicates native control was selected without a capture provider.
	ErrNoProvider = errors.New("no capture provider configured")
)

// Options configures one Session.
type Options struct {
	// MimeHint overrides the container tag reported by the device at finalize time.
	MimeHint string
}

// control is the start/stop ownership variant chosen once per cycle.
type control struct {
	delegated bool
	stop      ControlFunc
}

func (c control) String() string {
	if c.delegated {
		return "delegated"
	}
	return "native"
}

// Session owns at most one capture device and produces at most one blob per cycle.
type Session struct {
	logger   *slog.Logger
	provider audio.Provider
	mimeHint string

	mu            sync.Mutex
	state         fsm.State
	cycle         uint64
	id            string
	control       control
	device        audio.Device
	buffer        *blob.Buffer
	result        *blob.Blob
	err           error
	cancelAcquire context.CancelFunc
	closed        bool

	startOverride ControlFunc
	stopOverride  ControlFunc
	onComplete    func(*blob.Blob)
	observer      func(fsm.State)
}

// New constructs an idle session. A nil provider is valid when a start override
// will always be registered.
func New(logger *slog.Logger, provider audio.Provider, opts Options) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		logger:   logger,
		provider: provider,
		mimeHint: opts.MimeHint,
		state:    fsm.StateIdle,
	}
}

// SetStartOverride registers the external start function used from the next Start on.
func (s *Session) SetStartOverride(fn ControlFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startOverride = fn
}

// SetStopOverride registers the external stop function used from the next Start on.
func (s *Session) SetStopOverride(fn ControlFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopOverride = fn
}

// SetOnComplete registers the single completion consumer, replacing any previous one.
func (s *Session) SetOnComplete(fn func(*blob.Blob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// SetObserver registers a callback fired after every state change, outside the lock.
func (s *Session) SetObserver(fn func(fsm.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Blob returns the finalized blob of the current cycle, or nil.
func (s *Session) Blob() *blob.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the failure that moved the session to failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ID returns the identifier of the current or most recent cycle.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Delegated reports whether the current cycle is owned by the external overrides.
func (s *Session) Delegated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control.delegated
}

// Start begins a cycle. Duplicate starts are absorbed with a warning. Acquisition
// and override failures move the session to failed and are returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch {
	case s.state.Active():
		state, id := s.state, s.id
		s.mu.Unlock()
		s.logger.Warn("start ignored", "session_id", id, "state", string(state), "reason", ErrAlreadyRecording.Error())
		return nil
	case s.state.Terminal():
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNeedsReset, state)
	}

	s.cycle++
	s.id = uuid.NewString()
	s.result = nil
	s.err = nil
	s.buffer = blob.NewBuffer()

	if start := s.startOverride; start != nil {
		return s.startDelegated(ctx, start)
	}
	return s.startNative(ctx)
}

// startDelegated runs with s.mu held and releases it.
func (s *Session) startDelegated(ctx context.Context, start ControlFunc) error {
	s.control = control{delegated: true, stop: s.stopOverride}
	cycle, id := s.cycle, s.id
	if err := s.transitionLocked(fsm.EventDelegate); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.notify()

	s.logger.Info("recording delegated to start override", "session_id", id)
	if err := start(ctx); err != nil {
		err = fmt.Errorf("start override: %w", err)
		s.failCycle(cycle, err)
		return err
	}
	return nil
}

// startNative runs with s.mu held and releases it.
func (s *Session) startNative(ctx context.Context) error {
	s.control = control{}
	if s.provider == nil {
		s.err = ErrNoProvider
		_ = s.transitionLocked(fsm.EventStart)
		_ = s.transitionLocked(fsm.EventFail)
		s.mu.Unlock()
		s.notify()
		return ErrNoProvider
	}
	if err := s.transitionLocked(fsm.EventStart); err != nil {
		s.mu.Unlock()
		return err
	}
	acquireCtx, cancel := context.WithCancel(ctx)
	s.cancelAcquire = cancel
	cycle, id, buffer := s.cycle, s.id, s.buffer
	s.mu.Unlock()
	s.notify()
	defer cancel()

	s.logger.Debug("acquiring capture device", "session_id", id)
	device, err := s.provider.Acquire(acquireCtx)

	if !s.stillAcquiring(cycle) {
		if device != nil {
			s.logger.Info("capture device granted after stop; releasing", "session_id", id, "device", device.Name())
			s.releaseDevice(id, device)
		}
		return nil
	}
	if err != nil {
		s.failCycle(cycle, err)
		return err
	}

	if err := device.Begin(func(chunk []byte) { buffer.Append(chunk) }); err != nil {
		s.releaseDevice(id, device)
		err = fmt.Errorf("begin capture on %s: %w", device.Name(), err)
		s.failCycle(cycle, err)
		return err
	}

	s.mu.Lock()
	if s.cycle != cycle || s.state != fsm.StateAcquiring {
		s.mu.Unlock()
		s.logger.Info("capture stopped while starting; releasing", "session_id", id, "device", device.Name())
		if err := device.End(context.Background()); err != nil {
			s.logger.Warn("end capture after stop failed", "session_id", id, "error", err.Error())
		}
		s.releaseDevice(id, device)
		return nil
	}
	s.cancelAcquire = nil
	s.device = device
	_ = s.transitionLocked(fsm.EventGranted)
	s.mu.Unlock()
	s.notify()

	s.logger.Info("recording started", "session_id", id, "device", device.Name(), "mime", device.MimeType())
	return nil
}

func (s *Session) stillAcquiring(cycle uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle == cycle && s.state == fsm.StateAcquiring
}

// Stop ends the current cycle. Stopping during acquisition cancels it and returns
// to idle. Stopping with nothing to stop is absorbed with a warning.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case fsm.StateAcquiring:
		s.abandonAcquireLocked()
		id := s.id
		s.mu.Unlock()
		s.notify()
		s.logger.Info("acquisition cancelled by stop", "session_id", id)
		return nil
	case fsm.StateRecording:
	default:
		state, id := s.state, s.id
		s.mu.Unlock()
		s.logger.Warn("stop ignored", "session_id", id, "state", string(state), "reason", ErrNotRecording.Error())
		return nil
	}

	if err := s.transitionLocked(fsm.EventStop); err != nil {
		s.mu.Unlock()
		return err
	}
	ctl, device, buffer := s.control, s.device, s.buffer
	cycle, id := s.cycle, s.id
	s.device = nil
	s.mu.Unlock()
	s.notify()

	if ctl.delegated {
		return s.finishDelegated(ctx, cycle, id, ctl)
	}
	return s.finishNative(ctx, cycle, id, device, buffer)
}

func (s *Session) finishDelegated(ctx context.Context, cycle uint64, id string, ctl control) error {
	if ctl.stop != nil {
		if err := ctl.stop(ctx); err != nil {
			err = fmt.Errorf("stop override: %w", err)
			s.failCycle(cycle, err)
			return err
		}
	}

	s.mu.Lock()
	if s.cycle != cycle || s.state != fsm.StateFinalizing {
		s.mu.Unlock()
		return nil
	}
	_ = s.transitionLocked(fsm.EventFinished)
	onComplete := s.onComplete
	s.mu.Unlock()
	s.notify()

	s.logger.Info("delegated recording finished", "session_id", id)
	if onComplete != nil {
		onComplete(nil)
	}
	return nil
}

func (s *Session) finishNative(ctx context.Context, cycle uint64, id string, device audio.Device, buffer *blob.Buffer) error {
	endErr := device.End(ctx)
	s.releaseDevice(id, device)
	if endErr != nil {
		err := fmt.Errorf("end capture on %s: %w", device.Name(), endErr)
		s.failCycle(cycle, err)
		return err
	}

	mimeHint := s.mimeHint
	if mimeHint == "" {
		mimeHint = device.MimeType()
	}
	fragments := buffer.Fragments()
	result := buffer.Finalize(mimeHint)

	s.mu.Lock()
	if s.cycle != cycle || s.state != fsm.StateFinalizing {
		s.mu.Unlock()
		return nil
	}
	s.result = result
	_ = s.transitionLocked(fsm.EventFinished)
	onComplete := s.onComplete
	s.mu.Unlock()
	s.notify()

	s.logger.Info("recording finalized",
		"session_id", id,
		"device", device.Name(),
		"bytes", result.Len(),
		"fragments", fragments,
		"mime", result.MimeType(),
	)
	if onComplete != nil {
		onComplete(result)
	}
	return nil
}

// Cancel abandons the current cycle without producing a blob or firing onComplete.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case fsm.StateAcquiring:
		s.abandonAcquireLocked()
		s.mu.Unlock()
		s.notify()
		return nil
	case fsm.StateRecording:
	default:
		state, id := s.state, s.id
		s.mu.Unlock()
		s.logger.Warn("cancel ignored", "session_id", id, "state", string(state), "reason", ErrNotRecording.Error())
		return nil
	}

	ctl, device, id := s.control, s.device, s.id
	s.device = nil
	_ = s.transitionLocked(fsm.EventAbort)
	s.mu.Unlock()
	s.notify()

	s.logger.Info("recording cancelled", "session_id", id, "control", ctl.String())
	if ctl.delegated {
		if ctl.stop == nil {
			return nil
		}
		if err := ctl.stop(ctx); err != nil {
			return fmt.Errorf("stop override: %w", err)
		}
		return nil
	}
	if err := device.End(ctx); err != nil {
		s.logger.Warn("end capture on cancel failed", "session_id", id, "error", err.Error())
	}
	s.releaseDevice(id, device)
	return nil
}

// Reset returns a completed or failed session to idle so it can be reused.
func (s *Session) Reset() error {
	s.mu.Lock()
	if err := s.transitionLocked(fsm.EventReset); err != nil {
		s.mu.Unlock()
		return err
	}
	s.result = nil
	s.err = nil
	s.buffer = nil
	s.control = control{}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Close cancels any active cycle and rejects further starts.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Cancel(ctx)
}

// abandonAcquireLocked cancels a pending Acquire; the acquiring goroutine releases
// whatever device it still receives.
func (s *Session) abandonAcquireLocked() {
	if s.cancelAcquire != nil {
		s.cancelAcquire()
		s.cancelAcquire = nil
	}
	_ = s.transitionLocked(fsm.EventCancel)
}

func (s *Session) failCycle(cycle uint64, err error) {
	s.mu.Lock()
	if s.cycle != cycle || s.state.Terminal() || s.state == fsm.StateIdle {
		s.mu.Unlock()
		return
	}
	s.cancelAcquire = nil
	s.err = err
	id := s.id
	_ = s.transitionLocked(fsm.EventFail)
	s.mu.Unlock()
	s.notify()

	s.logger.Error("capture session failed", "session_id", id, "error", err.Error())
}

func (s *Session) releaseDevice(id string, device audio.Device) {
	if err := device.Release(); err != nil {
		s.logger.Warn("release capture device failed", "session_id", id, "device", device.Name(), "error", err.Error())
	}
}

func (s *Session) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// notify hands the latest state to the observer. Observers must read State rather
// than assume delivery order matches transition order.
func (s *Session) notify() {
	s.mu.Lock()
	observer, state := s.observer, s.state
	s.mu.Unlock()
	if observer != nil {
		observer(state)
	}
}
