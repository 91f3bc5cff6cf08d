// Package transcribe turns a finalized audio blob into text through a local function,
// a local process, or a remote HTTP endpoint.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/murmur/internal/blob"
)

// ErrTranscriptionFailed is matched by every error a Strategy returns.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Kind classifies where a transcription failed.
type Kind string

const (
	KindLocal     Kind = "local"
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindProtocol  Kind = "protocol"
)

// Error carries the failure cause. errors.Is(err, ErrTranscriptionFailed) holds for all values.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s error (HTTP %d): %v", ErrTranscriptionFailed, e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s error (HTTP %d)", ErrTranscriptionFailed, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", ErrTranscriptionFailed, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s error", ErrTranscriptionFailed, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTranscriptionFailed }

func failure(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Strategy maps one blob to text. It must not retain the blob after returning.
type Strategy interface {
	Transcribe(ctx context.Context, b *blob.Blob) (string, error)
}

// Func adapts a caller-supplied function into a local Strategy.
type Func func(ctx context.Context, b *blob.Blob) (string, error)

func (f Func) Transcribe(ctx context.Context, b *blob.Blob) (string, error) {
	text, err := f(ctx, b)
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return "", typed
		}
		return "", failure(KindLocal, err)
	}
	return text, nil
}
