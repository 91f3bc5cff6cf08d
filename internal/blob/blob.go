// Package blob accumulates captured audio fragments into one finalized audio object.
package blob

import (
	"mime"
	"strings"
	"sync"
)

// DefaultMimeType is used when Finalize receives an empty hint.
const DefaultMimeType = "audio/webm"

// Blob is one finalized, immutable audio payload.
type Blob struct {
	data     []byte
	mimeType string
}

// New builds a blob from an already-complete payload.
func New(data []byte, mimeType string) *Blob {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DefaultMimeType
	}
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{data: out, mimeType: mimeType}
}

// Bytes returns the payload. Callers must not modify it.
func (b *Blob) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the payload size in bytes.
func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// MimeType returns the container tag recorded at finalize time.
func (b *Blob) MimeType() string {
	if b == nil {
		return ""
	}
	return b.mimeType
}

// Extension maps the blob media type to a filename extension without the dot.
func (b *Blob) Extension() string {
	mediaType, _, err := mime.ParseMediaType(b.MimeType())
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(b.MimeType()))
	}
	switch mediaType {
	case "audio/webm":
		return "webm"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/l16":
		return "pcm"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	default:
		return "bin"
	}
}

// Buffer collects fragments in arrival order until it is finalized.
type Buffer struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
	final     *Blob
}

// NewBuffer returns an empty fragment buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append stores a copy of fragment. Zero-length fragments and fragments arriving
// after Finalize are dropped; the return value reports whether fragment was kept.
func (b *Buffer) Append(fragment []byte) bool {
	if len(fragment) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final != nil {
		return false
	}

	chunk := make([]byte, len(fragment))
	copy(chunk, fragment)
	b.fragments = append(b.fragments, chunk)
	b.size += len(chunk)
	return true
}

// Len reports the total bytes stored so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Fragments reports how many fragments have been stored.
func (b *Buffer) Fragments() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Finalize concatenates all fragments into one blob tagged with mimeHint.
// Only the first call concatenates; later calls return the same *Blob.
func (b *Buffer) Finalize(mimeHint string) *Blob {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.final != nil {
		return b.final
	}

	if strings.TrimSpace(mimeHint) == "" {
		mimeHint = DefaultMimeType
	}

	data := make([]byte, 0, b.size)
	for _, fragment := range b.fragments {
		data = append(data, fragment...)
	}
	b.fragments = nil
	b.final = &Blob{data: data, mimeType: mimeHint}
	return b.final
}
