package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/murmur/internal/binding"
	"github.com/rbright/murmur/internal/blob"
	"github.com/rbright/murmur/internal/logging"
)

// Archiver keeps the audio of failed transcriptions for offline debugging.
type Archiver struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver writes under <state dir>/debug.
func NewArchiver(logger *slog.Logger) (*Archiver, error) {
	state, err := logging.StateDir()
	if err != nil {
		return nil, err
	}
	return newArchiver(filepath.Join(state, "debug"), logger), nil
}

func newArchiver(dir string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archiver{dir: dir, logger: logger, now: time.Now}
}

// Dir is the archive directory.
func (a *Archiver) Dir() string { return a.dir }

// Save stores the blob of a failed outcome and returns its path. Outcomes that
// succeeded or carry no audio are skipped with an empty path.
func (a *Archiver) Save(outcome binding.Outcome) (string, error) {
	if outcome.Err == nil || outcome.Blob == nil || outcome.Blob.Len() == 0 {
		return "", nil
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	payload := blob.WrapWAV(outcome.Blob)
	name := fmt.Sprintf("%s-%s.%s", a.now().UTC().Format("20060102T150405Z"), outcome.SessionID, payload.Extension())
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, payload.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	a.logger.Info("archived failed capture", "session_id", outcome.SessionID, "path", path, "bytes", payload.Len())
	return path, nil
}
