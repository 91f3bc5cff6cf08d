package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rbright/murmur/internal/blob"
)

// Command pipes the blob to a local process on stdin and reads the transcript from stdout.
// MURMUR_MIME_TYPE carries the blob container tag.
type Command struct {
	Argv []string
}

func (c Command) Transcribe(ctx context.Context, b *blob.Blob) (string, error) {
	if len(c.Argv) == 0 {
		return "", failure(KindLocal, errors.New("transcription command argv cannot be empty"))
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(b.Bytes())
	cmd.Env = append(cmd.Environ(), "MURMUR_MIME_TYPE="+b.MimeType())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w: %s", c.Argv[0], err, msg)
		} else {
			err = fmt.Errorf("%s: %w", c.Argv[0], err)
		}
		return "", failure(KindLocal, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
