package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rbright/murmur/internal/blob"
	"github.com/rbright/murmur/internal/version"
)

// FileField is the multipart field carrying the audio payload.
const FileField = "file"

const maxErrorBody = 512

// RemoteConfig configures a Remote strategy.
type RemoteConfig struct {
	Endpoint string
	Token    string
	Model    string
	Language string
	// Timeout bounds the single request attempt; zero means no client-side limit.
	Timeout time.Duration
	// WrapWAV uploads audio/L16 payloads as RIFF/WAVE.
	WrapWAV bool
}

// Remote uploads the blob as one multipart POST and reads {"text": "..."} back.
type Remote struct {
	cfg    RemoteConfig
	client *resty.Client
}

func NewRemote(cfg RemoteConfig) *Remote {
	client := resty.New().
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Remote{cfg: cfg, client: client}
}

// Endpoint returns the configured upload URL.
func (r *Remote) Endpoint() string { return r.cfg.Endpoint }

func (r *Remote) Transcribe(ctx context.Context, b *blob.Blob) (string, error) {
	if strings.TrimSpace(r.cfg.Endpoint) == "" {
		return "", failure(KindTransport, errors.New("remote endpoint is not configured"))
	}

	payload := b
	if r.cfg.WrapWAV {
		payload = blob.WrapWAV(b)
	}

	req := r.client.R().
		SetContext(ctx).
		SetMultipartField(FileField, "recording."+payload.Extension(), payload.MimeType(), bytes.NewReader(payload.Bytes()))

	fields := map[string]string{}
	if r.cfg.Model != "" {
		fields["model"] = r.cfg.Model
	}
	if r.cfg.Language != "" {
		fields["language"] = r.cfg.Language
	}
	if len(fields) > 0 {
		req.SetMultipartFormData(fields)
	}
	if r.cfg.Token != "" {
		req.SetAuthToken(r.cfg.Token)
	}

	resp, err := req.Post(r.cfg.Endpoint)
	if err != nil {
		return "", failure(KindTransport, fmt.Errorf("post %s: %w", r.cfg.Endpoint, err))
	}
	if !resp.IsSuccess() {
		statusErr := &Error{Kind: KindStatus, StatusCode: resp.StatusCode()}
		if body := strings.TrimSpace(string(resp.Body())); body != "" {
			statusErr.Err = errors.New(truncate(body, maxErrorBody))
		}
		return "", statusErr
	}
	return parseTextResponse(resp.Body())
}

func parseTextResponse(body []byte) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", failure(KindProtocol, fmt.Errorf("decode response: %w", err))
	}
	raw, ok := payload["text"]
	if !ok || string(raw) == "null" {
		return "", failure(KindProtocol, errors.New(`response is missing "text"`))
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", failure(KindProtocol, fmt.Errorf(`response "text" is not a string: %w`, err))
	}
	return text, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
