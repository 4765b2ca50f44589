package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider calls an external text-to-speech service. The service is a
// black box: text and speaker in, encoded audio out.
type HTTPProvider struct {
	url     string
	speaker string
	client  *http.Client
}

type HTTPConfig struct {
	URL     string
	Speaker string
	Timeout time.Duration
}

func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		url:     strings.TrimSpace(cfg.URL),
		speaker: strings.TrimSpace(cfg.Speaker),
		client:  &http.Client{Timeout: timeout},
	}
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

func (p *HTTPProvider) Synthesize(ctx context.Context, text string) (Audio, error) {
	payload, err := json.Marshal(synthesizeRequest{Text: text, Speaker: p.speaker})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Audio{}, fmt.Errorf("tts status %d: %s", res.StatusCode, string(detail))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("tts returned no audio")
	}
	return Audio{Data: data, Format: formatFromContentType(res.Header.Get("Content-Type"))}, nil
}

func formatFromContentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "wav"
	}
	if f, ok := strings.CutPrefix(mediaType, "audio/"); ok && f != "" {
		return f
	}
	return "wav"
}
