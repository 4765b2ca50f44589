package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/meera/internal/chat"
)

// HTTPClient talks to a mem0-style memory REST service.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	TopK   int    `json:"top_k"`
}

type searchResult struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type createRequest struct {
	Content  string   `json:"content"`
	UserID   string   `json:"user_id"`
	Metadata Metadata `json:"metadata"`
}

func (c *HTTPClient) Search(ctx context.Context, userID, query string, topK int) ([]chat.HistoryEntry, error) {
	if topK <= 0 {
		topK = 3
	}
	var res searchResponse
	err := c.post(ctx, "/v1/memories/search", searchRequest{
		Query:  query,
		UserID: userID,
		TopK:   topK,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	entries := make([]chat.HistoryEntry, 0, len(res.Results))
	for _, r := range res.Results {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		entries = append(entries, chat.HistoryEntry{
			Type:    chat.TypeForRole(chat.Role(strings.TrimSpace(r.Role))),
			Content: content,
		})
	}
	return entries, nil
}

func (c *HTTPClient) Record(ctx context.Context, userID string, entry chat.HistoryEntry, meta Metadata) error {
	if meta.Role == "" {
		meta.Role = string(chat.RoleForType(entry.Type))
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	err := c.post(ctx, "/v1/memories", createRequest{
		Content:  entry.Content,
		UserID:   userID,
		Metadata: meta,
	}, nil)
	if err != nil {
		return fmt.Errorf("memory record: %w", err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("memory service status %d: %s", res.StatusCode, string(detail))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
