package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antoniostano/meera/internal/chat"
)

func TestHTTPClientSearch(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"content": "likes hiking", "role": "user"},
				{"content": "  ", "role": "assistant"},
				{"content": "suggested a trail", "role": "assistant"},
			},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret-key", time.Second)
	entries, err := client.Search(context.Background(), "alice", "weekend plans", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotPath != "/v1/memories/search" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["query"] != "weekend plans" || gotBody["user_id"] != "alice" || gotBody["top_k"] != float64(3) {
		t.Fatalf("request body = %v", gotBody)
	}

	want := []chat.HistoryEntry{
		{Type: chat.TypeHuman, Content: "likes hiking"},
		{Type: chat.TypeAI, Content: "suggested a trail"},
	}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v, want %+v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestHTTPClientRecord(t *testing.T) {
	var gotPath string
	var gotBody createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret-key", time.Second)
	err := client.Record(context.Background(), "alice", chat.HistoryEntry{
		Type:    chat.TypeAI,
		Content: "suggested a trail",
	}, Metadata{SessionID: "s-1"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if gotPath != "/v1/memories" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.Content != "suggested a trail" || gotBody.UserID != "alice" {
		t.Fatalf("request body = %+v", gotBody)
	}
	if gotBody.Metadata.Role != "assistant" {
		t.Fatalf("metadata role = %q, want derived from entry type", gotBody.Metadata.Role)
	}
	if gotBody.Metadata.Timestamp.IsZero() {
		t.Fatalf("metadata timestamp not defaulted")
	}
}

func TestHTTPClientSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", time.Second)
	if _, err := client.Search(context.Background(), "alice", "anything", 3); err == nil {
		t.Fatalf("Search() error = nil, want status error")
	}
}

func TestNewClientFallsBackToNoop(t *testing.T) {
	if _, ok := NewClient("", "key", time.Second).(*NoopClient); !ok {
		t.Fatalf("NewClient without base URL did not return NoopClient")
	}
	if _, ok := NewClient("https://api.mem0.ai", "", time.Second).(*NoopClient); !ok {
		t.Fatalf("NewClient without API key did not return NoopClient")
	}
	if _, ok := NewClient("https://api.mem0.ai", "key", time.Second).(*HTTPClient); !ok {
		t.Fatalf("NewClient with full config did not return HTTPClient")
	}
}
