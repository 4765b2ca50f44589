package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/config"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/pipeline"
	"github.com/antoniostano/meera/internal/protocol"
	"github.com/antoniostano/meera/internal/session"
	"github.com/antoniostano/meera/internal/store"
)

type fakePipeline struct {
	result     pipeline.Result
	transcript []chat.DisplayEntry
	submitted  []string
}

func (f *fakePipeline) Submit(_ context.Context, username, utterance string) pipeline.Result {
	f.submitted = append(f.submitted, username+":"+utterance)
	if strings.TrimSpace(utterance) == "" {
		return pipeline.Result{TurnID: "t-rejected", Outcome: pipeline.OutcomeRejected}
	}
	return f.result
}

func (f *fakePipeline) DisplayLog(context.Context, string) []chat.DisplayEntry {
	return f.transcript
}

type memStore struct{}

func (memStore) Load(context.Context, string) ([]chat.Turn, error) { return nil, nil }
func (memStore) Append(context.Context, string, ...chat.Turn) error { return nil }
func (memStore) Close() error { return nil }

func newTestServer(t *testing.T, pl Pipeline) *Server {
	t.Helper()
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_api_%d", time.Now().UnixNano()))
	var backend store.Store = memStore{}
	return New(config.Config{}, pl, session.NewManager(backend), nil, metrics)
}

func TestHandleChatMessage(t *testing.T) {
	pl := &fakePipeline{result: pipeline.Result{
		TurnID:  "t-1",
		Outcome: pipeline.OutcomeCompleted,
		Reply:   chat.DisplayEntry{Role: chat.RoleAssistant, Content: "hello"},
	}}
	srv := httptest.NewServer(newTestServer(t, pl).Router())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"username": "alice", "text": "hi"})
	res, err := http.Post(srv.URL+"/v1/chat/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/chat/message error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}

	var got chatMessageResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TurnID != "t-1" || got.Outcome != string(pipeline.OutcomeCompleted) || got.Reply.Content != "hello" {
		t.Fatalf("response = %+v", got)
	}
	if len(pl.submitted) != 1 || pl.submitted[0] != "alice:hi" {
		t.Fatalf("submitted = %v", pl.submitted)
	}
}

func TestHandleChatMessageEmptyText(t *testing.T) {
	pl := &fakePipeline{}
	srv := httptest.NewServer(newTestServer(t, pl).Router())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"username": "alice", "text": "   "})
	res, err := http.Post(srv.URL+"/v1/chat/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestHandleChatMessageBadBody(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &fakePipeline{}).Router())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/v1/chat/message", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestHandleTranscript(t *testing.T) {
	pl := &fakePipeline{transcript: []chat.DisplayEntry{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}}
	srv := httptest.NewServer(newTestServer(t, pl).Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/v1/chat/transcript?username=alice")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}

	var got transcriptResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Username != "alice" || len(got.Entries) != 2 {
		t.Fatalf("response = %+v", got)
	}

	res2, err := http.Get(srv.URL + "/v1/chat/transcript")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status without username = %d, want 400", res2.StatusCode)
	}
}

func TestHandleResetSession(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &fakePipeline{}).Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/chat/session?username=alice", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &fakePipeline{}).Router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, res.StatusCode)
		}
	}
}

func TestHandlePerfLatency(t *testing.T) {
	api := newTestServer(t, &fakePipeline{})
	api.metrics.ObserveTurnStage(observability.StageModel, 800*time.Millisecond)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}

	var snap observability.TurnStageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != observability.StageModel {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestChatWSTurnTaking(t *testing.T) {
	pl := &fakePipeline{
		result: pipeline.Result{
			TurnID:  "t-1",
			Outcome: pipeline.OutcomeCompleted,
			Reply:   chat.DisplayEntry{Role: chat.RoleAssistant, Content: "hello"},
		},
		transcript: []chat.DisplayEntry{{Role: chat.RoleUser, Content: "earlier"}},
	}
	srv := httptest.NewServer(newTestServer(t, pl).Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws?username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var snapshot protocol.TranscriptSnapshot
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != protocol.TypeTranscriptSnapshot || len(snapshot.Entries) != 1 {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	if err := conn.WriteJSON(protocol.ClientUtterance{Type: protocol.TypeClientUtterance, Text: "hi"}); err != nil {
		t.Fatalf("write utterance: %v", err)
	}
	var reply protocol.AssistantReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Type != protocol.TypeAssistantReply || reply.Text != "hello" || reply.TurnID != "t-1" {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestChatWSInvalidMessage(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, &fakePipeline{}).Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws?username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var snapshot protocol.TranscriptSnapshot
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcript_snapshot"}`)); err != nil {
		t.Fatalf("write message: %v", err)
	}
	var errorEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errorEvent); err != nil {
		t.Fatalf("read error event: %v", err)
	}
	if errorEvent.Type != protocol.TypeErrorEvent || errorEvent.Code != "invalid_client_message" {
		t.Fatalf("error event = %+v", errorEvent)
	}
}
