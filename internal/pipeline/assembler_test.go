package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/session"
)

func seedConversation(t *testing.T, sessions *session.Manager, username string, exchanges ...[2]string) {
	t.Helper()
	conv := sessions.Conversation(context.Background(), username)
	for _, ex := range exchanges {
		conv.AppendUserTurn(ex[0])
		conv.AppendAssistantTurn(ex[1])
	}
}

func TestAssembleOrdersMemoriesBeforeHistory(t *testing.T) {
	mem := &fakeMemory{results: []chat.HistoryEntry{
		{Type: chat.TypeHuman, Content: "old question"},
		{Type: chat.TypeAI, Content: "old answer"},
	}}
	sessions := session.NewManager(newFakeStore())
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_assemble_%d", time.Now().UnixNano()))
	seedConversation(t, sessions, "alice", [2]string{"hi", "hello"})

	asm := NewAssembler(sessions, mem, metrics, 3, 0, time.Second)
	assembled, warnings := asm.Assemble(context.Background(), "alice", "how are you")
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}

	want := []chat.HistoryEntry{
		{Type: chat.TypeHuman, Content: "old question"},
		{Type: chat.TypeAI, Content: "old answer"},
		{Type: chat.TypeHuman, Content: "hi"},
		{Type: chat.TypeAI, Content: "hello"},
	}
	if len(assembled) != len(want) {
		t.Fatalf("assembled length = %d, want %d: %+v", len(assembled), len(want), assembled)
	}
	for i := range want {
		if assembled[i] != want[i] {
			t.Fatalf("assembled[%d] = %+v, want %+v", i, assembled[i], want[i])
		}
	}
}

func TestAssembleEmptyMemoryMatchesNoop(t *testing.T) {
	sessions := session.NewManager(newFakeStore())
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_noop_%d", time.Now().UnixNano()))
	seedConversation(t, sessions, "alice", [2]string{"hi", "hello"})

	asm := NewAssembler(sessions, &fakeMemory{}, metrics, 3, 0, time.Second)
	assembled, _ := asm.Assemble(context.Background(), "alice", "how are you")
	if len(assembled) != 2 {
		t.Fatalf("assembled length = %d, want history only (2)", len(assembled))
	}
	if assembled[0].Content != "hi" || assembled[1].Content != "hello" {
		t.Fatalf("assembled = %+v", assembled)
	}
}

func TestAssembleSearchFailureYieldsWarning(t *testing.T) {
	mem := &fakeMemory{searchErr: errors.New("connection refused")}
	sessions := session.NewManager(newFakeStore())
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_searchfail_%d", time.Now().UnixNano()))
	seedConversation(t, sessions, "alice", [2]string{"hi", "hello"})

	asm := NewAssembler(sessions, mem, metrics, 3, 0, time.Second)
	assembled, warnings := asm.Assemble(context.Background(), "alice", "how are you")
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one advisory", warnings)
	}
	if len(assembled) != 2 {
		t.Fatalf("assembled length = %d, want history only (2)", len(assembled))
	}
}

func TestAssembleWindowsHistory(t *testing.T) {
	sessions := session.NewManager(newFakeStore())
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_window_%d", time.Now().UnixNano()))
	seedConversation(t, sessions, "alice",
		[2]string{"one", "ack one"},
		[2]string{"two", "ack two"},
		[2]string{"three", "ack three"},
	)

	asm := NewAssembler(sessions, &fakeMemory{}, metrics, 3, 2, time.Second)
	assembled, _ := asm.Assemble(context.Background(), "alice", "four")
	if len(assembled) != 2 {
		t.Fatalf("assembled length = %d, want 2 (windowed)", len(assembled))
	}
	if assembled[0].Content != "three" || assembled[1].Content != "ack three" {
		t.Fatalf("assembled = %+v, want most recent exchange", assembled)
	}
}

func TestAssembleDoesNotMutateSession(t *testing.T) {
	sessions := session.NewManager(newFakeStore())
	metrics := observability.NewMetrics(fmt.Sprintf("meera_test_nomut_%d", time.Now().UnixNano()))
	seedConversation(t, sessions, "alice", [2]string{"hi", "hello"})

	asm := NewAssembler(sessions, &fakeMemory{}, metrics, 3, 0, time.Second)
	assembled, _ := asm.Assemble(context.Background(), "alice", "how are you")
	assembled[0].Content = "scribbled"

	history := sessions.Conversation(context.Background(), "alice").HistoryLog()
	if history[0].Content != "hi" {
		t.Fatalf("session history mutated through assembled slice: %+v", history)
	}
	if display, hist := sessions.Conversation(context.Background(), "alice").Lens(); display != 2 || hist != 2 {
		t.Fatalf("Lens() = %d/%d after Assemble, want 2/2", display, hist)
	}
}
