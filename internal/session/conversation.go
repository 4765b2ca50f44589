package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/meera/internal/chat"
)

// Conversation owns the live per-user transcript state: the UI-facing
// display log and the model-facing history log, plus the next turn sequence
// number.
//
// The two logs stay in lockstep for completed turns only. A freshly
// submitted user utterance lands in the display log immediately; its history
// projection is withheld until the assistant reply arrives, so a turn whose
// model call fails never contaminates the model-facing history or durable
// storage. Error placeholders land in the display log only.
type Conversation struct {
	mu       sync.Mutex
	id       string
	username string
	nextSeq  int
	display  []chat.DisplayEntry
	history  []chat.HistoryEntry

	pendingUser  string
	pendingSince time.Time
}

func newConversation(username string, turns []chat.Turn) *Conversation {
	c := &Conversation{id: uuid.NewString(), username: username}
	for _, t := range turns {
		c.display = append(c.display, t.Display())
		c.history = append(c.history, t.History())
		if t.Seq >= c.nextSeq {
			c.nextSeq = t.Seq + 1
		}
	}
	return c
}

func (c *Conversation) Username() string { return c.username }

// SessionID identifies this hydration of the conversation; it changes when
// the in-memory state is reset and rebuilt.
func (c *Conversation) SessionID() string { return c.id }

// AppendUserTurn records a new user utterance in the display log and marks
// it pending. It reaches the history log only when AppendAssistantTurn
// completes the exchange.
func (c *Conversation) AppendUserTurn(content string) chat.DisplayEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := chat.DisplayEntry{Role: chat.RoleUser, Content: content}
	c.display = append(c.display, entry)
	c.pendingUser = content
	c.pendingSince = time.Now().UTC()
	return entry
}

// AppendAssistantTurn completes the pending exchange: the assistant reply
// joins the display log, and both messages join the history log. The
// returned turns carry the sequence numbers and timestamps to persist.
func (c *Conversation) AppendAssistantTurn(content string) (userTurn, assistantTurn chat.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	userTurn = chat.Turn{
		Seq:       c.nextSeq,
		Role:      chat.RoleUser,
		Content:   c.pendingUser,
		Timestamp: c.pendingSince,
	}
	if userTurn.Timestamp.IsZero() {
		userTurn.Timestamp = now
	}
	assistantTurn = chat.Turn{
		Seq:       c.nextSeq + 1,
		Role:      chat.RoleAssistant,
		Content:   content,
		Timestamp: now,
	}
	c.nextSeq += 2
	c.pendingUser = ""

	c.display = append(c.display, assistantTurn.Display())
	c.history = append(c.history, userTurn.History(), assistantTurn.History())
	return userTurn, assistantTurn
}

// AppendErrorDisplay abandons the pending exchange and records an
// assistant-styled diagnostic in the display log only. Nothing reaches the
// history log: persisted and model-visible history reflect only causally
// complete exchanges.
func (c *Conversation) AppendErrorDisplay(content string) chat.DisplayEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingUser = ""
	entry := chat.DisplayEntry{Role: chat.RoleAssistant, Content: content}
	c.display = append(c.display, entry)
	return entry
}

// DisplayLog returns a copy of the UI-facing transcript.
func (c *Conversation) DisplayLog() []chat.DisplayEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.DisplayEntry, len(c.display))
	copy(out, c.display)
	return out
}

// HistoryLog returns a copy of the model-facing transcript.
func (c *Conversation) HistoryLog() []chat.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Lens reports the display and history log lengths together.
func (c *Conversation) Lens() (display, history int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.display), len(c.history)
}
