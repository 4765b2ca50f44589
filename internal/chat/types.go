package chat

import "time"

// Role is the UI-facing speaker vocabulary.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EntryType is the model-facing speaker vocabulary.
type EntryType string

const (
	TypeHuman EntryType = "human"
	TypeAI    EntryType = "ai"
)

// Turn is one persisted message in a conversation. Immutable once created.
type Turn struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayEntry is the UI-facing projection of a Turn.
type DisplayEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is the model-facing projection of a Turn. The model
// collaborator speaks human/ai rather than user/assistant, so both
// projections must be derivable from the same Turn without loss.
type HistoryEntry struct {
	Type    EntryType `json:"type"`
	Content string    `json:"content"`
}

func (t Turn) Display() DisplayEntry {
	return DisplayEntry{Role: t.Role, Content: t.Content}
}

func (t Turn) History() HistoryEntry {
	return HistoryEntry{Type: TypeForRole(t.Role), Content: t.Content}
}

// TypeForRole maps the UI role vocabulary onto the model vocabulary.
func TypeForRole(r Role) EntryType {
	if r == RoleAssistant {
		return TypeAI
	}
	return TypeHuman
}

// RoleForType is the inverse of TypeForRole.
func RoleForType(t EntryType) Role {
	if t == TypeAI {
		return RoleAssistant
	}
	return RoleUser
}
