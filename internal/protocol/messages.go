package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/meera/internal/chat"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientUtterance    MessageType = "client_utterance"
	TypeAssistantReply     MessageType = "assistant_reply"
	TypeAssistantAudio     MessageType = "assistant_audio_chunk"
	TypeTranscriptSnapshot MessageType = "transcript_snapshot"
	TypeErrorEvent         MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientUtterance is one user message submitted over the websocket. The
// connection is strictly turn-taking: the client waits for the reply before
// sending the next utterance.
type ClientUtterance struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
	TSMs int64       `json:"ts_ms"`
}

type AssistantReply struct {
	Type     MessageType `json:"type"`
	Username string      `json:"username"`
	TurnID   string      `json:"turn_id"`
	Text     string      `json:"text"`
	Outcome  string      `json:"outcome"`
	Warnings []string    `json:"warnings,omitempty"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	Username    string      `json:"username"`
	TurnID      string      `json:"turn_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type TranscriptSnapshot struct {
	Type     MessageType         `json:"type"`
	Username string              `json:"username"`
	Entries  []chat.DisplayEntry `json:"entries"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Username  string      `json:"username"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientUtterance:
		var msg ClientUtterance
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_utterance")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
