package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/antoniostano/meera/internal/chat"
)

// FileStore keeps one JSON document per user. Every append rewrites the
// whole document through a temp file and an atomic rename, so readers never
// observe a partially written turn.
type FileStore struct {
	dir string

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// userDocument is the on-disk encoding: parallel display and model-facing
// transcripts snapshotted from the same turn sequence.
type userDocument struct {
	MessagesDisplay  []chat.DisplayEntry `json:"messages_display"`
	ChatHistoryStore []chat.HistoryEntry `json:"chat_history_store"`
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir, users: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) Load(_ context.Context, username string) ([]chat.Turn, error) {
	s.userLock(username).Lock()
	defer s.userLock(username).Unlock()

	doc, err := s.readDocument(username)
	if err != nil {
		return nil, err
	}

	turns := make([]chat.Turn, 0, len(doc.ChatHistoryStore))
	for i, entry := range doc.ChatHistoryStore {
		turns = append(turns, chat.Turn{
			Seq:     i,
			Role:    chat.RoleForType(entry.Type),
			Content: entry.Content,
		})
	}
	return turns, nil
}

func (s *FileStore) Append(_ context.Context, username string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.userLock(username).Lock()
	defer s.userLock(username).Unlock()

	doc, err := s.readDocument(username)
	if err != nil {
		return err
	}
	for _, t := range turns {
		doc.MessagesDisplay = append(doc.MessagesDisplay, t.Display())
		doc.ChatHistoryStore = append(doc.ChatHistoryStore, t.History())
	}
	return s.writeDocument(username, doc)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readDocument(username string) (userDocument, error) {
	doc := userDocument{
		MessagesDisplay:  []chat.DisplayEntry{},
		ChatHistoryStore: []chat.HistoryEntry{},
	}
	data, err := os.ReadFile(s.path(username))
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("%w: read %s: %v", ErrStorage, username, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: parse %s: %v", ErrStorage, username, err)
	}
	return doc, nil
}

func (s *FileStore) writeDocument(username string, doc userDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, username, err)
	}

	target := s.path(username)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: temp file for %s: %v", ErrStorage, username, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrStorage, username, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrStorage, username, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrStorage, username, err)
	}
	return nil
}

func (s *FileStore) path(username string) string {
	return filepath.Join(s.dir, sanitizeUsername(username)+".json")
}

func (s *FileStore) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[username]
	if !ok {
		l = &sync.Mutex{}
		s.users[username] = l
	}
	return l
}

// sanitizeUsername encodes a username into a safe filename. Out-of-alphabet
// bytes and leading dots become %XX escapes, so the encoding cannot produce
// path separators or dot-only names. It is injective: '%' itself is always
// escaped, hence usernames that differ in any byte never share a file.
func sanitizeUsername(username string) string {
	if username == "" {
		// Unreachable by escaping: every literal '%' encodes as %25.
		return "%empty"
	}
	var b strings.Builder
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_':
			b.WriteByte(c)
		case c == '.' && i > 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
