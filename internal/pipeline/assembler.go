package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/memory"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/session"
)

// Assembler builds the bounded, ordered context handed to the model:
// semantically retrieved long-term memories first, then the session history
// in chronological order. Retrieved memories lead so the model treats them
// as prior knowledge rather than the most recent exchange.
type Assembler struct {
	sessions      *session.Manager
	memory        memory.Client
	metrics       *observability.Metrics
	topK          int
	historyWindow int
	searchTimeout time.Duration
}

func NewAssembler(sessions *session.Manager, mem memory.Client, metrics *observability.Metrics, topK, historyWindow int, searchTimeout time.Duration) *Assembler {
	if topK <= 0 {
		topK = 3
	}
	if searchTimeout <= 0 {
		searchTimeout = 5 * time.Second
	}
	return &Assembler{
		sessions:      sessions,
		memory:        mem,
		metrics:       metrics,
		topK:          topK,
		historyWindow: historyWindow,
		searchTimeout: searchTimeout,
	}
}

// Assemble produces a fresh context slice for one utterance. It never
// mutates session state, and behaves identically whether the semantic
// memory capability is live or a no-op. A failed search contributes an
// empty result plus a warning; it never interrupts the turn.
func (a *Assembler) Assemble(ctx context.Context, username, utterance string) ([]chat.HistoryEntry, []string) {
	var warnings []string

	searchCtx, cancel := context.WithTimeout(ctx, a.searchTimeout)
	recalled, err := a.memory.Search(searchCtx, username, utterance, a.topK)
	cancel()
	if err != nil {
		a.metrics.MemoryEvents.WithLabelValues("search_failed").Inc()
		warnings = append(warnings, fmt.Sprintf("semantic memory unavailable: %v", err))
		recalled = nil
	} else if len(recalled) > 0 {
		a.metrics.MemoryEvents.WithLabelValues("search_hit").Inc()
	}

	history := a.sessions.Conversation(ctx, username).HistoryLog()
	if a.historyWindow > 0 && len(history) > a.historyWindow {
		history = history[len(history)-a.historyWindow:]
	}

	assembled := make([]chat.HistoryEntry, 0, len(recalled)+len(history))
	assembled = append(assembled, recalled...)
	assembled = append(assembled, history...)
	return assembled, warnings
}
