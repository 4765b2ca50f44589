package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/meera/internal/brain"
	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/memory"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/reliability"
	"github.com/antoniostano/meera/internal/session"
	"github.com/antoniostano/meera/internal/store"
)

// Outcome is the terminal classification of one submitted turn.
type Outcome string

const (
	// OutcomeCompleted: the model replied; both messages were recorded.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed: the model call failed; the display log carries a
	// diagnostic entry and nothing was persisted.
	OutcomeFailed Outcome = "failed"
	// OutcomeDegraded: no model adapter is configured; the utterance stays in
	// the display log with a warning entry.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeRejected: the utterance was empty; no state changed.
	OutcomeRejected Outcome = "rejected"
)

const degradedNotice = "Meera's model endpoint is not configured, so I can't reply right now. Your message is kept in the transcript."

// Pipeline drives one chat turn end to end: record the user utterance,
// assemble context, invoke the model, then update session state, durable
// storage and semantic memory. Every failure is converted at this boundary
// into a classified Result; no error escapes Submit.
type Pipeline struct {
	sessions  *session.Manager
	assembler *Assembler
	adapter   brain.Adapter
	backend   store.Store
	memory    memory.Client
	metrics   *observability.Metrics

	modelTimeout  time.Duration
	recordTimeout time.Duration

	mu      sync.Mutex
	perUser map[string]*sync.Mutex
}

// Result is what the UI collaborator gets back for one submitted turn.
type Result struct {
	TurnID    string
	Outcome   Outcome
	Reply     chat.DisplayEntry
	Retryable bool
	Warnings  []string
}

func New(
	sessions *session.Manager,
	assembler *Assembler,
	adapter brain.Adapter,
	backend store.Store,
	mem memory.Client,
	metrics *observability.Metrics,
	modelTimeout, recordTimeout time.Duration,
) *Pipeline {
	if modelTimeout <= 0 {
		modelTimeout = 60 * time.Second
	}
	if recordTimeout <= 0 {
		recordTimeout = 5 * time.Second
	}
	return &Pipeline{
		sessions:      sessions,
		assembler:     assembler,
		adapter:       adapter,
		backend:       backend,
		memory:        mem,
		metrics:       metrics,
		modelTimeout:  modelTimeout,
		recordTimeout: recordTimeout,
		perUser:       make(map[string]*sync.Mutex),
	}
}

// Submit runs the turn state machine to completion for one utterance.
// Exactly one turn is in flight per username at a time; turns for different
// usernames proceed independently.
func (p *Pipeline) Submit(ctx context.Context, username, utterance string) Result {
	turnID := uuid.NewString()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		p.metrics.TurnOutcomes.WithLabelValues(string(OutcomeRejected)).Inc()
		return Result{TurnID: turnID, Outcome: OutcomeRejected}
	}

	lock := p.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	conv := p.sessions.Conversation(ctx, username)

	// A user turn always lands in the display log, even if the model call
	// later fails.
	conv.AppendUserTurn(utterance)

	if p.adapter == nil {
		entry := conv.AppendErrorDisplay(degradedNotice)
		p.metrics.TurnOutcomes.WithLabelValues(string(OutcomeDegraded)).Inc()
		return Result{
			TurnID:   turnID,
			Outcome:  OutcomeDegraded,
			Reply:    entry,
			Warnings: []string{"model collaborator unavailable"},
		}
	}

	turnStart := time.Now()
	assembleStart := time.Now()
	assembled, warnings := p.assembler.Assemble(ctx, username, utterance)
	p.metrics.ObserveTurnStage(observability.StageAssemble, time.Since(assembleStart))

	modelCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	start := time.Now()
	resp, err := p.adapter.Complete(modelCtx, brain.Request{
		UserID:      username,
		SessionID:   conv.SessionID(),
		TurnID:      turnID,
		Question:    utterance,
		ChatHistory: assembled,
	})
	cancel()
	p.metrics.ObserveModelLatency(time.Since(start))

	if err != nil {
		// A failed invocation is terminal for the turn: diagnostic goes to the
		// display log only, nothing reaches storage or semantic memory.
		entry := conv.AppendErrorDisplay(fmt.Sprintf("I ran into a problem answering that: %v", err))
		p.metrics.TurnOutcomes.WithLabelValues(string(OutcomeFailed)).Inc()
		return Result{
			TurnID:    turnID,
			Outcome:   OutcomeFailed,
			Reply:     entry,
			Retryable: isRetryable(err),
			Warnings:  warnings,
		}
	}

	userTurn, assistantTurn := conv.AppendAssistantTurn(resp.Text)

	if p.backend != nil {
		persistStart := time.Now()
		if err := p.backend.Append(ctx, username, userTurn, assistantTurn); err != nil {
			p.metrics.StorageEvents.WithLabelValues("append_failed").Inc()
			warnings = append(warnings, fmt.Sprintf("could not persist turn: %v", err))
		} else {
			p.metrics.StorageEvents.WithLabelValues("append_ok").Inc()
		}
		p.metrics.ObserveTurnStage(observability.StagePersist, time.Since(persistStart))
	}

	recordStart := time.Now()
	for _, t := range []chat.Turn{userTurn, assistantTurn} {
		recordCtx, cancel := context.WithTimeout(ctx, p.recordTimeout)
		err := p.memory.Record(recordCtx, username, t.History(), memory.Metadata{
			Role:      string(t.Role),
			Timestamp: t.Timestamp,
			SessionID: conv.SessionID(),
		})
		cancel()
		if err != nil {
			p.metrics.MemoryEvents.WithLabelValues("record_failed").Inc()
			warnings = append(warnings, fmt.Sprintf("could not record memory: %v", err))
		}
	}
	p.metrics.ObserveTurnStage(observability.StageMemoryRecord, time.Since(recordStart))
	p.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(turnStart))

	p.metrics.TurnOutcomes.WithLabelValues(string(OutcomeCompleted)).Inc()
	return Result{
		TurnID:   turnID,
		Outcome:  OutcomeCompleted,
		Reply:    assistantTurn.Display(),
		Warnings: warnings,
	}
}

// DisplayLog exposes the UI-facing transcript for a username.
func (p *Pipeline) DisplayLog(ctx context.Context, username string) []chat.DisplayEntry {
	return p.sessions.Conversation(ctx, username).DisplayLog()
}

func (p *Pipeline) userLock(username string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.perUser[username]
	if !ok {
		l = &sync.Mutex{}
		p.perUser[username] = l
	}
	return l
}

func isRetryable(err error) bool {
	var statusErr *brain.StatusError
	if errors.As(err, &statusErr) {
		return reliability.IsRetryableHTTPStatus(statusErr.Code)
	}
	return errors.Is(err, context.DeadlineExceeded)
}
