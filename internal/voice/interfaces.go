package voice

import "context"

// Audio is one synthesized utterance.
type Audio struct {
	Data   []byte
	Format string
}

// Provider turns assistant text into speech. Synthesis is a presentation
// concern: failures are surfaced as warnings and never change the outcome of
// a chat turn.
type Provider interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}
