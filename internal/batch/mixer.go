package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
	"github.com/crowdcanvas/crowdcanvas/internal/gemini"
)

// Mixer collapses a batch's messages into one short artistic text through
// the text model. Content strategy lives in the provider prompt; the mixer
// orchestrates the call, bounds it with a timeout, and enforces the length
// cap on the result.
type Mixer struct {
	logger  *slog.Logger
	ai      gemini.Client
	maxLen  int
	timeout time.Duration
}

// NewMixer creates a mixer producing texts of at most maxLen characters.
func NewMixer(logger *slog.Logger, ai gemini.Client, maxLen int, timeout time.Duration) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{
		logger:  logger.With("component", "mixer"),
		ai:      ai,
		maxLen:  maxLen,
		timeout: timeout,
	}
}

// Mix produces the mixed text for the given batch messages. Returns a
// MixError when the batch is empty or the provider call fails; both are
// terminal for the batch.
func (m *Mixer) Mix(ctx context.Context, messages []database.Message) (string, error) {
	if len(messages) == 0 {
		return "", &MixError{Err: fmt.Errorf("batch contains no messages")}
	}

	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		texts = append(texts, msg.Content)
	}

	// A single message already under the cap needs no model call.
	if len(texts) == 1 && len([]rune(texts[0])) <= m.maxLen {
		m.logger.DebugContext(ctx, "Single short message, skipping mix call", "length", len(texts[0]))
		return texts[0], nil
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	mixed, err := m.ai.MixTexts(callCtx, texts, m.maxLen)
	if err != nil {
		return "", &MixError{Err: err}
	}

	mixed = truncateRunes(mixed, m.maxLen)
	m.logger.InfoContext(ctx, "Mixed text created", "length", len([]rune(mixed)), "message_count", len(messages))
	return mixed, nil
}

// truncateRunes hard-caps s at maxLen runes, ellipsizing when it was longer.
// The model is asked for the cap but does not always respect it.
func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
