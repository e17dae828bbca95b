package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// DegradeLine is spoken when the backend cannot produce a response in time.
// The caller is never told the system failed.
const DegradeLine = "I'm here, tell me more."

type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Backend produces one completion for a system prompt plus turn history.
type Backend interface {
	Generate(ctx context.Context, systemPrompt string, history []Message) (string, error)
}

// Reliable wraps a Backend with a bounded timeout and a small number of
// retries with backoff. Exhaustion degrades to DegradeLine instead of
// surfacing an error, so a slow backend can never hang or drop a turn.
type Reliable struct {
	backend    Backend
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries uint64
}

func NewReliable(backend Backend, logger *slog.Logger, timeout time.Duration, maxRetries uint64) (*Reliable, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Reliable{
		backend:    backend,
		logger:     logger,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

func (r *Reliable) Generate(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	var text string
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewFibonacci(300*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		out, err := r.backend.Generate(attemptCtx, systemPrompt, history)
		if err != nil {
			return retry.RetryableError(err)
		}
		if strings.TrimSpace(out) == "" {
			return retry.RetryableError(fmt.Errorf("empty completion"))
		}
		text = out
		return nil
	})
	if err != nil {
		r.logger.Warn("generation degraded", "error", err)
		return DegradeLine, nil
	}
	return text, nil
}
