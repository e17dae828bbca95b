package enrichment

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Enricher consumes a finished call transcript for post-call profile
// enrichment. It is a fire-and-forget collaborator: failures are logged,
// never fatal, and the session close never waits on it.
type Enricher interface {
	EnrichTranscript(ctx context.Context, clientID, transcript string) error
}

type NopEnricher struct{}

func (NopEnricher) EnrichTranscript(ctx context.Context, clientID, transcript string) error {
	return nil
}

// Runner dispatches enrichment jobs in the background with a bounded
// per-job timeout. Wait drains in-flight jobs at shutdown.
type Runner struct {
	enricher Enricher
	logger   *slog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewRunner(enricher Enricher, logger *slog.Logger, timeout time.Duration) *Runner {
	if enricher == nil {
		enricher = NopEnricher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{enricher: enricher, logger: logger, timeout: timeout}
}

func (r *Runner) Submit(clientID, transcript string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.enricher.EnrichTranscript(ctx, clientID, transcript); err != nil {
			r.logger.Warn("transcript enrichment failed", "client_id", clientID, "error", err)
		}
	}()
}

// Wait blocks until in-flight jobs finish or the context expires.
func (r *Runner) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
