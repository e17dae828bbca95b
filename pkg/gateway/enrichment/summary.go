package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

const summaryPrompt = "Summarize this phone call transcript in two or three plain sentences. Mention names, events, and feelings the caller brought up. Output only the summary."

// maxStoredSummaries bounds the per-profile summary history; older entries
// roll off the front.
const maxStoredSummaries = 20

type SummaryGenerator interface {
	Generate(ctx context.Context, systemPrompt string, history []generation.Message) (string, error)
}

// SummaryEnricher condenses a finished call into a dated summary on the
// caller's profile memory, which the context assembler feeds back into the
// next call.
type SummaryEnricher struct {
	Store     profile.Store
	Generator SummaryGenerator
	Now       func() time.Time
}

func (e SummaryEnricher) EnrichTranscript(ctx context.Context, clientID, transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	text, err := e.Generator.Generate(ctx, summaryPrompt, []generation.Message{
		{Role: "user", Content: transcript},
	})
	if err != nil {
		return fmt.Errorf("summarize transcript: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("summarize transcript: empty summary")
	}

	p, err := e.Store.Get(ctx, clientID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	mem := p.Memory
	mem.Summaries = append(mem.Summaries, profile.Summary{Date: now().UTC(), Summary: text})
	if len(mem.Summaries) > maxStoredSummaries {
		mem.Summaries = mem.Summaries[len(mem.Summaries)-maxStoredSummaries:]
	}
	if err := e.Store.Update(ctx, clientID, profile.Patch{Memory: &mem}); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}
