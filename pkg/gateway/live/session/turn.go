package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/live/protocol"
	"github.com/kindline-ai/kindline/pkg/gateway/memory"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
)

// setup resolves or creates the caller's profile, persists the greeting
// rotation, and returns the opening line. Identity resolution failure is
// fatal to the call and surfaces as a SetupError.
func (s *Session) setup(ctx context.Context, msg protocol.ClientSetup) (string, error) {
	caller := strings.TrimSpace(msg.Caller)
	now := s.now()

	p, err := s.store.GetByPhone(ctx, caller)
	if errors.Is(err, profile.ErrNotFound) {
		p = &profile.Profile{
			ID:        uuid.NewString(),
			Phone:     caller,
			Tier:      profile.TierFree,
			CreatedAt: now,
		}
		if err := s.store.Create(ctx, p); err != nil {
			return "", &SetupError{CallID: msg.CallID, Err: err}
		}
	} else if err != nil {
		return "", &SetupError{CallID: msg.CallID, Err: err}
	}

	greeting, nextIdx := greetingFor(p, now)
	if err := s.store.Update(ctx, p.ID, profile.Patch{GreetingIdx: &nextIdx, LastCallAt: &now}); err != nil {
		// The call proceeds; worst case the next greeting repeats.
		s.logger.Warn("greeting rotation persist failed", "client_id", p.ID, "error", err)
	} else {
		p.GreetingIdx = nextIdx
		p.LastCallAt = &now
	}

	s.prof = p
	s.bundle = memory.BuildWithBudget(p, s.cfg.ContextTokenBudget)
	s.logger.Info("call setup complete",
		"call_id", msg.CallID,
		"client_id", p.ID,
		"tier", p.Tier,
		"total_exchanges", p.TotalExchanges,
		"flow_step", p.Flow.Step,
		"bundle_tokens", s.bundle.EstimatedTokens,
	)
	return greeting, nil
}

// respondTurn is the per-turn pipeline. It always produces a spoken reply;
// internal failures degrade to fixed lines rather than dropping the turn.
func (s *Session) respondTurn(ctx context.Context, text string) string {
	p := s.prof

	// Durable increment before anything else, so a crash mid-turn can only
	// overcount, never undercount.
	total, err := s.store.IncrementExchanges(ctx, p.ID)
	if err != nil {
		s.logger.Error("exchange increment failed", "client_id", p.ID, "error", err)
		total = p.TotalExchanges + 1
	}
	p.TotalExchanges = total
	s.callTurns++
	s.history.appendUser(text)

	reply := s.turnReply(ctx, text, total)
	s.history.appendAssistant(reply)
	return reply
}

func (s *Session) turnReply(ctx context.Context, text string, total int64) string {
	p := s.prof

	res, err := s.screener.Screen(ctx, text)
	if err != nil {
		s.logger.Warn("screening failed", "client_id", p.ID, "error", err)
	} else if res.Severity != screening.SeverityNone {
		s.logger.Info("screening gate", "client_id", p.ID, "severity", res.Severity)
		if res.Severity == screening.SeverityCrisis {
			s.escalateSafety(ctx)
		}
		return res.Response
	}

	hint := ""
	inFlow := false
	if !s.flowSuspended {
		out, err := s.flow.ProcessTurn(ctx, p.ID, text)
		if err != nil {
			s.logger.Error("payment flow turn failed", "client_id", p.ID, "error", err)
			return checkBackLine
		}
		switch out.Kind {
		case payment.OutcomeHandled:
			s.flowDelegates = 0
			if out.Completed {
				s.refreshProfile(ctx)
			}
			return out.Response
		case payment.OutcomeResend:
			s.flowDelegates = 0
			if _, err := s.flow.Resend(ctx, p.ID, p.Phone); err != nil {
				s.logger.Error("payment link resend failed", "client_id", p.ID, "error", err)
				return checkBackLine
			}
			return resendConfirmLine
		case payment.OutcomeDelegate:
			inFlow = true
			s.flowDelegates++
			if s.flowDelegates >= flowSuspendTurns {
				// Let the conversation breathe. The persisted step stays put;
				// the next call picks the walkthrough back up.
				s.flowSuspended = true
				s.logger.Info("suspending flow-directed responses", "client_id", p.ID, "step", p.Flow.Step)
			} else {
				hint = out.Hint
			}
		case payment.OutcomeNone:
			s.flowDelegates = 0
		}
	}

	if !inFlow && !s.flowSuspended {
		line, fired, err := s.trigger.Check(ctx, p, total, false, s.triggerFired)
		if err != nil {
			s.logger.Warn("conversion trigger check failed", "client_id", p.ID, "error", err)
		}
		if fired {
			s.triggerFired = true
			s.refreshProfile(ctx)
			return line
		}
	}

	turnCtx := ctx
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}
	out, err := s.generator.Generate(turnCtx, s.systemPrompt(hint), s.history.snapshot(s.cfg.MaxHistoryTurns))
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			s.logger.Warn("generation failed", "client_id", p.ID, "error", err)
		}
		return generation.DegradeLine
	}
	return out
}

func (s *Session) systemPrompt(flowHint string) string {
	var sb strings.Builder
	sb.WriteString(personaPrompt)
	if s.bundle.Text != "" {
		sb.WriteString("\n\n")
		sb.WriteString(s.bundle.Text)
	}
	if flowHint != "" {
		sb.WriteString("\n\n")
		sb.WriteString(flowHint)
	}
	return sb.String()
}

// refreshProfile re-reads the profile after a store-side change (tier
// upgrade, flow completion) so the rest of the call sees it.
func (s *Session) refreshProfile(ctx context.Context) {
	p, err := s.store.Get(ctx, s.prof.ID)
	if err != nil {
		s.logger.Warn("profile refresh failed", "client_id", s.prof.ID, "error", err)
		return
	}
	s.prof = p
	s.bundle = memory.BuildWithBudget(p, s.cfg.ContextTokenBudget)
}

func (s *Session) escalateSafety(ctx context.Context) {
	p := s.prof
	if p.Memory.SafetyLevel == profile.SafetyElevated || p.Memory.SafetyLevel == profile.SafetyHigh {
		return
	}
	mem := p.Memory
	mem.SafetyLevel = profile.SafetyElevated
	mem.SafetyNotes = "crisis language on call at " + s.now().UTC().Format(time.RFC3339)
	if err := s.store.Update(ctx, p.ID, profile.Patch{Memory: &mem}); err != nil {
		s.logger.Error("safety escalation persist failed", "client_id", p.ID, "error", err)
		return
	}
	p.Memory = mem
	s.bundle = memory.BuildWithBudget(p, s.cfg.ContextTokenBudget)
}
