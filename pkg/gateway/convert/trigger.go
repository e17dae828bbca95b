package convert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

const DefaultThreshold = 8

// ConversionLine is the fixed message spoken when the trigger fires.
const ConversionLine = "I've really enjoyed our conversations. I just sent you a text with a link, if you'd like to keep talking without limits. Want me to walk you through it?"

// Trigger starts the payment walkthrough at most once per client lifetime,
// when the durable exchange count crosses the threshold. The durable
// link-sent timestamp, not any in-memory flag, is the source of truth for
// "ever sent": the atomic set-if-unset write decides the winner when two
// calls race.
type Trigger struct {
	store     profile.Store
	flow      *payment.Flow
	logger    *slog.Logger
	threshold int64
	now       func() time.Time
}

type Dependencies struct {
	Store     profile.Store
	Flow      *payment.Flow
	Logger    *slog.Logger
	Threshold int64
	Now       func() time.Time
}

func New(deps Dependencies) (*Trigger, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Flow == nil {
		return nil, fmt.Errorf("flow is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Threshold <= 0 {
		deps.Threshold = DefaultThreshold
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Trigger{
		store:     deps.Store,
		flow:      deps.Flow,
		logger:    deps.Logger,
		threshold: deps.Threshold,
		now:       deps.Now,
	}, nil
}

// Check evaluates the trigger for one turn. totalExchanges is the durable
// count after this turn's increment; firedThisCall guards against a second
// fire within the same call before the profile is re-read.
func (t *Trigger) Check(ctx context.Context, p *profile.Profile, totalExchanges int64, inFlow, firedThisCall bool) (string, bool, error) {
	if p.Tier != profile.TierFree || inFlow || firedThisCall {
		return "", false, nil
	}
	if totalExchanges < t.threshold {
		return "", false, nil
	}
	if p.PaymentLinkSentAt != nil {
		return "", false, nil
	}

	won, err := t.store.MarkLinkSent(ctx, p.ID, t.now())
	if err != nil {
		return "", false, fmt.Errorf("mark link sent: %w", err)
	}
	if !won {
		// Another call for the same client got here first.
		return "", false, nil
	}

	if _, err := t.flow.Start(ctx, p.ID, p.Phone, p.Name); err != nil {
		// Nothing reached the client, so release the once-ever flag and let
		// a later threshold turn try again.
		if cerr := t.store.ClearLinkSent(ctx, p.ID); cerr != nil {
			t.logger.Error("release link-sent flag failed", "client_id", p.ID, "error", cerr)
		}
		t.logger.Error("conversion flow start failed", "client_id", p.ID, "error", err)
		return "", false, fmt.Errorf("start conversion flow: %w", err)
	}
	t.logger.Info("conversion trigger fired", "client_id", p.ID, "total_exchanges", totalExchanges)
	return ConversionLine, true, nil
}
