package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kindline-ai/kindline/pkg/gateway/messaging"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

const DefaultExpiry = 30 * time.Minute

// Status is the payment processor's view of a client subscription. The
// webhook confirmation lags real time by an unbounded amount, which is why
// reconciliation runs on every turn instead of on demand.
type Status struct {
	Active             bool
	ConfirmedByWebhook bool
}

type Processor interface {
	CreateCheckoutLink(ctx context.Context, clientID, planID string) (string, error)
	SubscriptionStatus(ctx context.Context, clientID string) (Status, error)
}

type OutcomeKind int

const (
	// OutcomeNone means no flow is active for the client (never started,
	// exited, expired, or already terminal).
	OutcomeNone OutcomeKind = iota
	// OutcomeHandled carries a concrete spoken response.
	OutcomeHandled
	// OutcomeDelegate means the utterance is not flow progress; generic
	// generation should answer it, primed with the hint.
	OutcomeDelegate
	// OutcomeResend instructs the caller to regenerate and resend the
	// checkout link without touching in-progress field state.
	OutcomeResend
)

type Outcome struct {
	Kind      OutcomeKind
	Response  string
	Completed bool
	Hint      string
}

func handled(text string) Outcome  { return Outcome{Kind: OutcomeHandled, Response: text} }
func delegate(hint string) Outcome { return Outcome{Kind: OutcomeDelegate, Hint: hint} }

const completedResponse = "It went through, you're all set. Thank you for that, truly. Now, where were we?"

type Dependencies struct {
	Store     profile.Store
	Processor Processor
	Messenger messaging.Sender
	Logger    *slog.Logger
	PlanID    string
	Expiry    time.Duration
	Now       func() time.Time
}

// Flow drives the guided checkout walkthrough over voice turns. Its state
// lives on the client profile, so it survives calls and reconciles against
// the processor rather than trusting its own last write.
type Flow struct {
	store     profile.Store
	processor Processor
	messenger messaging.Sender
	logger    *slog.Logger
	planID    string
	expiry    time.Duration
	now       func() time.Time
}

func New(deps Dependencies) (*Flow, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Expiry <= 0 {
		deps.Expiry = DefaultExpiry
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Flow{
		store:     deps.Store,
		processor: deps.Processor,
		messenger: deps.Messenger,
		logger:    deps.Logger,
		planID:    deps.PlanID,
		expiry:    deps.Expiry,
		now:       deps.Now,
	}, nil
}

// Start creates a checkout link, texts it to the client, and persists a fresh
// sent_link state. Calling it again mid-flow simply restarts with a new link.
func (f *Flow) Start(ctx context.Context, clientID, address, displayName string) (string, error) {
	link, err := f.createLink(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("create checkout link: %w", err)
	}
	body := fmt.Sprintf("Hi %s, here's your link: %s", displayName, link)
	if strings.TrimSpace(displayName) == "" {
		body = "Here's your link: " + link
	}
	if err := f.messenger.Send(ctx, address, body); err != nil {
		return "", fmt.Errorf("send checkout link: %w", err)
	}

	p, err := f.store.Get(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	fs := profile.FlowState{
		Step:       string(StepSentLink),
		StartedAt:  f.now().UTC(),
		LastPhrase: p.Flow.LastPhrase, // phrasing rotation survives restarts
	}
	if err := f.store.SaveFlow(ctx, clientID, fs); err != nil {
		return "", fmt.Errorf("persist flow state: %w", err)
	}
	return link, nil
}

// Resend regenerates the link and sends it again, refreshing the expiry
// window but leaving the current step untouched.
func (f *Flow) Resend(ctx context.Context, clientID, address string) (string, error) {
	link, err := f.createLink(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("create checkout link: %w", err)
	}
	if err := f.messenger.Send(ctx, address, "Here it is again: "+link); err != nil {
		return "", fmt.Errorf("resend checkout link: %w", err)
	}
	p, err := f.store.Get(ctx, clientID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	fs := p.Flow
	fs.StartedAt = f.now().UTC()
	if err := f.store.SaveFlow(ctx, clientID, fs); err != nil {
		return "", fmt.Errorf("persist flow state: %w", err)
	}
	return link, nil
}

func (f *Flow) createLink(ctx context.Context, clientID string) (string, error) {
	var link string
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		link, err = f.processor.CreateCheckoutLink(ctx, clientID, f.planID)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return link, err
}

// Active reports whether a walkthrough is in progress for the given state,
// accounting for expiry.
func (f *Flow) Active(fs profile.FlowState) bool {
	step := Step(fs.Step)
	if step == "" || step == StepNone || isTerminal(step) {
		return false
	}
	return f.now().Sub(fs.StartedAt) <= f.expiry
}

// ProcessTurn interprets one final utterance while a flow is active. The
// priority order is fixed: expiry, external reconciliation, stored failure,
// question, wait, exit, resend, explicit field naming, then step handling.
func (f *Flow) ProcessTurn(ctx context.Context, clientID, utterance string) (Outcome, error) {
	p, err := f.store.Get(ctx, clientID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load profile: %w", err)
	}
	fs := p.Flow
	step := Step(fs.Step)

	// A completion taken on the caller's word alone stays provisional until
	// the processor confirms it; re-check on every turn so the webhook can
	// still land and grant the tier.
	if step == StepCompleted && !fs.ConfirmedExternally {
		f.confirmProvisional(ctx, clientID, fs)
		return Outcome{Kind: OutcomeNone}, nil
	}

	if step == "" || step == StepNone || isTerminal(step) {
		return Outcome{Kind: OutcomeNone}, nil
	}

	// 1. Expired flows are treated as absent; a fresh Start stays possible.
	if f.now().Sub(fs.StartedAt) > f.expiry {
		cleared := profile.FlowState{Step: string(StepNone), LastPhrase: fs.LastPhrase}
		if err := f.store.SaveFlow(ctx, clientID, cleared); err != nil {
			f.logger.Warn("clear expired flow failed", "client_id", clientID, "error", err)
		}
		return Outcome{Kind: OutcomeNone}, nil
	}

	// 2. Proactive reconciliation: the processor's confirmation always wins
	// over anything inferred from speech, on every turn.
	if out, ok := f.reconcile(ctx, clientID, &fs); ok {
		return out, nil
	}

	// 3. A stored payment failure is surfaced once, then the flow waits at
	// ready_to_submit for a retry.
	if step == StepPaymentFailed {
		reason := strings.TrimSpace(fs.LastFailure)
		fs.Step = string(StepReadyToSubmit)
		fs.LastFailure = ""
		fs.LoopCount = 0
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		resp := "Last time it didn't go through"
		if reason != "" {
			resp += ", it said: " + reason
		}
		resp += ". When you're ready, press subscribe again and we'll see."
		return handled(resp), nil
	}

	switch detectIntent(utterance) {
	case IntentQuestion:
		// 4. Questions are answered by generic generation, not forced
		// into flow logic.
		return delegate(flowHint(step)), nil

	case IntentWait:
		// 5.
		fs.LoopCount = 0
		ack := rotate(&fs, "wait", waitAcks)
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		return handled(ack), nil

	case IntentExit:
		// 6. Clear the flow; the link stays valid for later.
		ack := rotate(&fs, "exit", exitAcks)
		cleared := profile.FlowState{Step: string(StepNone), LastPhrase: fs.LastPhrase}
		if err := f.save(ctx, clientID, cleared); err != nil {
			return Outcome{}, err
		}
		return handled(ack), nil

	case IntentResend:
		// 7. The caller regenerates and resends; field state is untouched.
		return Outcome{Kind: OutcomeResend}, nil

	case IntentField:
		// 8. Explicit field naming recovers from misalignment between
		// assumed and actual progress.
		named, _ := detectField(tokenize(utterance))
		fs.Step = string(named)
		fs.LoopCount = 0
		resp := nextGuidance(&fs, named)
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		return handled(resp), nil

	case IntentSuccessClaim:
		return f.handleSuccessClaim(ctx, clientID, fs, step)

	case IntentFailureClaim:
		fs.Step = string(StepPaymentFailed)
		fs.LastFailure = strings.TrimSpace(utterance)
		fs.LoopCount = 0
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		return handled("Ugh, that's frustrating. It happens sometimes, let's take a breath and try once more in a moment."), nil

	case IntentConfirm:
		return f.advance(ctx, clientID, fs, step)
	}

	// 9/10. Not a confirmation, not a named field: let generation handle it
	// with flow context rather than guessing, except at verification where
	// an unresolved turn counts toward the final external check.
	if step == StepVerifying {
		return f.verifyUnresolved(ctx, clientID, fs)
	}
	fs.LoopCount++
	if err := f.save(ctx, clientID, fs); err != nil {
		return Outcome{}, err
	}
	return delegate(flowHint(step)), nil
}

func (f *Flow) advance(ctx context.Context, clientID string, fs profile.FlowState, step Step) (Outcome, error) {
	if step == StepVerifying {
		// A bare "yes" at verification is ambiguous; ask what the screen
		// shows rather than declaring victory.
		return f.verifyUnresolved(ctx, clientID, fs)
	}
	ns := nextStep(step)
	fs.Step = string(ns)
	fs.LoopCount = 0
	resp := nextGuidance(&fs, ns)
	if err := f.save(ctx, clientID, fs); err != nil {
		return Outcome{}, err
	}
	return handled(resp), nil
}

func (f *Flow) handleSuccessClaim(ctx context.Context, clientID string, fs profile.FlowState, step Step) (Outcome, error) {
	if step != StepReadyToSubmit && step != StepVerifying {
		// "It went through" before the submit step means our picture of
		// their progress is stale; jump to verification and check.
		fs.Step = string(StepVerifying)
		fs.LoopCount = 0
		resp := nextGuidance(&fs, StepVerifying)
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		return handled(resp), nil
	}
	// The user's word ends the walkthrough, but the ConfirmedExternally flag
	// stays false and the tier upgrade waits for the webhook: later turns
	// keep re-checking via confirmProvisional.
	fs.Step = string(StepCompleted)
	fs.ConfirmedExternally = false
	fs.LoopCount = 0
	if err := f.save(ctx, clientID, fs); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeHandled, Response: completedResponse, Completed: true}, nil
}

// confirmProvisional re-checks a verbal-claim completion against the
// processor. Confirmation flips the flag and grants the tier; until then the
// completion stands but the upgrade does not.
func (f *Flow) confirmProvisional(ctx context.Context, clientID string, fs profile.FlowState) {
	st, err := f.processor.SubscriptionStatus(ctx, clientID)
	if err != nil {
		f.logger.Warn("subscription status lookup failed", "client_id", clientID, "error", err)
		return
	}
	if !st.Active || !st.ConfirmedByWebhook {
		return
	}
	fs.ConfirmedExternally = true
	if err := f.store.SaveFlow(ctx, clientID, fs); err != nil {
		f.logger.Error("persist confirmed flow failed", "client_id", clientID, "error", err)
		return
	}
	f.upgradeTier(ctx, clientID)
}

func (f *Flow) verifyUnresolved(ctx context.Context, clientID string, fs profile.FlowState) (Outcome, error) {
	fs.LoopCount++
	if fs.LoopCount >= 2 {
		// One last external check before asking again, so "did it work?"
		// can never loop forever.
		if out, ok := f.reconcile(ctx, clientID, &fs); ok {
			return out, nil
		}
		fs.LoopCount = 0
		if err := f.save(ctx, clientID, fs); err != nil {
			return Outcome{}, err
		}
		return handled("Let's pin it down: on your screen right now, is there a green checkmark, an error message, or is it still loading?"), nil
	}
	resp := nextGuidance(&fs, StepVerifying)
	if err := f.save(ctx, clientID, fs); err != nil {
		return Outcome{}, err
	}
	return handled(resp), nil
}

// reconcile checks the processor's confirmed-subscription status. On
// confirmation it force-transitions the flow to completed and reports true;
// lookup errors are logged and ignored so a flaky processor never blocks a
// turn.
func (f *Flow) reconcile(ctx context.Context, clientID string, fs *profile.FlowState) (Outcome, bool) {
	st, err := f.processor.SubscriptionStatus(ctx, clientID)
	if err != nil {
		f.logger.Warn("subscription status lookup failed", "client_id", clientID, "error", err)
		return Outcome{}, false
	}
	if !st.Active || !st.ConfirmedByWebhook {
		return Outcome{}, false
	}
	fs.Step = string(StepCompleted)
	fs.ConfirmedExternally = true
	fs.LoopCount = 0
	fs.LastFailure = ""
	if err := f.save(ctx, clientID, *fs); err != nil {
		f.logger.Error("persist completed flow failed", "client_id", clientID, "error", err)
	}
	f.upgradeTier(ctx, clientID)
	return Outcome{Kind: OutcomeHandled, Response: completedResponse, Completed: true}, true
}

func (f *Flow) upgradeTier(ctx context.Context, clientID string) {
	tier := profile.TierPlus
	if err := f.store.Update(ctx, clientID, profile.Patch{Tier: &tier}); err != nil {
		f.logger.Error("tier upgrade failed", "client_id", clientID, "error", err)
	}
}

func (f *Flow) save(ctx context.Context, clientID string, fs profile.FlowState) error {
	if err := f.store.SaveFlow(ctx, clientID, fs); err != nil {
		return fmt.Errorf("persist flow state: %w", err)
	}
	return nil
}

func flowHint(step Step) string {
	return fmt.Sprintf("The caller is partway through the subscription checkout (current step: %s). Answer them naturally and, if it fits, gently steer back to finishing the checkout.", step)
}
