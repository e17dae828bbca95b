package payment

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/subscription"
)

// StripeProcessor implements Processor on Stripe Checkout. Subscriptions are
// tagged with the client id in metadata; the billing webhook consumer sets
// webhook_confirmed on the subscription once the confirmation event lands.
type StripeProcessor struct {
	successURL string
	cancelURL  string
}

func NewStripeProcessor(apiKey, successURL, cancelURL string) (*StripeProcessor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	stripe.Key = strings.TrimSpace(apiKey)
	if strings.TrimSpace(successURL) == "" {
		return nil, fmt.Errorf("stripe success url is required")
	}
	return &StripeProcessor{
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

func (p *StripeProcessor) CreateCheckoutLink(ctx context.Context, clientID, planID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(clientID),
		SuccessURL:        stripe.String(p.successURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(planID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"client_id": clientID},
		},
	}
	if strings.TrimSpace(p.cancelURL) != "" {
		params.CancelURL = stripe.String(p.cancelURL)
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProcessor) SubscriptionStatus(ctx context.Context, clientID string) (Status, error) {
	params := &stripe.SubscriptionSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata['client_id']:'%s' AND status:'active'", clientID),
		},
	}
	iter := subscription.Search(params)
	for iter.Next() {
		sub := iter.Subscription()
		if sub == nil {
			continue
		}
		return Status{
			Active:             sub.Status == stripe.SubscriptionStatusActive,
			ConfirmedByWebhook: sub.Metadata["webhook_confirmed"] == "true",
		}, nil
	}
	if err := iter.Err(); err != nil {
		return Status{}, fmt.Errorf("search subscriptions: %w", err)
	}
	return Status{}, nil
}
