package main

import (
	"context"
	"log/slog"

	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
)

// Dev stand-ins used when the corresponding credentials are absent. They keep
// the full call loop runnable locally without Stripe, an SMS gateway, or a
// Gemini key.

type devProcessor struct{}

func (devProcessor) CreateCheckoutLink(ctx context.Context, clientID, planID string) (string, error) {
	return "https://example.invalid/checkout/" + clientID, nil
}

func (devProcessor) SubscriptionStatus(ctx context.Context, clientID string) (payment.Status, error) {
	return payment.Status{}, nil
}

type devSender struct {
	logger *slog.Logger
}

func (s devSender) Send(ctx context.Context, to, body string) error {
	s.logger.Info("dev sms", "to", to, "body", body)
	return nil
}

type devGenerator struct{}

func (devGenerator) Generate(ctx context.Context, systemPrompt string, history []generation.Message) (string, error) {
	if len(history) == 0 {
		return "Hello there, it is so good to hear from you.", nil
	}
	return "That sounds wonderful, tell me more.", nil
}
