package screening

import (
	"context"
	"regexp"
)

type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityElevated Severity = "elevated"
	SeverityCrisis   Severity = "crisis"
)

type Result struct {
	Severity Severity
	Response string
}

// Screener classifies one utterance for crisis or compliance concerns. A
// non-none result carries the exact response to speak; the session emits it
// and bypasses all other turn logic.
type Screener interface {
	Screen(ctx context.Context, utterance string) (Result, error)
}

type rule struct {
	pattern  *regexp.Regexp
	severity Severity
	response string
}

// RuleScreener is the built-in keyword classifier. Real deployments point the
// gateway at an external classifier; the rule table here is the fallback and
// the test fixture, kept as data so patterns can be extended without touching
// dispatch logic.
type RuleScreener struct {
	rules []rule
}

const crisisResponse = "I hear you, and I'm really glad you told me. What you're feeling matters. Please reach out to the 988 Suicide and Crisis Lifeline, call or text 988, they're there around the clock. Would you like to keep talking with me while you do?"

const elevatedResponse = "That sounds really heavy, and I want you to know I'm taking it seriously. Tell me more about what's been going on."

func NewRuleScreener() *RuleScreener {
	return &RuleScreener{
		rules: []rule{
			{regexp.MustCompile(`(?i)\b(kill(ing)? myself|end(ing)? my life|suicide|suicidal|don't want to (live|be alive)|want to die)\b`), SeverityCrisis, crisisResponse},
			{regexp.MustCompile(`(?i)\b(hurt(ing)? myself|self[- ]harm|cutting myself)\b`), SeverityCrisis, crisisResponse},
			{regexp.MustCompile(`(?i)\b(no reason to (live|go on)|better off without me)\b`), SeverityCrisis, crisisResponse},
			{regexp.MustCompile(`(?i)\b(hopeless|can't (take|do) (this|it) anymore|falling apart)\b`), SeverityElevated, elevatedResponse},
		},
	}
}

func (s *RuleScreener) Screen(ctx context.Context, utterance string) (Result, error) {
	for _, r := range s.rules {
		if r.pattern.MatchString(utterance) {
			return Result{Severity: r.severity, Response: r.response}, nil
		}
	}
	return Result{Severity: SeverityNone}, nil
}
