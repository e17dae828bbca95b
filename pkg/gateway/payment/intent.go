package payment

import (
	"strings"
	"unicode"
)

// Intent is what a flow-directed utterance is asking for. Detection is
// table-driven so the phrase lists can be tested and extended without
// touching the state machine.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentConfirm
	IntentQuestion
	IntentWait
	IntentExit
	IntentResend
	IntentField
	IntentSuccessClaim
	IntentFailureClaim
)

var confirmPhrases = []string{
	"yes", "yeah", "yep", "yup", "ok", "okay", "sure", "done", "got it",
	"entered it", "typed it", "put it in", "filled it", "next", "finished",
	"all set", "ready", "did it", "did that", "clicked", "i'm in", "im in",
	"i see it", "opened it",
}

var waitPhrases = []string{
	"hold on", "hang on", "one sec", "one second", "one moment", "give me a minute",
	"give me a sec", "wait", "just a moment", "let me find", "let me get",
	"looking for my card", "getting my card", "grabbing my wallet",
}

var exitPhrases = []string{
	"not right now", "not now", "maybe later", "later", "stop", "never mind",
	"nevermind", "forget it", "i don't want", "i dont want", "no thanks",
	"no thank you", "cancel", "not interested", "some other time", "let's talk about something else",
	"lets talk about something else", "change the subject",
}

var resendPhrases = []string{
	"send it again", "send the link again", "resend", "send me the link",
	"didn't get the link", "didnt get the link", "never got the link",
	"lost the link", "can't find the link", "cant find the link",
	"send another link", "text it again", "text me the link",
}

var successPhrases = []string{
	"it worked", "it went through", "went through", "it says success",
	"payment successful", "all done", "it's done", "its done", "confirmed",
	"says thank you", "subscribed", "i'm subscribed", "im subscribed",
	"completed", "it accepted",
}

var failurePhrases = []string{
	"it failed", "didn't work", "didnt work", "declined", "card was declined",
	"got an error", "says error", "error message", "it's not working",
	"its not working", "payment failed", "wouldn't go through", "wouldnt go through",
	"rejected",
}

var questionWords = []string{
	"what", "why", "how", "when", "where", "who", "which", "is it", "is this",
	"are you", "do i", "does it", "can i", "will i", "should i",
}

// fieldPhrases maps spoken field names to their steps, for explicit
// "I'm on the card number" style corrections.
// Longer, more specific phrases come first: "name on the card" must match
// before the bare "card" and "name" entries.
var fieldPhrases = []struct {
	phrase string
	step   Step
}{
	{"card number", StepEnteringCard},
	{"credit card", StepEnteringCard},
	{"name on the card", StepEnteringName},
	{"cardholder", StepEnteringName},
	{"expiration", StepEnteringExpiry},
	{"expiry", StepEnteringExpiry},
	{"expire", StepEnteringExpiry},
	{"cvc", StepEnteringCVC},
	{"cvv", StepEnteringCVC},
	{"security code", StepEnteringCVC},
	{"three digit", StepEnteringCVC},
	{"email", StepEnteringEmail},
	{"e-mail", StepEnteringEmail},
	{"country", StepEnteringCountry},
	{"zip", StepEnteringZip},
	{"postal", StepEnteringZip},
	{"postcode", StepEnteringZip},
	{"address", StepEnteringAddress},
	{"phone number", StepEnteringPhone},
	{"my name", StepEnteringName},
	{"name", StepEnteringName},
	{"card", StepEnteringCard},
	{"submit", StepReadyToSubmit},
	{"pay button", StepReadyToSubmit},
	{"subscribe button", StepReadyToSubmit},
}

// tokenize lowercases an utterance and splits it into words. In-word
// apostrophes and hyphens survive, so "i'm" and "e-mail" stay single tokens.
// All phrase matching is on whole-word sequences; "spoke" never matches "ok".
func tokenize(utterance string) []string {
	return strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

// hasPhrase reports whether the phrase's words appear consecutively in toks.
func hasPhrase(toks []string, phrase string) bool {
	want := tokenize(phrase)
	if len(want) == 0 || len(want) > len(toks) {
		return false
	}
	for i := 0; i+len(want) <= len(toks); i++ {
		match := true
		for j, w := range want {
			if toks[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func containsAny(toks []string, phrases []string) bool {
	for _, p := range phrases {
		if hasPhrase(toks, p) {
			return true
		}
	}
	return false
}

// detectIntent classifies one utterance. Precedence matters: a question wins
// over everything, including success and failure claims ("did it say it
// worked?" is asking, not telling), an explicit exit or resend wins over an
// embedded confirmation word, and bare confirmation words rank last. Anything
// unmatched is left for generic generation rather than guessed at.
func detectIntent(utterance string) Intent {
	toks := tokenize(utterance)
	if len(toks) == 0 {
		return IntentUnknown
	}

	if isQuestion(utterance) {
		return IntentQuestion
	}
	if containsAny(toks, successPhrases) {
		return IntentSuccessClaim
	}
	if containsAny(toks, failurePhrases) {
		return IntentFailureClaim
	}
	if containsAny(toks, exitPhrases) {
		return IntentExit
	}
	if containsAny(toks, resendPhrases) {
		return IntentResend
	}
	if containsAny(toks, waitPhrases) {
		return IntentWait
	}
	if _, ok := detectField(toks); ok {
		return IntentField
	}
	if containsAny(toks, confirmPhrases) {
		return IntentConfirm
	}
	return IntentUnknown
}

func isQuestion(utterance string) bool {
	s := strings.ToLower(strings.TrimSpace(utterance))
	if strings.HasSuffix(s, "?") {
		return true
	}
	for _, w := range questionWords {
		if strings.HasPrefix(s, w+" ") {
			return true
		}
	}
	return false
}

// detectField returns the step named in the utterance, if any. Longer phrases
// are listed before their prefixes in fieldPhrases, so "card number" matches
// before "card".
func detectField(toks []string) (Step, bool) {
	for _, fp := range fieldPhrases {
		if hasPhrase(toks, fp.phrase) {
			return fp.step, true
		}
	}
	return StepNone, false
}
