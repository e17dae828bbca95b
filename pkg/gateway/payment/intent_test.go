package payment

import "testing"

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		utterance string
		want      Intent
	}{
		{"yes", IntentConfirm},
		{"okay done", IntentConfirm},
		{"got it, typed it in", IntentConfirm},
		{"hold on a second", IntentWait},
		{"hang on, let me grab my wallet", IntentWait},
		{"not right now, maybe later", IntentExit},
		{"no thanks", IntentExit},
		{"can you send the link again", IntentResend},
		{"I never got the link", IntentResend},
		{"why do you need my card?", IntentQuestion},
		{"is this secure", IntentQuestion},
		{"what happens after I pay", IntentQuestion},
		{"it went through!", IntentSuccessClaim},
		{"says thank you on the screen", IntentSuccessClaim},
		{"my card was declined", IntentFailureClaim},
		{"it's not working", IntentFailureClaim},
		{"I'm on the card number field", IntentField},
		{"the cvv box", IntentField},
		{"mmm", IntentUnknown},
		{"", IntentUnknown},
		// Phrase words must match whole words only; embedded fragments are
		// ordinary conversation, not flow commands.
		{"I spoke with my daughter about it", IntentUnknown},
		{"the tv remote is broken again", IntentUnknown},
		{"sorry, my phone is acting up", IntentUnknown},
		{"she never votes yesterday's way", IntentUnknown},
		// A question about the outcome is asking, not claiming.
		{"did it say it worked?", IntentQuestion},
		{"is it done yet?", IntentQuestion},
		{"do i click subscribe now", IntentQuestion},
	}
	for _, tc := range cases {
		if got := detectIntent(tc.utterance); got != tc.want {
			t.Errorf("detectIntent(%q)=%v, want %v", tc.utterance, got, tc.want)
		}
	}
}

func TestDetectField(t *testing.T) {
	cases := []struct {
		utterance string
		want      Step
	}{
		{"i'm on the email bit", StepEnteringEmail},
		{"the card number one", StepEnteringCard},
		{"it wants the expiration date", StepEnteringExpiry},
		{"the security code on the back", StepEnteringCVC},
		{"asking for the name on the card", StepEnteringName},
		{"it's asking my country", StepEnteringCountry},
		{"there's a zip code box", StepEnteringZip},
		{"it wants a billing address", StepEnteringAddress},
		{"now it's asking for my phone number", StepEnteringPhone},
		{"i see the pay button", StepReadyToSubmit},
	}
	for _, tc := range cases {
		got, ok := detectField(tokenize(tc.utterance))
		if !ok || got != tc.want {
			t.Errorf("detectField(%q)=%v ok=%v, want %v", tc.utterance, got, ok, tc.want)
		}
	}
	for _, utterance := range []string{
		"just thinking out loud",
		"my phone is acting up",
		"my postcard collection",
	} {
		if got, ok := detectField(tokenize(utterance)); ok {
			t.Errorf("detectField(%q)=%v, want no match", utterance, got)
		}
	}
}

func TestHasPhrase_WholeWordsOnly(t *testing.T) {
	cases := []struct {
		utterance string
		phrase    string
		want      bool
	}{
		{"it's ok I think", "ok", true},
		{"I spoke with her", "ok", false},
		{"the card number field", "card number", true},
		{"discard numbers like that", "card number", false},
		{"hold on a moment", "hold on", true},
		{"household online shopping", "hold on", false},
	}
	for _, tc := range cases {
		if got := hasPhrase(tokenize(tc.utterance), tc.phrase); got != tc.want {
			t.Errorf("hasPhrase(%q, %q)=%v, want %v", tc.utterance, tc.phrase, got, tc.want)
		}
	}
}

func TestNextStep_CanonicalOrderSkipsOptional(t *testing.T) {
	order := []Step{StepSentLink}
	cur := StepSentLink
	for i := 0; i < 12 && cur != StepVerifying; i++ {
		cur = nextStep(cur)
		order = append(order, cur)
	}
	want := []Step{
		StepSentLink, StepWaitingForClick, StepEnteringEmail, StepEnteringCard,
		StepEnteringExpiry, StepEnteringCVC, StepEnteringName, StepEnteringCountry,
		StepReadyToSubmit, StepVerifying,
	}
	if len(order) != len(want) {
		t.Fatalf("order=%v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]=%q, want %q", i, order[i], want[i])
		}
	}
}

func TestNextStep_OptionalFieldsRejoinAtSubmit(t *testing.T) {
	for _, s := range []Step{StepEnteringZip, StepEnteringAddress, StepEnteringPhone} {
		if got := nextStep(s); got != StepReadyToSubmit {
			t.Fatalf("nextStep(%q)=%q, want ready_to_submit", s, got)
		}
	}
}
