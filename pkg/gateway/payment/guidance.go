package payment

import "github.com/kindline-ai/kindline/pkg/gateway/profile"

// guidance holds the spoken walkthrough lines per step: what to tell the
// caller to do while they are on that step. Every step has at least two
// equivalent phrasings; selection rotates deterministically per client so the
// same line is never spoken twice in a row.
var guidance = map[Step][]string{
	StepSentLink: {
		"I just texted you a link. Open it when you get a second and tell me when you see the checkout page.",
		"The link should be in your messages now. Let me know once you've opened it.",
	},
	StepWaitingForClick: {
		"Once the page loads, say the word and we'll go through it together, field by field.",
		"Tell me when the checkout page is up and we'll take it one box at a time.",
	},
	StepEnteringEmail: {
		"The first box asks for your email address. Tell me when it's in.",
		"Start with your email at the top, and say when you're done.",
	},
	StepEnteringCard: {
		"Now the card number, the long one across the front. Take your time.",
		"Next up is your card number. Read it off the front of your card.",
	},
	StepEnteringExpiry: {
		"Now the expiration date, month and year.",
		"Next is the expiry, the month slash year date on the card.",
	},
	StepEnteringCVC: {
		"Then the security code, the three digits on the back.",
		"Now the CVC, that short code on the back of the card.",
	},
	StepEnteringName: {
		"Now type the name exactly as it appears on the card.",
		"Next, the cardholder name, just as it's printed.",
	},
	StepEnteringCountry: {
		"Almost there. Pick your country from the dropdown.",
		"Nearly done. Choose your country in the next box.",
	},
	StepEnteringZip: {
		"Enter your zip or postal code there.",
		"Pop in your postal code for that one.",
	},
	StepEnteringAddress: {
		"Type your billing address in that field.",
		"Fill in the billing address it's asking for.",
	},
	StepEnteringPhone: {
		"Enter your phone number in that box.",
		"Add your phone number there.",
	},
	StepReadyToSubmit: {
		"That's everything. Go ahead and press subscribe, then tell me what the screen says.",
		"All the fields are in. Hit the subscribe button and let me know what happens.",
	},
	StepVerifying: {
		"What does the screen show now? A success message, or an error?",
		"Tell me what you see. Did it say the payment went through?",
	},
}

var waitAcks = []string{
	"No rush at all. I'm right here whenever you're ready.",
	"Take your time, there's no hurry.",
}

var exitAcks = []string{
	"That's completely fine, we can come back to it anytime. The link will still work whenever you want it.",
	"No problem at all. The link stays in your messages if you ever feel like it later.",
}

// rotate picks the next phrasing for a key, advancing the persisted index so
// consecutive calls never return the same line. The rotation is index plus
// one with wraparound, no randomness, so behavior is reproducible in tests.
func rotate(fs *profile.FlowState, key string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	if fs.LastPhrase == nil {
		fs.LastPhrase = make(map[string]int)
	}
	idx := 0
	if last, ok := fs.LastPhrase[key]; ok {
		idx = (last + 1) % len(lines)
	}
	fs.LastPhrase[key] = idx
	return lines[idx]
}

func nextGuidance(fs *profile.FlowState, step Step) string {
	return rotate(fs, string(step), guidance[step])
}
