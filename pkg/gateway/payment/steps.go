package payment

// Step is the current position in the guided checkout walkthrough. It is
// persisted on the client profile as its string value.
type Step string

const (
	StepNone            Step = "none"
	StepSentLink        Step = "sent_link"
	StepWaitingForClick Step = "waiting_for_click"
	StepEnteringEmail   Step = "entering_email"
	StepEnteringCard    Step = "entering_card"
	StepEnteringExpiry  Step = "entering_expiry"
	StepEnteringCVC     Step = "entering_cvc"
	StepEnteringName    Step = "entering_name"
	StepEnteringCountry Step = "entering_country"
	StepEnteringZip     Step = "entering_zip"
	StepEnteringAddress Step = "entering_address"
	StepEnteringPhone   Step = "entering_phone"
	StepReadyToSubmit   Step = "ready_to_submit"
	StepVerifying       Step = "verifying_success"
	StepCompleted       Step = "completed"
	StepFailed          Step = "failed"
	StepPaymentFailed   Step = "payment_failed"
)

// canonicalOrder is the confirmation-advance path. The optional steps
// (zip, address, phone) are deliberately absent: they are reachable only when
// the user names them, and advancing from one of them rejoins this path.
var canonicalOrder = []Step{
	StepSentLink,
	StepWaitingForClick,
	StepEnteringEmail,
	StepEnteringCard,
	StepEnteringExpiry,
	StepEnteringCVC,
	StepEnteringName,
	StepEnteringCountry,
	StepReadyToSubmit,
	StepVerifying,
}

// canonicalRank orders every step for the non-regression invariant; optional
// steps sit between country and ready_to_submit.
var canonicalRank = map[Step]int{
	StepNone:            0,
	StepSentLink:        1,
	StepWaitingForClick: 2,
	StepEnteringEmail:   3,
	StepEnteringCard:    4,
	StepEnteringExpiry:  5,
	StepEnteringCVC:     6,
	StepEnteringName:    7,
	StepEnteringCountry: 8,
	StepEnteringZip:     9,
	StepEnteringAddress: 9,
	StepEnteringPhone:   9,
	StepReadyToSubmit:   10,
	StepVerifying:       11,
	StepCompleted:       12,
	StepFailed:          12,
	StepPaymentFailed:   12,
}

// Rank reports the step's position in canonical field order. Steps sharing a
// rank are the interchangeable optional fields and the terminal states.
func Rank(s Step) int {
	return canonicalRank[s]
}

// nextStep returns the canonical successor, skipping optional fields. From an
// optional step it rejoins at ready_to_submit.
func nextStep(s Step) Step {
	switch s {
	case StepEnteringZip, StepEnteringAddress, StepEnteringPhone:
		return StepReadyToSubmit
	}
	for i, cur := range canonicalOrder {
		if cur == s && i+1 < len(canonicalOrder) {
			return canonicalOrder[i+1]
		}
	}
	return s
}

func isFieldStep(s Step) bool {
	switch s {
	case StepSentLink, StepWaitingForClick, StepEnteringEmail, StepEnteringCard,
		StepEnteringExpiry, StepEnteringCVC, StepEnteringName, StepEnteringCountry,
		StepEnteringZip, StepEnteringAddress, StepEnteringPhone:
		return true
	}
	return false
}

func isTerminal(s Step) bool {
	switch s {
	case StepCompleted, StepFailed:
		return true
	}
	return false
}
