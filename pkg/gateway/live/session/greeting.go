package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

// fallbackGreeting is spoken when identity resolution fails. It names nothing
// personal, so it is safe for a caller we could not look up.
const fallbackGreeting = "Hi there, it's good to hear your voice. How are you doing today?"

const longGapAfter = 14 * 24 * time.Hour
const recentWithin = 48 * time.Hour

type recencyBucket int

const (
	recencyFirstCall recencyBucket = iota
	recencyRecent
	recencyRegular
	recencyLongGap
)

// Greeting variants are fixed phrasings with %s slots for the day part and,
// where it reads naturally, the caller's name. Each bucket keeps at least two
// variants; the persisted greeting index rotates through them so the same
// caller never hears the same opener twice in a row.
var firstCallGreetings = []string{
	"Hi, I'm really glad you called. How's your %s going so far?",
	"Hello there, it's lovely to meet you. What's your %s been like?",
}

var recentGreetings = []string{
	"Welcome back%s, I was hoping you'd call again soon. How's your %s?",
	"Hey%s, good to hear from you again so soon. How has your %s been treating you?",
}

var regularGreetings = []string{
	"Good %s%s, it's so nice to hear from you. What's on your mind today?",
	"Hi%s, happy %s to you. How have you been?",
	"Hello%s, I was just thinking about our last chat. How's your %s going?",
}

var longGapGreetings = []string{
	"Well hello%s, it's been a while! I'm really glad you called. How's your %s?",
	"Hi%s, it's wonderful to hear from you after so long. What's been happening?",
}

func dayPart(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

func recencyOf(p *profile.Profile, now time.Time) recencyBucket {
	if p.LastCallAt == nil {
		return recencyFirstCall
	}
	gap := now.Sub(*p.LastCallAt)
	switch {
	case gap <= recentWithin:
		return recencyRecent
	case gap >= longGapAfter:
		return recencyLongGap
	default:
		return recencyRegular
	}
}

// greetingFor picks the opener for this call and returns the next greeting
// index to persist. Rotation is deterministic: idx selects, idx+1 wraps.
func greetingFor(p *profile.Profile, now time.Time) (line string, nextIdx int) {
	namePart := ""
	if name := strings.TrimSpace(p.Name); name != "" {
		namePart = " " + name
	}
	part := dayPart(now)

	switch recencyOf(p, now) {
	case recencyFirstCall:
		lines := firstCallGreetings
		idx := p.GreetingIdx % len(lines)
		return fmt.Sprintf(lines[idx], part), (idx + 1) % len(lines)
	case recencyRecent:
		lines := recentGreetings
		idx := p.GreetingIdx % len(lines)
		return fmt.Sprintf(lines[idx], namePart, part), (idx + 1) % len(lines)
	case recencyLongGap:
		lines := longGapGreetings
		idx := p.GreetingIdx % len(lines)
		if idx == 1 {
			return fmt.Sprintf(lines[idx], namePart), (idx + 1) % len(lines)
		}
		return fmt.Sprintf(lines[idx], namePart, part), (idx + 1) % len(lines)
	default:
		lines := regularGreetings
		idx := p.GreetingIdx % len(lines)
		if idx == 0 {
			return fmt.Sprintf(lines[idx], part, namePart), (idx + 1) % len(lines)
		}
		return fmt.Sprintf(lines[idx], namePart, part), (idx + 1) % len(lines)
	}
}
