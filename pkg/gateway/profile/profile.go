package profile

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("profile not found")

type Tier string

const (
	TierFree    Tier = "free"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

type SafetyLevel string

const (
	SafetyNone     SafetyLevel = "none"
	SafetyWatch    SafetyLevel = "watch"
	SafetyElevated SafetyLevel = "elevated"
	SafetyHigh     SafetyLevel = "high"
)

type Relationship struct {
	Name       string `json:"name"`
	Relation   string `json:"relation"`
	Importance int    `json:"importance"` // 1-10
	Notes      string `json:"notes,omitempty"`
}

type Event struct {
	When        string `json:"when,omitempty"`
	Description string `json:"description"`
}

type Goal struct {
	Description string `json:"description"`
	Progress    int    `json:"progress"` // 0-100
}

type Topic struct {
	Topic      string `json:"topic"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

type Summary struct {
	Date      time.Time `json:"date"`
	Summary   string    `json:"summary"`
	KeyPoints []string  `json:"key_points,omitempty"`
}

type Insight struct {
	Text       string `json:"text"`
	Importance int    `json:"importance"` // 1-10
}

// FlowState is the durable payment-walkthrough sub-record. The step value is
// owned by the payment package; it is persisted here as an opaque string so
// the store has no dependency on flow semantics.
type FlowState struct {
	Step                string         `json:"step,omitempty"`
	StartedAt           time.Time      `json:"started_at,omitempty"`
	LoopCount           int            `json:"loop_count,omitempty"`
	LastFailure         string         `json:"last_failure,omitempty"`
	LastPhrase          map[string]int `json:"last_phrase,omitempty"`
	ConfirmedExternally bool           `json:"confirmed_externally,omitempty"`
}

// Memory holds the long-lived conversational record the context engine reads.
type Memory struct {
	Pronouns          string         `json:"pronouns,omitempty"`
	LifeStage         string         `json:"life_stage,omitempty"`
	Relationships     []Relationship `json:"relationships,omitempty"`
	PastEvents        []Event        `json:"past_events,omitempty"`
	UpcomingEvents    []Event        `json:"upcoming_events,omitempty"`
	EmotionalPatterns []string       `json:"emotional_patterns,omitempty"`
	Goals             []Goal         `json:"goals,omitempty"`
	Challenges        []string       `json:"challenges,omitempty"`
	Wins              []string       `json:"wins,omitempty"`
	RecentTopics      []Topic        `json:"recent_topics,omitempty"`
	Preferences       []string       `json:"preferences,omitempty"`
	Summaries         []Summary      `json:"summaries,omitempty"`
	Insights          []Insight      `json:"insights,omitempty"`
	NextActions       []string       `json:"next_actions,omitempty"`
	Synthesis         string         `json:"synthesis,omitempty"`
	SafetyLevel       SafetyLevel    `json:"safety_level,omitempty"`
	SafetyNotes       string         `json:"safety_notes,omitempty"`
}

type Profile struct {
	ID                string
	Phone             string
	Name              string
	Tier              Tier
	TotalExchanges    int64
	PaymentLinkSentAt *time.Time
	Flow              FlowState
	Memory            Memory
	GreetingIdx       int
	LastCallAt        *time.Time
	CreatedAt         time.Time
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name        *string
	Tier        *Tier
	GreetingIdx *int
	LastCallAt  *time.Time
	Memory      *Memory
}

type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	GetByPhone(ctx context.Context, phone string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, id string, patch Patch) error

	// IncrementExchanges adds one to the lifetime exchange counter at the
	// store layer (read-increment-write must not lose updates across
	// concurrent calls) and returns the new value.
	IncrementExchanges(ctx context.Context, id string) (int64, error)

	// SaveFlow persists the payment-walkthrough sub-record, last writer wins.
	SaveFlow(ctx context.Context, id string, fs FlowState) error

	// MarkLinkSent sets the payment-link-sent timestamp only if it has never
	// been set. Returns true when this call won the write.
	MarkLinkSent(ctx context.Context, id string, at time.Time) (bool, error)

	// ClearLinkSent unsets the payment-link-sent timestamp. Only the caller
	// that won MarkLinkSent may clear it, and only when nothing was sent.
	ClearLinkSent(ctx context.Context, id string) error

	// Merge folds the src profile into dst and removes src.
	Merge(ctx context.Context, dstID, srcID string) error
}

// merged combines two profiles discovered to be the same person: counters are
// summed, scalar fields keep the first (dst) writer unless dst is empty, and
// the earliest link-sent timestamp wins so the conversion trigger can never
// re-fire after a merge.
func merged(dst, src *Profile) *Profile {
	out := *dst
	out.TotalExchanges = dst.TotalExchanges + src.TotalExchanges
	if out.Name == "" {
		out.Name = src.Name
	}
	if out.Phone == "" {
		out.Phone = src.Phone
	}
	// A paid tier on either record survives the merge.
	if out.Tier == "" || (out.Tier == TierFree && src.Tier != "" && src.Tier != TierFree) {
		if src.Tier != "" {
			out.Tier = src.Tier
		}
	}
	if out.PaymentLinkSentAt == nil {
		out.PaymentLinkSentAt = src.PaymentLinkSentAt
	} else if src.PaymentLinkSentAt != nil && src.PaymentLinkSentAt.Before(*out.PaymentLinkSentAt) {
		out.PaymentLinkSentAt = src.PaymentLinkSentAt
	}
	if out.Flow.Step == "" || out.Flow.Step == "none" {
		out.Flow = src.Flow
	}
	if out.LastCallAt == nil || (src.LastCallAt != nil && src.LastCallAt.After(*out.LastCallAt)) {
		out.LastCallAt = src.LastCallAt
	}
	if src.CreatedAt.Before(out.CreatedAt) {
		out.CreatedAt = src.CreatedAt
	}
	out.Memory = mergedMemory(dst.Memory, src.Memory)
	return &out
}

func mergedMemory(dst, src Memory) Memory {
	out := dst
	if out.Pronouns == "" {
		out.Pronouns = src.Pronouns
	}
	if out.LifeStage == "" {
		out.LifeStage = src.LifeStage
	}
	if out.Synthesis == "" {
		out.Synthesis = src.Synthesis
	}
	// Safety information is additive: the higher level wins.
	if safetyRank(src.SafetyLevel) > safetyRank(out.SafetyLevel) {
		out.SafetyLevel = src.SafetyLevel
	}
	if out.SafetyNotes == "" {
		out.SafetyNotes = src.SafetyNotes
	} else if src.SafetyNotes != "" && src.SafetyNotes != out.SafetyNotes {
		out.SafetyNotes = out.SafetyNotes + " " + src.SafetyNotes
	}
	out.Relationships = append(append([]Relationship(nil), dst.Relationships...), src.Relationships...)
	out.PastEvents = append(append([]Event(nil), dst.PastEvents...), src.PastEvents...)
	out.UpcomingEvents = append(append([]Event(nil), dst.UpcomingEvents...), src.UpcomingEvents...)
	out.EmotionalPatterns = append(append([]string(nil), dst.EmotionalPatterns...), src.EmotionalPatterns...)
	out.Goals = append(append([]Goal(nil), dst.Goals...), src.Goals...)
	out.Challenges = append(append([]string(nil), dst.Challenges...), src.Challenges...)
	out.Wins = append(append([]string(nil), dst.Wins...), src.Wins...)
	out.RecentTopics = append(append([]Topic(nil), dst.RecentTopics...), src.RecentTopics...)
	out.Preferences = append(append([]string(nil), dst.Preferences...), src.Preferences...)
	out.Summaries = append(append([]Summary(nil), dst.Summaries...), src.Summaries...)
	out.Insights = append(append([]Insight(nil), dst.Insights...), src.Insights...)
	out.NextActions = append(append([]string(nil), dst.NextActions...), src.NextActions...)
	return out
}

func safetyRank(l SafetyLevel) int {
	switch l {
	case SafetyWatch:
		return 1
	case SafetyElevated:
		return 2
	case SafetyHigh:
		return 3
	default:
		return 0
	}
}
