package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kindline-ai/kindline/pkg/gateway/profile"
)

const (
	// DefaultTokenBudget is the soft ceiling for the assembled bundle,
	// estimated at four characters per token. The budget is best-effort:
	// safety-critical content is always included even when over budget.
	DefaultTokenBudget = 2300

	charsPerToken = 4

	maxRelationships = 10
	maxPastEvents    = 5
	maxUpcoming      = 3
	maxWins          = 3
	maxTopics        = 5
	maxSummaries     = 5
	maxInsights      = 5
	maxNextActions   = 3
)

// Bundle is the layered generator-backend input assembled from one profile.
type Bundle struct {
	CoreIdentity  string
	ActiveContext string
	Historical    string
	Synthesis     string

	Text            string
	EstimatedTokens int
	Budget          int
	OverBudget      bool
}

// Build assembles the context bundle. Given identical profile data the output
// is byte-identical: every collection is sorted with deterministic tie-breaks
// before truncation.
func Build(p *profile.Profile) Bundle {
	return BuildWithBudget(p, DefaultTokenBudget)
}

func BuildWithBudget(p *profile.Profile, budget int) Bundle {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	b := Bundle{
		CoreIdentity:  coreIdentity(p),
		ActiveContext: activeContext(p),
		Historical:    historical(p),
		Synthesis:     synthesis(p),
		Budget:        budget,
	}

	var sb strings.Builder
	section(&sb, "## Core Identity", b.CoreIdentity)
	section(&sb, "## Active Context", b.ActiveContext)
	section(&sb, "## Historical Context", b.Historical)
	section(&sb, "## Synthesis", b.Synthesis)
	b.Text = strings.TrimRight(sb.String(), "\n")
	b.EstimatedTokens = len(b.Text) / charsPerToken
	b.OverBudget = b.EstimatedTokens > budget
	return b
}

func section(sb *strings.Builder, header, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
}

func coreIdentity(p *profile.Profile) string {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	}
	m := p.Memory
	if m.Pronouns != "" {
		fmt.Fprintf(&sb, "Pronouns: %s\n", m.Pronouns)
	}
	if m.LifeStage != "" {
		fmt.Fprintf(&sb, "Life stage: %s\n", m.LifeStage)
	}

	rels := append([]profile.Relationship(nil), m.Relationships...)
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Importance != rels[j].Importance {
			return rels[i].Importance > rels[j].Importance
		}
		return rels[i].Name < rels[j].Name
	})
	if len(rels) > maxRelationships {
		rels = rels[:maxRelationships]
	}
	if len(rels) > 0 {
		sb.WriteString("Key relationships:\n")
		for _, r := range rels {
			fmt.Fprintf(&sb, "- %s (%s, importance %d)", r.Name, r.Relation, r.Importance)
			if r.Notes != "" {
				fmt.Fprintf(&sb, ": %s", r.Notes)
			}
			sb.WriteString("\n")
		}
	}

	writeEvents(&sb, "Significant past events:", m.PastEvents, maxPastEvents)
	writeEvents(&sb, "Upcoming:", m.UpcomingEvents, maxUpcoming)

	// Safety information is never budgeted away.
	if m.SafetyLevel != "" && m.SafetyLevel != profile.SafetyNone {
		fmt.Fprintf(&sb, "SAFETY: level=%s", m.SafetyLevel)
		if m.SafetyNotes != "" {
			fmt.Fprintf(&sb, " notes=%s", m.SafetyNotes)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeEvents(sb *strings.Builder, header string, events []profile.Event, limit int) {
	if len(events) == 0 {
		return
	}
	if len(events) > limit {
		events = events[:limit]
	}
	sb.WriteString(header)
	sb.WriteString("\n")
	for _, e := range events {
		if e.When != "" {
			fmt.Fprintf(sb, "- %s: %s\n", e.When, e.Description)
		} else {
			fmt.Fprintf(sb, "- %s\n", e.Description)
		}
	}
}

func activeContext(p *profile.Profile) string {
	var sb strings.Builder
	m := p.Memory
	writeList(&sb, "Emotional patterns:", m.EmotionalPatterns, len(m.EmotionalPatterns))
	if len(m.Goals) > 0 {
		sb.WriteString("Goals:\n")
		for _, g := range m.Goals {
			fmt.Fprintf(&sb, "- %s (%d%%)\n", g.Description, g.Progress)
		}
	}
	writeList(&sb, "Ongoing challenges:", m.Challenges, len(m.Challenges))
	writeList(&sb, "Recent wins:", m.Wins, maxWins)
	if len(m.RecentTopics) > 0 {
		topics := m.RecentTopics
		if len(topics) > maxTopics {
			topics = topics[:maxTopics]
		}
		sb.WriteString("Recent topics:\n")
		for _, t := range topics {
			if t.Unresolved {
				fmt.Fprintf(&sb, "- %s (unresolved)\n", t.Topic)
			} else {
				fmt.Fprintf(&sb, "- %s\n", t.Topic)
			}
		}
	}
	if len(m.Preferences) > 0 {
		fmt.Fprintf(&sb, "Communication preferences: %s\n", strings.Join(m.Preferences, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeList(sb *strings.Builder, header string, items []string, limit int) {
	if len(items) == 0 {
		return
	}
	if len(items) > limit {
		items = items[:limit]
	}
	sb.WriteString(header)
	sb.WriteString("\n")
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

func historical(p *profile.Profile) string {
	sums := append([]profile.Summary(nil), p.Memory.Summaries...)
	sort.SliceStable(sums, func(i, j int) bool { return sums[i].Date.After(sums[j].Date) })
	if len(sums) > maxSummaries {
		sums = sums[:maxSummaries]
	}
	var sb strings.Builder
	for _, s := range sums {
		fmt.Fprintf(&sb, "%s: %s\n", s.Date.Format("2006-01-02"), s.Summary)
		for _, kp := range s.KeyPoints {
			fmt.Fprintf(&sb, "  - %s\n", kp)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func synthesis(p *profile.Profile) string {
	var sb strings.Builder
	m := p.Memory
	if m.Synthesis != "" {
		sb.WriteString(m.Synthesis)
		sb.WriteString("\n")
	}
	ins := append([]profile.Insight(nil), m.Insights...)
	sort.SliceStable(ins, func(i, j int) bool {
		if ins[i].Importance != ins[j].Importance {
			return ins[i].Importance > ins[j].Importance
		}
		return ins[i].Text < ins[j].Text
	})
	if len(ins) > maxInsights {
		ins = ins[:maxInsights]
	}
	if len(ins) > 0 {
		sb.WriteString("Standing insights:\n")
		for _, in := range ins {
			fmt.Fprintf(&sb, "- %s\n", in.Text)
		}
	}
	writeList(&sb, "Suggested next:", m.NextActions, maxNextActions)
	return strings.TrimRight(sb.String(), "\n")
}
