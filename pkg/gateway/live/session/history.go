package session

import (
	"strings"

	"github.com/kindline-ai/kindline/pkg/gateway/generation"
)

// historyManager accumulates the spoken exchange for one call: the message
// list fed to generation and the flat transcript handed to enrichment.
type historyManager struct {
	turns      []generation.Message
	transcript strings.Builder
}

func newHistoryManager() *historyManager {
	return &historyManager{turns: make([]generation.Message, 0, 16)}
}

func (h *historyManager) appendUser(text string) {
	h.turns = append(h.turns, generation.Message{Role: "user", Content: text})
	h.transcript.WriteString("caller: ")
	h.transcript.WriteString(text)
	h.transcript.WriteString("\n")
}

func (h *historyManager) appendAssistant(text string) {
	h.turns = append(h.turns, generation.Message{Role: "assistant", Content: text})
	h.transcript.WriteString("companion: ")
	h.transcript.WriteString(text)
	h.transcript.WriteString("\n")
}

// snapshot returns a copy of the most recent messages, bounded by maxTurns
// user/assistant pairs so the generation request stays a fixed size on long
// calls.
func (h *historyManager) snapshot(maxTurns int) []generation.Message {
	msgs := h.turns
	if maxTurns > 0 && len(msgs) > maxTurns*2 {
		msgs = msgs[len(msgs)-maxTurns*2:]
	}
	out := make([]generation.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (h *historyManager) transcriptText() string {
	return h.transcript.String()
}
