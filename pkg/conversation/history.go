// Package conversation holds the per-session chat memory: a bounded turn
// history and a window of recently seen raw lines.
package conversation

import (
	"sync"
	"time"
)

const DefaultHistorySize = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance. Name is the speaker's nick for user turns and the
// bot's own nick for assistant turns.
type Turn struct {
	Role Role
	Name string
	Text string
	At   time.Time
}

// History is a bounded FIFO of turns, safe for concurrent use.
type History struct {
	mu      sync.Mutex
	turns   []Turn
	max     int
	userSeq uint64
	now     func() time.Time
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{
		turns: make([]Turn, 0, max),
		max:   max,
		now:   time.Now,
	}
}

// Record appends a turn, evicting the oldest once full.
func (h *History) Record(role Role, name, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.turns) == h.max {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:h.max-1]
	}
	h.turns = append(h.turns, Turn{Role: role, Name: name, Text: text, At: h.now()})
	if role == RoleUser {
		h.userSeq++
	}
}

// Recent returns up to n most recent turns, oldest first. n <= 0 returns
// everything held.
func (h *History) Recent(n int) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.turns) {
		n = len(h.turns)
	}
	out := make([]Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

// Reset drops all turns. The user sequence keeps counting so a chatter
// check spanning a reset still sees only genuinely new input.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Cap() int {
	return h.max
}

// UserSeq counts user turns ever recorded.
func (h *History) UserSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userSeq
}
