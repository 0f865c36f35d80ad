package conversation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Record(RoleUser, "alice", fmt.Sprintf("msg %d", i))
	}

	require.Equal(t, 3, h.Len())
	got := h.Recent(0)
	assert.Equal(t, []string{"msg 3", "msg 4", "msg 5"}, texts(got))
}

func TestHistory_RecentReturnsChronologicalSuffix(t *testing.T) {
	h := NewHistory(10)
	h.Record(RoleUser, "alice", "hi Bot")
	h.Record(RoleAssistant, "Bot", "hello!")
	h.Record(RoleUser, "bob", "sup")

	assert.Equal(t, []string{"hello!", "sup"}, texts(h.Recent(2)))
	assert.Len(t, h.Recent(50), 3)

	recent := h.Recent(1)
	recent[0].Text = "mutated"
	assert.Equal(t, "sup", h.Recent(1)[0].Text)
}

func TestHistory_ResetKeepsUserSequence(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistorySize, h.Cap())

	h.Record(RoleUser, "alice", "one")
	h.Record(RoleAssistant, "Bot", "two")
	assert.Equal(t, uint64(1), h.UserSeq())

	h.Reset()
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Recent(5))
	assert.Equal(t, uint64(1), h.UserSeq())
}

func TestHistory_ConcurrentRecordNeverExceedsCap(t *testing.T) {
	h := NewHistory(10)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Record(RoleUser, fmt.Sprintf("u%d", g), "x")
				_ = h.Recent(3)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 10, h.Len())
	assert.Equal(t, uint64(800), h.UserSeq())
}

func TestSeenWindow_ReportsRepeatsWithinWindow(t *testing.T) {
	w := NewSeenWindow(3)
	assert.False(t, w.Seen("a"))
	assert.True(t, w.Seen("a"))
	assert.False(t, w.Seen("b"))
	assert.False(t, w.Seen("c"))
	assert.False(t, w.Seen("d"))

	// "a" was the oldest insertion and has been evicted.
	assert.False(t, w.Seen("a"))
	assert.Equal(t, 3, w.Len())
}

func TestSeenWindow_ZeroDisables(t *testing.T) {
	w := NewSeenWindow(0)
	assert.False(t, w.Seen("a"))
	assert.False(t, w.Seen("a"))
	assert.Zero(t, w.Len())
}

func TestSeenWindow_ConcurrentCheckInsertIsAtomic(t *testing.T) {
	w := NewSeenWindow(DefaultSeenWindow)
	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !w.Seen(":alice!u@h PRIVMSG #x :hi") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), firsts.Load())
}

func texts(turns []Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}
