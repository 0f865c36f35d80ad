package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	p := New(Config{Nick: "Bot", ReplyToAll: false})

	tests := []struct {
		name    string
		speaker string
		target  string
		text    string
		want    Decision
	}{
		{"mention", "alice", "#x", "hi Bot", Decision{true, "#x", ReasonMention}},
		{"mention any case", "alice", "#x", "hey bOt, sup", Decision{true, "#x", ReasonMention}},
		{"not addressed", "alice", "#x", "hello everyone", Decision{false, "", ReasonNotAddressed}},
		{"private", "alice", "Bot", "psst", Decision{true, "alice", ReasonPrivate}},
		{"self in channel", "Bot", "#x", "Bot says hi", Decision{false, "", ReasonSelf}},
		{"self private", "bot", "Bot", "echo", Decision{false, "", ReasonSelf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.speaker, tt.target, tt.text))
		})
	}
}

func TestDecide_ReplyToAllSkipsKnownBots(t *testing.T) {
	p := New(Config{Nick: "R2D2", ReplyToAll: true, KnownBots: []string{"C3PO", " leia ", ""}})

	assert.Equal(t, Decision{true, "#x", ReasonReplyToAll}, p.Decide("alice", "#x", "anyone around?"))
	assert.Equal(t, Decision{false, "", ReasonKnownBot}, p.Decide("c3po", "#x", "anyone around?"))
	assert.Equal(t, Decision{false, "", ReasonKnownBot}, p.Decide("Leia", "#x", "hello"))
	assert.Equal(t, Decision{true, "#x", ReasonMention}, p.Decide("C3PO", "#x", "R2D2, come here"))
	assert.Equal(t, Decision{true, "C3PO", ReasonPrivate}, p.Decide("C3PO", "R2D2", "hi"))
	assert.True(t, p.IsKnownBot("LEIA"))
}

func TestReplyDelayWithinBounds(t *testing.T) {
	p := New(Config{Nick: "Bot", ReplyDelayMin: 10 * time.Millisecond, ReplyDelayMax: 30 * time.Millisecond})
	for i := 0; i < 200; i++ {
		d := p.ReplyDelay()
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.LessOrEqual(t, d, 30*time.Millisecond)
	}

	fixed := New(Config{Nick: "Bot"})
	assert.Zero(t, fixed.ReplyDelay())

	inverted := New(Config{Nick: "Bot", ReplyDelayMin: time.Second, ReplyDelayMax: time.Millisecond})
	assert.Equal(t, time.Second, inverted.ReplyDelay())
}

func TestChatter_RandomInterval(t *testing.T) {
	c, err := NewChatter(ChatterConfig{Min: 20 * time.Second, Max: 60 * time.Second})
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		d := c.NextDelay(time.Now())
		require.GreaterOrEqual(t, d, 20*time.Second)
		require.LessOrEqual(t, d, 60*time.Second)
	}
}

func TestChatter_CronSchedule(t *testing.T) {
	c, err := NewChatter(ChatterConfig{Cron: "*/5 * * * *"})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Minute, c.NextDelay(now))

	_, err = NewChatter(ChatterConfig{Cron: "every five minutes"})
	assert.Error(t, err)
}

func TestChatter_OnlyAfterNewUserTurns(t *testing.T) {
	c, err := NewChatter(ChatterConfig{Min: time.Second, Max: time.Second})
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, c.ShouldSpeak(0, now))
	assert.True(t, c.ShouldSpeak(3, now))
	c.Spoke(3, now)
	assert.False(t, c.ShouldSpeak(3, now.Add(time.Hour)))
	assert.True(t, c.ShouldSpeak(4, now))
}

func TestChatter_QuietTrigger(t *testing.T) {
	c, err := NewChatter(ChatterConfig{Trigger: TriggerQuiet, QuietAfter: time.Minute})
	require.NoError(t, err)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.Heard(t0)
	assert.False(t, c.ShouldSpeak(1, t0.Add(30*time.Second)), "channel still active")
	assert.True(t, c.ShouldSpeak(1, t0.Add(time.Minute)))

	c.Heard(t0.Add(50 * time.Second))
	assert.False(t, c.ShouldSpeak(2, t0.Add(time.Minute)), "new line resets the quiet clock")

	c.Spoke(2, t0.Add(2*time.Minute))
	assert.False(t, c.ShouldSpeak(2, t0.Add(2*time.Minute+30*time.Second)), "own remark counts as activity")
	assert.True(t, c.ShouldSpeak(2, t0.Add(3*time.Minute)), "no new user turns needed")
}

func TestChatter_RejectsUnknownTrigger(t *testing.T) {
	_, err := NewChatter(ChatterConfig{Trigger: "sometimes"})
	assert.Error(t, err)

	c, err := NewChatter(ChatterConfig{})
	require.NoError(t, err)
	assert.Equal(t, TriggerNewTurns, c.trigger)
	assert.Equal(t, DefaultChatterQuietAfter, c.quietAfter)
}
