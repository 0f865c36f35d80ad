package irc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		prefix  Prefix
		command string
		params  []string
	}{
		{"PING :irc.example.net", Prefix{}, "PING", []string{"irc.example.net"}},
		{":irc.example.net 001 Bot :Welcome to IRC Bot", Prefix{Nick: "irc.example.net"}, "001", []string{"Bot", "Welcome to IRC Bot"}},
		{":alice!u@h PRIVMSG #x :hi  there Bot", Prefix{"alice", "u", "h"}, "PRIVMSG", []string{"#x", "hi  there Bot"}},
		{":alice!u@h PRIVMSG #x word", Prefix{"alice", "u", "h"}, "PRIVMSG", []string{"#x", "word"}},
		{":Bot!b@h JOIN #x", Prefix{"Bot", "b", "h"}, "JOIN", []string{"#x"}},
		{":Bot!b@h JOIN :#x", Prefix{"Bot", "b", "h"}, "JOIN", []string{"#x"}},
		{"@time=2024-01-01T00:00:00Z :a!b@c privmsg Bot :yo", Prefix{"a", "b", "c"}, "PRIVMSG", []string{"Bot", "yo"}},
		{"ERROR :Closing Link: 1.2.3.4 (Ping timeout)", Prefix{}, "ERROR", []string{"Closing Link: 1.2.3.4 (Ping timeout)"}},
		{"QUIT", Prefix{}, "QUIT", nil},
		{"PRIVMSG #x :\r\n", Prefix{}, "PRIVMSG", []string{"#x", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			m, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, m.Prefix)
			assert.Equal(t, tt.command, m.Command)
			assert.Equal(t, tt.params, m.Params)
		})
	}
}

func TestParseRejectsUnusableLines(t *testing.T) {
	_, err := Parse("   ")
	assert.True(t, errors.Is(err, ErrEmptyLine))

	for _, line := range []string{":onlyprefix", "12 foo", "PR1VMSG #x :a", "@tags-only"} {
		_, err := Parse(line)
		assert.Truef(t, errors.Is(err, ErrMalformed), "line %q: err = %v", line, err)
	}
}

func TestPingToken(t *testing.T) {
	tests := map[string]string{
		"PING :abc":          ":abc",
		"PING abc":           "abc",
		":srv PING :abc def": ":abc def",
		"PING":               "",
	}
	for line, want := range tests {
		m, err := Parse(line)
		require.NoError(t, err)
		tok, ok := m.PingToken()
		require.True(t, ok, line)
		assert.Equal(t, want, tok, line)
		assert.Equal(t, want, pongToken(Pong(tok)), line)
	}

	m, err := Parse(":srv PONG :abc")
	require.NoError(t, err)
	_, ok := m.PingToken()
	assert.False(t, ok)
}

func pongToken(line string) string {
	if len(line) <= len("PONG ") {
		return ""
	}
	return line[len("PONG "):]
}

func TestPrivmsg(t *testing.T) {
	m, err := Parse(":alice!u@h PRIVMSG #x :hi Bot")
	require.NoError(t, err)
	speaker, target, text, ok := m.Privmsg()
	require.True(t, ok)
	assert.Equal(t, "alice", speaker)
	assert.Equal(t, "#x", target)
	assert.Equal(t, "hi Bot", text)

	for _, line := range []string{"PRIVMSG #x :no prefix", ":alice!u@h PRIVMSG #x", ":alice!u@h NOTICE #x :hi"} {
		m, err := Parse(line)
		require.NoError(t, err)
		_, _, _, ok := m.Privmsg()
		assert.False(t, ok, line)
	}
}

func TestNumericAndWelcome(t *testing.T) {
	m, err := Parse(":srv 001 Bot :hello")
	require.NoError(t, err)
	n, ok := m.Numeric()
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	assert.True(t, m.IsWelcome())

	m, err = Parse(":srv NOTICE * :hello")
	require.NoError(t, err)
	_, ok = m.Numeric()
	assert.False(t, ok)
}

func TestJoined(t *testing.T) {
	cases := []struct {
		line    string
		nick    string
		channel string
		ok      bool
	}{
		{":bot!b@h JOIN #x", "bot", "#x", true},
		{":Bot!b@h JOIN #x", "Bot", "#x", true},
		{":h JOIN Bot :#x", "Bot", "#x", true},
		{":bot!b@h JOIN #x account :Real Name", "bot", "#x", true},
		{"JOIN #x", "", "", false},
		{":h JOIN", "", "", false},
		{":h PART #x", "", "", false},
	}
	for _, tc := range cases {
		m, err := Parse(tc.line)
		require.NoError(t, err, tc.line)
		nick, channel, ok := m.Joined()
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.nick, nick, tc.line)
		assert.Equal(t, tc.channel, channel, tc.line)
	}
}

func TestCaseMapping(t *testing.T) {
	assert.True(t, EqualFold("Bot[1]", "bot{1}"))
	assert.True(t, EqualFold(`A\B~`, "a|b^"))
	assert.False(t, EqualFold("bot", "bot_"))
	assert.True(t, ContainsFold("hey BOT, you there?", "bot"))
	assert.False(t, ContainsFold("anything", ""))
}

func TestIsChannel(t *testing.T) {
	assert.True(t, IsChannel("#x"))
	assert.True(t, IsChannel("&local"))
	assert.False(t, IsChannel("alice"))
	assert.False(t, IsChannel(""))
}
